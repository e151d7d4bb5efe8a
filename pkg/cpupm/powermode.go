/*
Copyright 2025 Intel Corporation

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cpupm

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/intel/cpupm/pkg/utils"
)

// PowerMode is one controllable power domain.
type PowerMode struct {
	index           int
	name            string
	kind            DomainKind
	targetResidency time.Duration
	calID           uint32
	siblings        utils.IDSet
	entryAllowed    utils.IDSet
	deferred        bool

	// CPUs of siblings, in CPU order.
	members []*cpuState

	disableCount atomic.Int32

	// Guarded by the coordination lock.
	state           State
	entryTime       time.Duration
	enteredBy       utils.ID
	hotplugDisabled bool

	// Guarded by Engine.policyMu.
	userEnabled bool
}

func newPowerMode(index int, rm *resolvedMode) *PowerMode {
	return &PowerMode{
		index:           index,
		name:            rm.name,
		kind:            rm.kind,
		targetResidency: rm.targetResidency,
		calID:           rm.calID,
		siblings:        rm.siblings,
		entryAllowed:    rm.entryAllowed,
		deferred:        rm.deferred,
		state:           Busy,
		enteredBy:       utils.Unknown,
		userEnabled:     true,
	}
}

// inert modes have no CPU allowed to trigger entry and ignore
// enable/disable requests.
func (m *PowerMode) inert() bool {
	return m.entryAllowed.Size() == 0
}

func (m *PowerMode) anyOnline() bool {
	for _, c := range m.members {
		if c.online.Load() {
			return true
		}
	}
	return false
}

// PowerModeInfo is a point-in-time description of a power mode.
type PowerModeInfo struct {
	Name            string        `json:"name"`
	Kind            DomainKind    `json:"kind"`
	State           State         `json:"state"`
	TargetResidency time.Duration `json:"targetResidency"`
	CalID           uint32        `json:"calID"`
	Siblings        string        `json:"siblings"`
	EntryAllowed    string        `json:"entryAllowed"`
	DisableCount    int32         `json:"disableCount"`
	UserEnabled     bool          `json:"userEnabled"`
	Deferred        bool          `json:"deferred"`
}

// PowerModes returns the configured power modes in configuration order.
func (e *Engine) PowerModes() []PowerModeInfo {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	infos := make([]PowerModeInfo, 0, len(e.modes))
	for _, m := range e.modes {
		infos = append(infos, PowerModeInfo{
			Name:            m.name,
			Kind:            m.kind,
			State:           m.state,
			TargetResidency: m.targetResidency,
			CalID:           m.calID,
			Siblings:        m.siblings.String(),
			EntryAllowed:    m.entryAllowed.String(),
			DisableCount:    m.disableCount.Load(),
			UserEnabled:     m.userEnabled,
			Deferred:        m.deferred,
		})
	}
	return infos
}

func (e *Engine) modeOf(cpu utils.ID, kind DomainKind) (*PowerMode, error) {
	c, ok := e.cpus[cpu]
	if !ok {
		return nil, fmt.Errorf("unknown cpu %d", cpu)
	}
	if kind < 0 || kind >= numDomainKinds {
		return nil, fmt.Errorf("invalid domain kind %d", kind)
	}
	if c.modes[kind] == nil {
		return nil, fmt.Errorf("cpu %d has no %s power mode", cpu, kind)
	}
	return c.modes[kind], nil
}

// DisablePowerMode forbids entry into the power mode of the given kind
// that cpu belongs to. Every call must be paired with EnablePowerMode.
func (e *Engine) DisablePowerMode(cpu utils.ID, kind DomainKind) error {
	m, err := e.modeOf(cpu, kind)
	if err != nil {
		return err
	}
	e.disablePowerMode(m)
	return nil
}

// EnablePowerMode releases one DisablePowerMode hold.
func (e *Engine) EnablePowerMode(cpu utils.ID, kind DomainKind) error {
	m, err := e.modeOf(cpu, kind)
	if err != nil {
		return err
	}
	e.enablePowerMode(m)
	return nil
}

// disablePowerMode takes a hold on m. On the first hold every sibling is
// forced out of idle so that none of them keeps m idle.
func (e *Engine) disablePowerMode(m *PowerMode) {
	if m.inert() {
		return
	}
	if m.disableCount.Add(1) == 1 {
		e.xcall.ForceReevaluate(m.siblings)
	}
	e.log.Debug("power mode disabled", "mode", m.name, "disableCount", m.disableCount.Load())
}

// enablePowerMode drops a hold on m. Siblings are always kicked so that
// the new count is picked up without waiting for a natural wakeup.
func (e *Engine) enablePowerMode(m *PowerMode) {
	if m.inert() {
		return
	}
	for {
		cnt := m.disableCount.Load()
		if cnt <= 0 {
			e.log.Warn("unbalanced power mode enable ignored", "mode", m.name)
			return
		}
		if m.disableCount.CompareAndSwap(cnt, cnt-1) {
			break
		}
	}
	e.xcall.ForceReevaluate(m.siblings)
	e.log.Debug("power mode enabled", "mode", m.name, "disableCount", m.disableCount.Load())
}

// SetPowerModeEnabled latches a policy request for the named mode. Only
// changes of the latched value take or drop a disable hold.
func (e *Engine) SetPowerModeEnabled(name string, enabled bool) error {
	m, ok := e.modesByName[name]
	if !ok {
		return fmt.Errorf("unknown power mode %q", name)
	}

	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	if m.userEnabled == enabled {
		return nil
	}
	m.userEnabled = enabled
	if enabled {
		e.enablePowerMode(m)
	} else {
		e.disablePowerMode(m)
	}
	e.log.Info("power mode policy changed", "mode", name, "enabled", enabled)
	return nil
}
