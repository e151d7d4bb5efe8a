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
	"time"

	"github.com/intel/cpupm/pkg/utils"
)

// CPUGoingOffline is called on cpu when it starts going offline. Idle
// entry of cpu is suppressed until CPUOnline. Every power mode that cpu
// holds idle is brought back up before the call returns. If cpu was the
// last online member of its cluster, the cluster power mode is disabled
// until a member comes back.
func (e *Engine) CPUGoingOffline(cpu utils.ID, now time.Duration) error {
	c, ok := e.cpus[cpu]
	if !ok {
		return fmt.Errorf("unknown cpu %d", cpu)
	}
	c.inHotplug.Store(true)

	e.mu.Lock()
	if c.idling {
		e.exitLocked(c, false, now)
	}
	e.exitModesLocked(c, now)
	c.busy.Store(int32(Busy))
	c.online.Store(false)

	var disable *PowerMode
	if m := c.modes[DomainCluster]; m != nil && !m.hotplugDisabled && !m.anyOnline() {
		m.hotplugDisabled = true
		disable = m
	}
	e.mu.Unlock()

	e.log.Info("cpu going offline", "cpu", cpu)
	if disable != nil {
		e.log.Info("last cpu of cluster offline, disabling power mode", "cpu", cpu, "mode", disable.name)
		e.disablePowerMode(disable)
	}
	return nil
}

// CPUOnline is called when cpu has come fully online. Power modes that
// idle siblings took down while cpu was offline are brought back up, and
// the cluster power mode disabled when the cluster lost its last online
// CPU is re-enabled.
func (e *Engine) CPUOnline(cpu utils.ID, now time.Duration) error {
	c, ok := e.cpus[cpu]
	if !ok {
		return fmt.Errorf("unknown cpu %d", cpu)
	}

	e.mu.Lock()
	e.exitModesLocked(c, now)
	c.busy.Store(int32(Busy))
	c.online.Store(true)
	var enable *PowerMode
	if m := c.modes[DomainCluster]; m != nil && m.hotplugDisabled {
		m.hotplugDisabled = false
		enable = m
	}
	e.mu.Unlock()

	c.inHotplug.Store(false)
	e.log.Info("cpu online", "cpu", cpu)
	if enable != nil {
		e.enablePowerMode(enable)
	}
	return nil
}

// exitModesLocked brings up every power mode of c that is idle, highest
// domain first, whichever CPU took it down.
func (e *Engine) exitModesLocked(c *cpuState, now time.Duration) {
	for kind := numDomainKinds - 1; kind >= 0; kind-- {
		m := c.modes[kind]
		if m == nil || m.state != Idle {
			continue
		}
		e.exitPowerMode(c, m, false, now)
		m.state = Busy
	}
}

// CPUOnlineMask returns the CPUs currently considered online.
func (e *Engine) CPUOnlineMask() utils.IDSet {
	online := utils.NewIDSet()
	for id, c := range e.cpus {
		if c.online.Load() {
			online.Add(id)
		}
	}
	return online
}
