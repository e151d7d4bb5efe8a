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
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/hashicorp/go-multierror"
	"sigs.k8s.io/yaml"

	"github.com/intel/cpupm/pkg/utils"
)

const (
	// DefaultDeferredGracePeriod is how long deferred power modes stay
	// disabled after Start.
	DefaultDeferredGracePeriod = 30 * time.Second
	// DefaultTraceDepth is the default capacity of the transition trace.
	DefaultTraceDepth = 128
)

// Config represents the raw power-mode configuration, typically loaded
// from a YAML file describing the SoC topology.
type Config struct {
	PossibleCPUs        string            `json:"possibleCPUs"`
	BootCPU             int               `json:"bootCPU"`
	DeferredGracePeriod Duration          `json:"deferredGracePeriod,omitempty"`
	TraceDepth          int               `json:"traceDepth,omitempty"`
	PowerModes          []PowerModeConfig `json:"powerModes"`
	WakeupMask          WakeupMaskConfig  `json:"wakeupMask,omitempty"`
	IdleIPs             []IdleIPConfig    `json:"idleIPs,omitempty"`
}

// PowerModeConfig is the raw configuration of one power mode.
type PowerModeConfig struct {
	Name string `json:"name"`
	// Type is one of "cluster", "dsu" or "system".
	Type string `json:"type"`
	// TargetResidency in microseconds.
	TargetResidency uint64  `json:"targetResidency"`
	CalID           *uint32 `json:"calID"`
	Siblings        string  `json:"siblings"`
	// EntryAllowed defaults to Siblings. An explicitly empty list makes
	// the mode inert.
	EntryAllowed *string `json:"entryAllowed,omitempty"`
	Deferred     bool    `json:"deferred,omitempty"`
}

// IdleIPConfig describes an external Idle-IP read from a status register.
// The Idle-IP is busy when any bit of BusyMask is set.
type IdleIPConfig struct {
	Name              string `json:"name"`
	StatusReg         uint32 `json:"statusReg"`
	BusyMask          uint32 `json:"busyMask"`
	RequiresCoherency bool   `json:"requiresCoherency"`
}

// Duration is a time.Duration that is (un)marshalled as a Go duration
// string, e.g. "30s".
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// config is the resolved runtime configuration.
type config struct {
	possibleCPUs  utils.IDSet
	bootCPU       utils.ID
	deferredGrace time.Duration
	traceDepth    int
	modes         []*resolvedMode
	wakeup        WakeupMaskConfig
	idleIPs       []IdleIPConfig

	// Problems of entries that were left out of the configuration.
	skipped *multierror.Error
}

type resolvedMode struct {
	name            string
	kind            DomainKind
	targetResidency time.Duration
	calID           uint32
	siblings        utils.IDSet
	entryAllowed    utils.IDSet
	deferred        bool
}

// LoadConfigFromData parses YAML configuration data.
func LoadConfigFromData(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration data: %w", err)
	}
	return cfg, nil
}

// LoadConfigFromFile reads and parses a YAML configuration file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfigFromData(data)
}

// Validate checks the whole configuration and returns every problem
// found. Faulty power modes and Idle-IPs do not prevent an Engine from
// being created, they are only left out.
func (c *Config) Validate() error {
	conf, err := c.resolve()
	if err != nil {
		return err
	}
	return conf.skipped.ErrorOrNil()
}

// resolve turns the raw configuration into the runtime configuration.
// Only problems with the CPU topology itself are fatal.
func (c *Config) resolve() (*config, error) {
	possible, err := utils.NewIDSetFromString(c.PossibleCPUs)
	if err != nil {
		return nil, fmt.Errorf("invalid possibleCPUs: %w", err)
	}
	if possible.Size() == 0 {
		return nil, fmt.Errorf("no possible CPUs configured")
	}
	if !possible.Has(c.BootCPU) {
		return nil, fmt.Errorf("boot cpu %d is not a possible CPU (%s)", c.BootCPU, possible)
	}

	conf := &config{
		possibleCPUs:  possible,
		bootCPU:       c.BootCPU,
		deferredGrace: time.Duration(c.DeferredGracePeriod),
		traceDepth:    c.TraceDepth,
		skipped:       &multierror.Error{},
	}
	if conf.deferredGrace <= 0 {
		conf.deferredGrace = DefaultDeferredGracePeriod
	}
	if conf.traceDepth <= 0 {
		conf.traceDepth = DefaultTraceDepth
	}

	names := map[string]bool{}
	// owner[kind][cpu] is the name of the mode of that kind cpu belongs to
	owner := [numDomainKinds]map[utils.ID]string{}
	for k := range owner {
		owner[k] = map[utils.ID]string{}
	}

	for i, pm := range c.PowerModes {
		rm, err := pm.resolve(possible)
		if err == nil && names[rm.name] {
			err = fmt.Errorf("duplicate power mode name")
		}
		if err == nil {
			for _, cpu := range rm.siblings.SortedMembers() {
				if other, ok := owner[rm.kind][cpu]; ok {
					err = fmt.Errorf("cpu %d already belongs to %s mode %q", cpu, rm.kind, other)
					break
				}
			}
		}
		if err != nil {
			conf.skipped = multierror.Append(conf.skipped, fmt.Errorf("power mode #%d (%q): %w", i, pm.Name, err))
			continue
		}
		names[rm.name] = true
		for _, cpu := range rm.siblings.Members() {
			owner[rm.kind][cpu] = rm.name
		}
		conf.modes = append(conf.modes, rm)
	}

	if err := c.WakeupMask.validate(); err != nil {
		conf.skipped = multierror.Append(conf.skipped, err)
	} else {
		conf.wakeup = c.WakeupMask
	}

	for i, ip := range c.IdleIPs {
		switch {
		case ip.Name == "":
			conf.skipped = multierror.Append(conf.skipped, fmt.Errorf("idle-ip #%d: missing name", i))
		case ip.BusyMask == 0:
			conf.skipped = multierror.Append(conf.skipped, fmt.Errorf("idle-ip #%d (%q): empty busyMask", i, ip.Name))
		default:
			conf.idleIPs = append(conf.idleIPs, ip)
		}
	}

	return conf, nil
}

// maxTargetResidency keeps target residencies representable as a
// time.Duration.
const maxTargetResidency = uint64(math.MaxInt64 / time.Microsecond)

func (pm *PowerModeConfig) resolve(possible utils.IDSet) (*resolvedMode, error) {
	if pm.Name == "" {
		return nil, fmt.Errorf("missing name")
	}
	kind, err := ParseDomainKind(pm.Type)
	if err != nil {
		return nil, err
	}
	if pm.CalID == nil {
		return nil, fmt.Errorf("missing calID")
	}
	if pm.TargetResidency > maxTargetResidency {
		return nil, fmt.Errorf("targetResidency %d us exceeds maximum %d us", pm.TargetResidency, maxTargetResidency)
	}
	siblings, err := utils.NewIDSetFromString(pm.Siblings)
	if err != nil {
		return nil, fmt.Errorf("invalid siblings: %w", err)
	}
	if siblings.Size() == 0 {
		return nil, fmt.Errorf("no siblings")
	}
	if !siblings.IsSubsetOf(possible) {
		return nil, fmt.Errorf("siblings %s are not all possible CPUs (%s)", siblings, possible)
	}
	entryAllowed := siblings.Clone()
	if pm.EntryAllowed != nil {
		if entryAllowed, err = utils.NewIDSetFromString(*pm.EntryAllowed); err != nil {
			return nil, fmt.Errorf("invalid entryAllowed: %w", err)
		}
		if !entryAllowed.IsSubsetOf(siblings) {
			return nil, fmt.Errorf("entryAllowed %s is not a subset of siblings %s", entryAllowed, siblings)
		}
	}
	return &resolvedMode{
		name:            pm.Name,
		kind:            kind,
		targetResidency: time.Duration(pm.TargetResidency) * time.Microsecond,
		calID:           *pm.CalID,
		siblings:        siblings,
		entryAllowed:    entryAllowed,
		deferred:        pm.Deferred,
	}, nil
}
