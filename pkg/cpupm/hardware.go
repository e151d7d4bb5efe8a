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

	"github.com/intel/cpupm/pkg/utils"
)

// RegisterIO provides access to PMU registers.
type RegisterIO interface {
	ReadReg(addr uint32) (uint32, error)
	WriteReg(addr uint32, val uint32) error
}

// CAL is the hardware abstraction used for every power-state change.
//
// Power-state calls are expected to succeed given a correct preceding
// state. A non-nil error from them is treated as a broken hardware
// contract and panics the engine.
type CAL interface {
	RegisterIO

	// CPUDown starts powering down a single core.
	CPUDown(cpu utils.ID) error
	// CPUUp powers a single core back up and acknowledges pending IPIs.
	CPUUp(cpu utils.ID) error
	// ClusterDisable allows the cluster behind calID to power down.
	ClusterDisable(calID uint32) error
	// ClusterEnable keeps the cluster behind calID powered.
	ClusterEnable(calID uint32) error
	// DomainDown prepares a shared-interconnect or system power-down.
	DomainDown(kind DomainKind, calID uint32) error
	// DomainUp undoes DomainDown. early is set when the idle period was
	// cancelled before the domain actually powered down.
	DomainUp(kind DomainKind, calID uint32, early bool) error

	// LastCoreDetecting reports whether cpu is inside the hardware window
	// that resolves which core is the last one to go idle.
	LastCoreDetecting(cpu utils.ID) bool
	// IPIPending reports whether cpu has an unacknowledged IPI.
	IPIPending(cpu utils.ID) bool

	// WakeupSourceArmed reports whether a named wakeup source must stay
	// unmasked during system power-down.
	WakeupSourceArmed(source string) bool
	// ExtIntWakeMask returns the external interrupt wakeup mask.
	ExtIntWakeMask() uint32
}

// CrossCaller forces CPUs to leave idle and re-evaluate their power modes.
// ForceReevaluate returns only after every CPU in the set has observed
// memory written before the call.
type CrossCaller interface {
	ForceReevaluate(cpus utils.IDSet)
}

// StatusReader reads the live idleness of an external Idle-IP.
type StatusReader interface {
	Busy() bool
}

// StatusReaderFunc adapts a function to the StatusReader interface.
type StatusReaderFunc func() bool

// Busy implements StatusReader.
func (f StatusReaderFunc) Busy() bool {
	return f()
}

func mustCAL(op string, err error) {
	if err != nil {
		panic(fmt.Sprintf("cpupm: CAL %s failed: %v", op, err))
	}
}
