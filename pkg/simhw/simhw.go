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

// Package simhw implements an in-memory SoC power controller that
// satisfies the cpupm CAL and CrossCaller interfaces. It keeps a register
// file, logs every power-state call and models IPIs sent to idle cores.
package simhw

import (
	"fmt"
	"sync"

	"github.com/intel/cpupm/pkg/cpupm"
	"github.com/intel/cpupm/pkg/utils"
)

// Op is a power-state call made to the hardware.
type Op string

const (
	OpCPUDown        Op = "cpu-down"
	OpCPUUp          Op = "cpu-up"
	OpClusterDisable Op = "cluster-disable"
	OpClusterEnable  Op = "cluster-enable"
	OpDomainDown     Op = "domain-down"
	OpDomainUp       Op = "domain-up"
	OpEarlyWakeup    Op = "early-wakeup"
)

// Call is one logged power-state call.
type Call struct {
	Op     Op
	Target uint32 // CPU index or CAL id
	Kind   cpupm.DomainKind
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%d)", c.Op, c.Target)
}

// Hardware is a simulated power controller.
type Hardware struct {
	mu         sync.Mutex
	regs       map[uint32]uint32
	calls      []Call
	callLimit  int
	counts     map[Op]int
	coreDown   map[utils.ID]bool
	ipiPending map[utils.ID]bool
	lastCore   map[utils.ID]bool
	armed      map[string]bool
	extIntMask uint32
	failures   map[Op]error
	wake       map[utils.ID]chan struct{}

	// domainDown counts DomainDown calls not yet undone, per CAL id.
	domainDown  map[uint32]int
	clusterDown map[uint32]bool
}

var _ cpupm.CAL = &Hardware{}
var _ cpupm.CrossCaller = &Hardware{}

// New creates simulated hardware with a wake channel for each CPU.
func New(cpus utils.IDSet) *Hardware {
	hw := &Hardware{
		regs:        map[uint32]uint32{},
		coreDown:    map[utils.ID]bool{},
		ipiPending:  map[utils.ID]bool{},
		lastCore:    map[utils.ID]bool{},
		armed:       map[string]bool{},
		failures:    map[Op]error{},
		counts:      map[Op]int{},
		wake:        map[utils.ID]chan struct{}{},
		domainDown:  map[uint32]int{},
		clusterDown: map[uint32]bool{},
	}
	for _, cpu := range cpus.Members() {
		hw.wake[cpu] = make(chan struct{}, 1)
	}
	return hw
}

func (hw *Hardware) record(op Op, target uint32, kind cpupm.DomainKind) error {
	hw.counts[op]++
	if hw.callLimit == 0 || len(hw.calls) < hw.callLimit {
		hw.calls = append(hw.calls, Call{Op: op, Target: target, Kind: kind})
	}
	return hw.failures[op]
}

// LimitCallLog stops logging calls once n calls are logged. Counters
// are kept regardless. Zero means no limit.
func (hw *Hardware) LimitCallLog(n int) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.callLimit = n
}

// CPUDown implements cpupm.CAL.
func (hw *Hardware) CPUDown(cpu utils.ID) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.coreDown[cpu] = true
	return hw.record(OpCPUDown, uint32(cpu), -1)
}

// CPUUp implements cpupm.CAL. Pending IPIs of cpu are acknowledged.
func (hw *Hardware) CPUUp(cpu utils.ID) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.coreDown[cpu] = false
	delete(hw.ipiPending, cpu)
	return hw.record(OpCPUUp, uint32(cpu), -1)
}

// ClusterDisable implements cpupm.CAL.
func (hw *Hardware) ClusterDisable(calID uint32) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.clusterDown[calID] {
		return fmt.Errorf("cluster %d already disabled", calID)
	}
	hw.clusterDown[calID] = true
	return hw.record(OpClusterDisable, calID, cpupm.DomainCluster)
}

// ClusterEnable implements cpupm.CAL.
func (hw *Hardware) ClusterEnable(calID uint32) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if !hw.clusterDown[calID] {
		return fmt.Errorf("cluster %d not disabled", calID)
	}
	hw.clusterDown[calID] = false
	return hw.record(OpClusterEnable, calID, cpupm.DomainCluster)
}

// DomainDown implements cpupm.CAL.
func (hw *Hardware) DomainDown(kind cpupm.DomainKind, calID uint32) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.domainDown[calID]++
	return hw.record(OpDomainDown, calID, kind)
}

// DomainUp implements cpupm.CAL.
func (hw *Hardware) DomainUp(kind cpupm.DomainKind, calID uint32, early bool) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if hw.domainDown[calID] == 0 {
		return fmt.Errorf("%s domain %d is not down", kind, calID)
	}
	hw.domainDown[calID]--
	op := OpDomainUp
	if early {
		op = OpEarlyWakeup
	}
	return hw.record(op, calID, kind)
}

// LastCoreDetecting implements cpupm.CAL.
func (hw *Hardware) LastCoreDetecting(cpu utils.ID) bool {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.lastCore[cpu]
}

// IPIPending implements cpupm.CAL.
func (hw *Hardware) IPIPending(cpu utils.ID) bool {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.ipiPending[cpu]
}

// WakeupSourceArmed implements cpupm.CAL.
func (hw *Hardware) WakeupSourceArmed(source string) bool {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.armed[source]
}

// ExtIntWakeMask implements cpupm.CAL.
func (hw *Hardware) ExtIntWakeMask() uint32 {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.extIntMask
}

// ReadReg implements cpupm.RegisterIO.
func (hw *Hardware) ReadReg(addr uint32) (uint32, error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.regs[addr], nil
}

// WriteReg implements cpupm.RegisterIO.
func (hw *Hardware) WriteReg(addr uint32, val uint32) error {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.regs[addr] = val
	return nil
}

// ForceReevaluate implements cpupm.CrossCaller. CPUs that are powered
// down get an IPI pending until their next CPUUp and are woken through
// their wake channel.
func (hw *Hardware) ForceReevaluate(cpus utils.IDSet) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	for _, cpu := range cpus.Members() {
		if !hw.coreDown[cpu] {
			continue
		}
		hw.ipiPending[cpu] = true
		if ch, ok := hw.wake[cpu]; ok {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Wake returns the channel signalled when cpu receives an IPI.
func (hw *Hardware) Wake(cpu utils.ID) <-chan struct{} {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.wake[cpu]
}

// SetIPIPending sets or clears a pending IPI of cpu.
func (hw *Hardware) SetIPIPending(cpu utils.ID, pending bool) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.ipiPending[cpu] = pending
}

// SetLastCoreDetecting sets whether cpu reports last-core detection.
func (hw *Hardware) SetLastCoreDetecting(cpu utils.ID, detecting bool) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.lastCore[cpu] = detecting
}

// ArmWakeupSource arms or disarms a named wakeup source.
func (hw *Hardware) ArmWakeupSource(source string, armed bool) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.armed[source] = armed
}

// SetExtIntWakeMask sets the external interrupt wakeup mask.
func (hw *Hardware) SetExtIntWakeMask(mask uint32) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.extIntMask = mask
}

// FailOp makes every following call of op return err. A nil err clears
// the failure.
func (hw *Hardware) FailOp(op Op, err error) {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	if err == nil {
		delete(hw.failures, op)
		return
	}
	hw.failures[op] = err
}

// Calls returns a copy of the call log.
func (hw *Hardware) Calls() []Call {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return append([]Call(nil), hw.calls...)
}

// CountCalls returns how many times op has been called.
func (hw *Hardware) CountCalls(op Op) int {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.counts[op]
}

// ResetCalls clears the call log and the call counters.
func (hw *Hardware) ResetCalls() {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	hw.calls = nil
	hw.counts = map[Op]int{}
}

// ClusterDown returns true while the cluster behind calID is disabled.
func (hw *Hardware) ClusterDown(calID uint32) bool {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.clusterDown[calID]
}

// DomainDownCount returns the number of outstanding DomainDown calls of
// calID.
func (hw *Hardware) DomainDownCount(calID uint32) int {
	hw.mu.Lock()
	defer hw.mu.Unlock()
	return hw.domainDown[calID]
}
