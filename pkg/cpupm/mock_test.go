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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cpupmlog "github.com/intel/cpupm/pkg/log"
	"github.com/intel/cpupm/pkg/utils"
)

// mockCAL implements CAL for testing. Queries can be overridden on-the-fly
// through the function fields; power-state calls are logged.
type mockCAL struct {
	mu          sync.Mutex
	calls       []string
	regs        map[uint32]uint32
	writes      []string
	clusterDown map[uint32]bool
	failOp      string

	fIPIPending        func(cpu utils.ID) bool
	fLastCoreDetecting func(cpu utils.ID) bool
	fWakeupSourceArmed func(source string) bool
	extIntMask         uint32
}

func newMockCAL() *mockCAL {
	return &mockCAL{
		regs:        map[uint32]uint32{},
		clusterDown: map[uint32]bool{},
	}
}

func (m *mockCAL) record(op string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	if m.failOp != "" && m.failOp == op {
		return fmt.Errorf("injected failure of %q", op)
	}
	return nil
}

func (m *mockCAL) CPUDown(cpu utils.ID) error {
	return m.record(fmt.Sprintf("cpu-down %d", cpu))
}

func (m *mockCAL) CPUUp(cpu utils.ID) error {
	return m.record(fmt.Sprintf("cpu-up %d", cpu))
}

func (m *mockCAL) ClusterDisable(calID uint32) error {
	m.mu.Lock()
	if m.clusterDown[calID] {
		m.mu.Unlock()
		return fmt.Errorf("cluster %d disabled twice", calID)
	}
	m.clusterDown[calID] = true
	m.mu.Unlock()
	return m.record(fmt.Sprintf("cluster-disable %d", calID))
}

func (m *mockCAL) ClusterEnable(calID uint32) error {
	m.mu.Lock()
	m.clusterDown[calID] = false
	m.mu.Unlock()
	return m.record(fmt.Sprintf("cluster-enable %d", calID))
}

func (m *mockCAL) DomainDown(kind DomainKind, calID uint32) error {
	return m.record(fmt.Sprintf("%s-down %d", kind, calID))
}

func (m *mockCAL) DomainUp(kind DomainKind, calID uint32, early bool) error {
	if early {
		return m.record(fmt.Sprintf("%s-early-wakeup %d", kind, calID))
	}
	return m.record(fmt.Sprintf("%s-up %d", kind, calID))
}

func (m *mockCAL) LastCoreDetecting(cpu utils.ID) bool {
	if m.fLastCoreDetecting != nil {
		return m.fLastCoreDetecting(cpu)
	}
	return false
}

func (m *mockCAL) IPIPending(cpu utils.ID) bool {
	if m.fIPIPending != nil {
		return m.fIPIPending(cpu)
	}
	return false
}

func (m *mockCAL) WakeupSourceArmed(source string) bool {
	if m.fWakeupSourceArmed != nil {
		return m.fWakeupSourceArmed(source)
	}
	return false
}

func (m *mockCAL) ExtIntWakeMask() uint32 {
	return m.extIntMask
}

func (m *mockCAL) ReadReg(addr uint32) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.regs[addr], nil
}

func (m *mockCAL) WriteReg(addr uint32, val uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regs[addr] = val
	m.writes = append(m.writes, fmt.Sprintf("%#x=%#x", addr, val))
	return nil
}

// powerCalls returns logged calls other than core up/down.
func (m *mockCAL) powerCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for _, c := range m.calls {
		var cpu int
		if n, _ := fmt.Sscanf(c, "cpu-down %d", &cpu); n == 1 {
			continue
		}
		if n, _ := fmt.Sscanf(c, "cpu-up %d", &cpu); n == 1 {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (m *mockCAL) resetCalls() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.writes = nil
}

// mockXCall implements CrossCaller. If f is set it is called for every
// ForceReevaluate, e.g. to wake idle CPUs synchronously.
type mockXCall struct {
	mu    sync.Mutex
	calls []string
	f     func(cpus utils.IDSet)
}

func (x *mockXCall) ForceReevaluate(cpus utils.IDSet) {
	x.mu.Lock()
	x.calls = append(x.calls, cpus.String())
	f := x.f
	x.mu.Unlock()
	if f != nil {
		f(cpus)
	}
}

func (x *mockXCall) count() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.calls)
}

func us(n int) time.Duration {
	return time.Duration(n) * time.Microsecond
}

// far is a forecast wakeup beyond every target residency used in tests.
var far = us(1_000_000)

const twoClusterConfig = `
possibleCPUs: "0-3"
bootCPU: 0
powerModes:
- name: CLUSTER0
  type: cluster
  targetResidency: 100
  calID: 0
  siblings: "0-1"
- name: CLUSTER1
  type: cluster
  targetResidency: 100
  calID: 1
  siblings: "2-3"
- name: SICD
  type: system
  targetResidency: 1000
  calID: 10
  siblings: "0-3"
`

const singleCPUConfig = `
possibleCPUs: "0"
bootCPU: 0
powerModes:
- name: CLUSTER0
  type: cluster
  targetResidency: 100
  calID: 0
  siblings: "0"
`

func newTestEngine(t *testing.T, cfgData string, opts ...Option) (*Engine, *mockCAL, *mockXCall) {
	t.Helper()
	cfg, err := LoadConfigFromData([]byte(cfgData))
	require.NoError(t, err, "failed to parse test config")

	cal := newMockCAL()
	xcall := &mockXCall{}
	opts = append([]Option{WithLogger(cpupmlog.Discard())}, opts...)
	e, err := New(cfg, cal, xcall, opts...)
	require.NoError(t, err, "failed to create engine")
	return e, cal, xcall
}

func modeState(t *testing.T, e *Engine, name string) State {
	t.Helper()
	for _, m := range e.PowerModes() {
		if m.Name == name {
			return m.State
		}
	}
	t.Fatalf("power mode %q not found", name)
	return Busy
}

func modeInfo(t *testing.T, e *Engine, name string) PowerModeInfo {
	t.Helper()
	for _, m := range e.PowerModes() {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("power mode %q not found", name)
	return PowerModeInfo{}
}

func modeStats(t *testing.T, e *Engine, name string) ResidencyStats {
	t.Helper()
	ms, ok := e.Statistics().Mode(name)
	require.True(t, ok, "no statistics for power mode %q", name)
	return ms.ResidencyStats
}
