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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cpupmlog "github.com/intel/cpupm/pkg/log"
	"github.com/intel/cpupm/pkg/testutils"
)

func TestConfigValidate(t *testing.T) {
	tcases := []struct {
		name               string
		data               string
		fatal              bool
		expectedErrCount   int
		expectedSubstrings []string
	}{
		{
			name: "two clusters and system",
			data: twoClusterConfig,
		},
		{
			name: "aliases and explicit entry set",
			data: `
possibleCPUs: "0-3"
bootCPU: 1
deferredGracePeriod: 5s
powerModes:
- name: CPD0
  type: CPD
  calID: 0
  siblings: "0-3"
  entryAllowed: "2,3"
- name: DSU
  type: shared-interconnect
  calID: 1
  siblings: "0-3"
- name: SICD
  type: sicd
  calID: 2
  siblings: "0-3"
  deferred: true
`,
		},
		{
			name:               "reversed possible cpus",
			data:               `possibleCPUs: "3-1"`,
			fatal:              true,
			expectedErrCount:   1,
			expectedSubstrings: []string{"invalid possibleCPUs"},
		},
		{
			name:               "no possible cpus",
			data:               `possibleCPUs: ""`,
			fatal:              true,
			expectedErrCount:   1,
			expectedSubstrings: []string{"no possible CPUs"},
		},
		{
			name: "boot cpu not possible",
			data: `
possibleCPUs: "0-3"
bootCPU: 8
`,
			fatal:              true,
			expectedErrCount:   1,
			expectedSubstrings: []string{"boot cpu 8"},
		},
		{
			name: "faulty entries",
			data: `
possibleCPUs: "0-3"
bootCPU: 0
powerModes:
- type: cluster
  calID: 0
  siblings: "0-1"
- name: BAD-TYPE
  type: core
  calID: 0
  siblings: "0-1"
- name: NO-CALID
  type: cluster
  siblings: "0-1"
- name: NO-SIBLINGS
  type: cluster
  calID: 0
  siblings: ""
- name: IMPOSSIBLE
  type: cluster
  calID: 0
  siblings: "0-9"
- name: NOT-SUBSET
  type: cluster
  calID: 0
  siblings: "0-1"
  entryAllowed: "2"
- name: CLUSTER0
  type: cluster
  calID: 0
  siblings: "0-1"
- name: CLUSTER0
  type: cluster
  calID: 1
  siblings: "2-3"
- name: OVERLAP
  type: cluster
  calID: 2
  siblings: "1-2"
wakeupMask:
  masks:
  - maskReg: 0x100
    statReg: 0x104
    checklist:
    - bit: 40
      source: rtc
idleIPs:
- name: usb
  statusReg: 0x300
- statusReg: 0x304
  busyMask: 1
`,
			expectedErrCount: 11,
			expectedSubstrings: []string{
				"power mode #0",
				"missing name",
				`unknown power mode type "core"`,
				"missing calID",
				"no siblings",
				"are not all possible CPUs",
				"is not a subset of siblings",
				"duplicate power mode name",
				`already belongs to cluster mode "CLUSTER0"`,
				"bit 40 out of range",
				"empty busyMask",
				"idle-ip #1: missing name",
			},
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfigFromData([]byte(tc.data))
			require.NoError(t, err)

			err = cfg.Validate()
			testutils.VerifyError(t, err, tc.expectedErrCount, tc.expectedSubstrings)

			e, err := New(cfg, newMockCAL(), &mockXCall{}, WithLogger(cpupmlog.Discard()))
			if tc.fatal {
				require.Error(t, err)
				require.Nil(t, e)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestConfigSkipsFaultyPowerModes(t *testing.T) {
	const data = `
possibleCPUs: "0-1"
bootCPU: 0
powerModes:
- name: CLUSTER0
  type: cluster
  targetResidency: 100
  calID: 0
  siblings: "0-1"
- name: BROKEN
  type: system
  siblings: "0-1"
`
	e, _, _ := newTestEngine(t, data)
	modes := e.PowerModes()
	require.Len(t, modes, 1)
	require.Equal(t, PowerModeInfo{
		Name:            "CLUSTER0",
		Kind:            DomainCluster,
		State:           Busy,
		TargetResidency: 100 * time.Microsecond,
		CalID:           0,
		Siblings:        "0-1",
		EntryAllowed:    "0-1",
		UserEnabled:     true,
	}, modes[0])
}

func TestConfigRejectsTargetResidencyOverflow(t *testing.T) {
	const data = `
possibleCPUs: "0"
bootCPU: 0
powerModes:
- name: CLUSTER0
  type: cluster
  targetResidency: 18446744073709551615
  calID: 0
  siblings: "0"
- name: CLUSTER1
  type: cluster
  targetResidency: 9223372036854775
  calID: 1
  siblings: "0"
`
	cfg, err := LoadConfigFromData([]byte(data))
	require.NoError(t, err)
	conf, err := cfg.resolve()
	require.NoError(t, err)
	require.Len(t, conf.modes, 1)
	require.Equal(t, "CLUSTER1", conf.modes[0].name)
	require.Equal(t, time.Duration(9223372036854775)*time.Microsecond, conf.modes[0].targetResidency)
	require.ErrorContains(t, conf.skipped.ErrorOrNil(), "targetResidency")
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := LoadConfigFromData([]byte(singleCPUConfig))
	require.NoError(t, err)
	conf, err := cfg.resolve()
	require.NoError(t, err)
	require.Equal(t, DefaultDeferredGracePeriod, conf.deferredGrace)
	require.Equal(t, DefaultTraceDepth, conf.traceDepth)
	require.NoError(t, conf.skipped.ErrorOrNil())
}

func TestLoadConfigFromFile(t *testing.T) {
	path := testutils.CreateTempFile(t, "cpupm.yaml", `
possibleCPUs: "0-7"
bootCPU: 0
deferredGracePeriod: 1m30s
traceDepth: 100
powerModes:
- name: SICD
  type: system
  targetResidency: 2000
  calID: 3
  siblings: "0-7"
idleIPs:
- name: modem
  statusReg: 0x400
  busyMask: 0x3
  requiresCoherency: true
`)
	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	require.Equal(t, Duration(90*time.Second), cfg.DeferredGracePeriod)
	require.Equal(t, uint32(3), *cfg.PowerModes[0].CalID)
	require.Equal(t, []IdleIPConfig{{Name: "modem", StatusReg: 0x400, BusyMask: 0x3, RequiresCoherency: true}}, cfg.IdleIPs)

	_, err = LoadConfigFromFile(path + ".missing")
	require.Error(t, err)

	_, err = LoadConfigFromData([]byte("possibleCPUs: \"0\"\nbogus: 1\n"))
	require.Error(t, err, "unknown fields must be rejected")
	_, err = LoadConfigFromData([]byte("deferredGracePeriod: forever\n"))
	require.Error(t, err)
}

func TestRegisterStatusIdleIP(t *testing.T) {
	const data = `
possibleCPUs: "0"
bootCPU: 0
powerModes:
- name: SICD
  type: system
  targetResidency: 1000
  calID: 3
  siblings: "0"
idleIPs:
- name: modem
  statusReg: 0x400
  busyMask: 0x3
`
	e, cal, _ := newTestEngine(t, data)
	require.Equal(t, 1, e.IdleIPs().Len())

	require.NoError(t, cal.WriteReg(0x400, 0x2))
	e.Enter(0, 1, far, 0)
	require.Equal(t, Busy, modeState(t, e, "SICD"))
	e.Exit(0, true, us(1))

	require.NoError(t, cal.WriteReg(0x400, 0x4))
	e.Enter(0, 1, far, us(2))
	require.Equal(t, Idle, modeState(t, e, "SICD"))
}
