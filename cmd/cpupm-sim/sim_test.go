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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/intel/cpupm/pkg/cpupm"
	cpupmlog "github.com/intel/cpupm/pkg/log"
	"github.com/intel/cpupm/pkg/simhw"
	"github.com/intel/cpupm/pkg/utils"
)

func TestSampleConfig(t *testing.T) {
	cfg, err := cpupm.LoadConfigFromFile("sample-config.yaml")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
}

func TestSimulation(t *testing.T) {
	cfg, err := cpupm.LoadConfigFromFile("sample-config.yaml")
	require.NoError(t, err)
	cpus, err := utils.NewIDSetFromString(cfg.PossibleCPUs)
	require.NoError(t, err)

	hw := simhw.New(cpus)
	hw.LimitCallLog(16)
	e, err := cpupm.New(cfg, hw, hw,
		cpupm.WithLogger(cpupmlog.Discard()),
		cpupm.WithDeferredGracePeriod(20*time.Millisecond))
	require.NoError(t, err)
	e.Start()
	defer e.Stop()

	opts := defaultSimOptions()
	opts.maxBusy = 200 * time.Microsecond
	opts.maxIdle = 5 * time.Millisecond
	opts.hotplugInterval = 30 * time.Millisecond
	sim := newSimulator(e, hw, cpus, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	sim.run(ctx)

	for _, m := range e.PowerModes() {
		require.Equal(t, cpupm.Busy, m.State, "power mode %s left idle", m.Name)
	}
	require.Equal(t, hw.CountCalls(simhw.OpCPUDown), hw.CountCalls(simhw.OpCPUUp))
	require.Equal(t, hw.CountCalls(simhw.OpClusterDisable), hw.CountCalls(simhw.OpClusterEnable))
	require.Equal(t, hw.CountCalls(simhw.OpDomainDown),
		hw.CountCalls(simhw.OpDomainUp)+hw.CountCalls(simhw.OpEarlyWakeup))
	require.Greater(t, hw.CountCalls(simhw.OpCPUDown), 0)
	require.Equal(t, "0-7", e.CPUOnlineMask().String())
}

func TestSetupOTel(t *testing.T) {
	mp, err := setupOTel(context.Background(), "none", time.Second)
	require.NoError(t, err)
	require.Nil(t, mp)

	_, err = setupOTel(context.Background(), "carrier-pigeon", time.Second)
	require.Error(t, err)
}
