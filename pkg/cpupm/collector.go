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
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	modeLabels     = []string{"mode", "kind"}
	cpuStateLabels = []string{"cpu", "state"}
	idleIPLabels   = []string{"idle_ip", "kind"}

	descModeEntries = prometheus.NewDesc("cpupm_power_mode_entries_total",
		"Number of times the power mode was entered.", modeLabels, nil)
	descModeCancels = prometheus.NewDesc("cpupm_power_mode_cancels_total",
		"Number of cancelled or vetoed power mode entries.", modeLabels, nil)
	descModeResidency = prometheus.NewDesc("cpupm_power_mode_residency_seconds_total",
		"Time spent in the power mode.", modeLabels, nil)
	descModeIdle = prometheus.NewDesc("cpupm_power_mode_idle",
		"1 if the power mode is currently entered.", modeLabels, nil)
	descModeDisableCount = prometheus.NewDesc("cpupm_power_mode_disable_count",
		"Number of holds keeping the power mode disabled.", modeLabels, nil)

	descCPUStateEntries = prometheus.NewDesc("cpupm_cpu_idle_state_entries_total",
		"Number of times the CPU entered the idle state.", cpuStateLabels, nil)
	descCPUStateCancels = prometheus.NewDesc("cpupm_cpu_idle_state_cancels_total",
		"Number of cancelled entries into the idle state.", cpuStateLabels, nil)
	descCPUStateResidency = prometheus.NewDesc("cpupm_cpu_idle_state_residency_seconds_total",
		"Time the CPU spent in the idle state.", cpuStateLabels, nil)

	descIdleIPChecks = prometheus.NewDesc("cpupm_idle_ip_checks_total",
		"Number of times the Idle-IP was checked.", idleIPLabels, nil)
	descIdleIPBusy = prometheus.NewDesc("cpupm_idle_ip_busy_total",
		"Number of checks that found the Idle-IP busy.", idleIPLabels, nil)
)

type collector struct {
	e *Engine
}

// NewCollector returns a prometheus.Collector exporting the statistics of
// the engine.
func NewCollector(e *Engine) prometheus.Collector {
	return &collector{e: e}
}

// Describe method of the prometheus.Collector interface
func (c *collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descModeEntries, descModeCancels, descModeResidency, descModeIdle, descModeDisableCount,
		descCPUStateEntries, descCPUStateCancels, descCPUStateResidency,
		descIdleIPChecks, descIdleIPBusy,
	} {
		ch <- d
	}
}

// Collect method of the prometheus.Collector interface
func (c *collector) Collect(ch chan<- prometheus.Metric) {
	st := c.e.Statistics()
	for _, m := range st.Modes {
		lv := []string{m.Name, m.Kind.String()}
		ch <- prometheus.MustNewConstMetric(descModeEntries, prometheus.CounterValue, float64(m.EntryCount), lv...)
		ch <- prometheus.MustNewConstMetric(descModeCancels, prometheus.CounterValue, float64(m.CancelCount), lv...)
		ch <- prometheus.MustNewConstMetric(descModeResidency, prometheus.CounterValue, m.Residency.Seconds(), lv...)
	}

	for _, m := range c.e.PowerModes() {
		lv := []string{m.Name, m.Kind.String()}
		idle := 0.0
		if m.State == Idle {
			idle = 1
		}
		ch <- prometheus.MustNewConstMetric(descModeIdle, prometheus.GaugeValue, idle, lv...)
		ch <- prometheus.MustNewConstMetric(descModeDisableCount, prometheus.GaugeValue, float64(m.DisableCount), lv...)
	}

	for _, cs := range st.CPUStates {
		lv := []string{strconv.Itoa(cs.CPU), strconv.Itoa(cs.State)}
		ch <- prometheus.MustNewConstMetric(descCPUStateEntries, prometheus.CounterValue, float64(cs.EntryCount), lv...)
		ch <- prometheus.MustNewConstMetric(descCPUStateCancels, prometheus.CounterValue, float64(cs.CancelCount), lv...)
		ch <- prometheus.MustNewConstMetric(descCPUStateResidency, prometheus.CounterValue, cs.Residency.Seconds(), lv...)
	}

	for _, ip := range st.IdleIPs {
		lv := []string{ip.Name, ip.Kind.String()}
		ch <- prometheus.MustNewConstMetric(descIdleIPChecks, prometheus.CounterValue, float64(ip.Checks), lv...)
		ch <- prometheus.MustNewConstMetric(descIdleIPBusy, prometheus.CounterValue, float64(ip.BusyCount), lv...)
	}
}
