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
	"slices"
	"time"

	"golang.org/x/exp/maps"

	"github.com/intel/cpupm/pkg/utils"
)

// ResidencyStats counts entries into an idle state or power mode.
// Residency accumulates only over completed (not cancelled) periods.
type ResidencyStats struct {
	EntryCount  uint64        `json:"entryCount"`
	CancelCount uint64        `json:"cancelCount"`
	Residency   time.Duration `json:"residency"`
}

func (s ResidencyStats) sub(o ResidencyStats) ResidencyStats {
	return ResidencyStats{
		EntryCount:  s.EntryCount - o.EntryCount,
		CancelCount: s.CancelCount - o.CancelCount,
		Residency:   s.Residency - o.Residency,
	}
}

func (s *ResidencyStats) exit(cancelled bool, d time.Duration) {
	if cancelled {
		s.CancelCount++
		return
	}
	s.Residency += d
}

// ModeStats are the statistics of one power mode.
type ModeStats struct {
	Name string     `json:"name"`
	Kind DomainKind `json:"kind"`
	ResidencyStats
}

// CPUStateStats are the statistics of one idle state of one CPU.
type CPUStateStats struct {
	CPU   utils.ID `json:"cpu"`
	State int      `json:"state"`
	ResidencyStats
}

// IdleIPStats are the check counters of one Idle-IP.
type IdleIPStats struct {
	Name              string     `json:"name"`
	Index             int        `json:"index"`
	Kind              IdleIPKind `json:"kind"`
	RequiresCoherency bool       `json:"requiresCoherency"`
	Busy              bool       `json:"busy"`
	Checks            uint64     `json:"checks"`
	BusyCount         uint64     `json:"busyCount"`
}

// BusyRatio returns the share of checks that found the Idle-IP busy.
func (s IdleIPStats) BusyRatio() float64 {
	if s.Checks == 0 {
		return 0
	}
	return float64(s.BusyCount) / float64(s.Checks)
}

// IdleIPTotals count Idle-IP checks over all Idle-IPs.
type IdleIPTotals struct {
	Checks    uint64 `json:"checks"`
	BusyCount uint64 `json:"busyCount"`
}

// Statistics is a point-in-time copy of all engine counters.
type Statistics struct {
	Modes        []ModeStats     `json:"modes"`
	CPUStates    []CPUStateStats `json:"cpuStates"`
	IdleIPs      []IdleIPStats   `json:"idleIPs"`
	IdleIPTotals IdleIPTotals    `json:"idleIPTotals"`
}

// Mode returns the statistics of the named power mode.
func (s *Statistics) Mode(name string) (ModeStats, bool) {
	for _, m := range s.Modes {
		if m.Name == name {
			return m, true
		}
	}
	return ModeStats{}, false
}

// CPUState returns the statistics of one idle state of one CPU.
func (s *Statistics) CPUState(cpu utils.ID, state int) (CPUStateStats, bool) {
	for _, cs := range s.CPUStates {
		if cs.CPU == cpu && cs.State == state {
			return cs, true
		}
	}
	return CPUStateStats{}, false
}

// delta returns s minus base. Entries missing from base count from zero.
func (s *Statistics) delta(base *Statistics) *Statistics {
	d := &Statistics{
		IdleIPTotals: IdleIPTotals{
			Checks:    s.IdleIPTotals.Checks - base.IdleIPTotals.Checks,
			BusyCount: s.IdleIPTotals.BusyCount - base.IdleIPTotals.BusyCount,
		},
	}
	for _, m := range s.Modes {
		bm, _ := base.Mode(m.Name)
		d.Modes = append(d.Modes, ModeStats{Name: m.Name, Kind: m.Kind, ResidencyStats: m.sub(bm.ResidencyStats)})
	}
	for _, cs := range s.CPUStates {
		bcs, _ := base.CPUState(cs.CPU, cs.State)
		d.CPUStates = append(d.CPUStates, CPUStateStats{CPU: cs.CPU, State: cs.State, ResidencyStats: cs.sub(bcs.ResidencyStats)})
	}
	for _, ip := range s.IdleIPs {
		dip := ip
		for _, bip := range base.IdleIPs {
			if bip.Index == ip.Index {
				dip.Checks -= bip.Checks
				dip.BusyCount -= bip.BusyCount
				break
			}
		}
		d.IdleIPs = append(d.IdleIPs, dip)
	}
	return d
}

// Profile holds the counter deltas of one profiling session.
type Profile struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
	Statistics
}

// Duration returns the length of the profiling session.
func (p *Profile) Duration() time.Duration {
	return p.End - p.Start
}

// statsCollector is guarded by the engine coordination lock.
type statsCollector struct {
	modes     []ModeStats
	cpuStates map[utils.ID][]ResidencyStats

	profiling    bool
	profileStart time.Duration
	baseline     *Statistics
}

func newStatsCollector(modes []*PowerMode) *statsCollector {
	s := &statsCollector{cpuStates: map[utils.ID][]ResidencyStats{}}
	for _, m := range modes {
		s.modes = append(s.modes, ModeStats{Name: m.name, Kind: m.kind})
	}
	return s
}

func (s *statsCollector) modeEnter(m *PowerMode) {
	s.modes[m.index].EntryCount++
}

func (s *statsCollector) modeExit(m *PowerMode, cancelled bool, d time.Duration) {
	s.modes[m.index].exit(cancelled, d)
}

// modeVeto counts a vetoed entry as a cancellation without an entry.
func (s *statsCollector) modeVeto(m *PowerMode) {
	s.modes[m.index].CancelCount++
}

func (s *statsCollector) cpuState(cpu utils.ID, state int) *ResidencyStats {
	if state < 0 {
		return nil
	}
	states := s.cpuStates[cpu]
	if len(states) <= state {
		states = append(states, make([]ResidencyStats, state+1-len(states))...)
		s.cpuStates[cpu] = states
	}
	return &states[state]
}

func (s *statsCollector) cpuEnter(cpu utils.ID, state int) {
	if rs := s.cpuState(cpu, state); rs != nil {
		rs.EntryCount++
	}
}

func (s *statsCollector) cpuExit(cpu utils.ID, state int, cancelled bool, d time.Duration) {
	if rs := s.cpuState(cpu, state); rs != nil {
		rs.exit(cancelled, d)
	}
}

func (s *statsCollector) snapshot(ips []IdleIPStats, totals IdleIPTotals) *Statistics {
	st := &Statistics{
		Modes:        slices.Clone(s.modes),
		IdleIPs:      ips,
		IdleIPTotals: totals,
	}
	cpus := maps.Keys(s.cpuStates)
	slices.Sort(cpus)
	for _, cpu := range cpus {
		for state, rs := range s.cpuStates[cpu] {
			st.CPUStates = append(st.CPUStates, CPUStateStats{CPU: cpu, State: state, ResidencyStats: rs})
		}
	}
	return st
}

func (s *statsCollector) reset() {
	for i := range s.modes {
		s.modes[i].ResidencyStats = ResidencyStats{}
	}
	s.cpuStates = map[utils.ID][]ResidencyStats{}
	s.profiling = false
	s.baseline = nil
}
