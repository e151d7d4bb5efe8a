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

import "time"

// entryAllowed decides whether c may take mode m down. It has no hardware
// side effects and must be called with the coordination lock held.
//
// Checks are short-circuited from the cheapest to the most expensive;
// the result is their conjunction.
func (e *Engine) entryAllowed(c *cpuState, m *PowerMode, now time.Duration) bool {
	if m.disableCount.Load() > 0 {
		return false
	}
	if !m.entryAllowed.Has(c.id) {
		return false
	}
	if !e.siblingsIdle(m, now) {
		return false
	}
	if e.lastCoreDetecting(c, m) {
		return false
	}
	if m.kind != DomainCluster {
		if e.clusterBusy() {
			return false
		}
		if e.idleIPs.AnyBusy(m.kind) {
			return false
		}
	}
	return true
}

// siblingsIdle returns true if every online sibling of m is idle, expects
// to sleep at least the target residency of m and has no IPI pending.
func (e *Engine) siblingsIdle(m *PowerMode, now time.Duration) bool {
	for _, sib := range m.members {
		if !sib.online.Load() {
			continue
		}
		if State(sib.busy.Load()) != Idle {
			return false
		}
		if time.Duration(sib.nextWake.Load())-now < m.targetResidency {
			return false
		}
		if e.cal.IPIPending(sib.id) {
			return false
		}
	}
	return true
}

// lastCoreDetecting returns true if a sibling other than c is still
// resolving whether it is the last core going idle.
func (e *Engine) lastCoreDetecting(c *cpuState, m *PowerMode) bool {
	for _, sib := range m.members {
		if sib == c || !sib.online.Load() {
			continue
		}
		if e.cal.LastCoreDetecting(sib.id) {
			return true
		}
	}
	return false
}

// clusterBusy returns true if a cluster other than the one of the boot CPU
// has online CPUs but is not powered down.
func (e *Engine) clusterBusy() bool {
	for _, m := range e.modes {
		if m.kind != DomainCluster || m.siblings.Has(e.bootCPU) {
			continue
		}
		if m.state == Busy && m.anyOnline() {
			return true
		}
	}
	return false
}
