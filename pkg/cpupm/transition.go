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
	"errors"
	"time"

	"github.com/intel/cpupm/pkg/utils"
)

// enterPowerMode performs the hardware hand-off that takes m down. It
// returns false if an observer vetoed the entry, in which case nothing has
// been touched. The caller flips m to Idle only after a successful return.
func (e *Engine) enterPowerMode(c *cpuState, m *PowerMode, now time.Duration) bool {
	info := EventInfo{CPU: c.id, Mode: m.name, Kind: m.kind}

	if err := e.notifier.notify(enterEvent(m.kind), info); err != nil {
		e.stats.modeVeto(m)
		e.trace.Push(TraceRecord{Time: now, CPU: c.id, Target: m.name, Action: TraceVetoed})
		var veto *VetoError
		if errors.As(err, &veto) {
			e.log.Debug("power mode entry vetoed", "cpu", c.id, "mode", m.name, "err", veto.Err)
		}
		return false
	}

	switch m.kind {
	case DomainCluster:
		mustCAL("cluster disable", e.cal.ClusterDisable(m.calID))
	default:
		if e.lowPowerDomains == 0 {
			e.wakeup.program(e.cal)
		}
		e.lowPowerDomains++
		mustCAL(m.kind.String()+" down", e.cal.DomainDown(m.kind, m.calID))
	}

	m.entryTime = now
	m.enteredBy = c.id
	e.stats.modeEnter(m)
	e.trace.Push(TraceRecord{Time: now, CPU: c.id, Target: m.name, Action: TraceEnter})
	return true
}

// exitPowerMode powers m back up. The caller flips m to Busy after it
// returns. Exit cannot be refused by observers.
func (e *Engine) exitPowerMode(c *cpuState, m *PowerMode, cancelled bool, now time.Duration) {
	e.stats.modeExit(m, cancelled, now-m.entryTime)

	switch m.kind {
	case DomainCluster:
		mustCAL("cluster enable", e.cal.ClusterEnable(m.calID))
	default:
		mustCAL(m.kind.String()+" up", e.cal.DomainUp(m.kind, m.calID, cancelled))
		e.lowPowerDomains--
	}

	m.enteredBy = utils.Unknown
	e.trace.Push(TraceRecord{Time: now, CPU: c.id, Target: m.name, Action: TraceExit, Cancelled: cancelled})
	_ = e.notifier.notify(exitEvent(m.kind), EventInfo{CPU: c.id, Mode: m.name, Kind: m.kind})
}
