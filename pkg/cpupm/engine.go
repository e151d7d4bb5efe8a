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

// Package cpupm coordinates power-domain entry and exit for a multi-cluster
// SoC from the CPU idle path.
//
// On every idle entry a CPU marks itself idle and, for each power mode it
// belongs to (cluster, then shared interconnect, then system), asks whether
// every condition for taking that domain down holds: all online siblings
// idle for long enough, no pending IPIs, no core in the middle of last-core
// detection, no busy cluster or Idle-IP for the upper domains and no
// observer veto. On idle exit, whatever was taken down is brought back up
// exactly once, whichever sibling wakes first.
//
// Basic usage example:
//
//	cfg, err := cpupm.LoadConfigFromFile("/etc/cpupm.yaml")
//	if err != nil {
//		return err
//	}
//	e, err := cpupm.New(cfg, hw, hw)
//	if err != nil {
//		return err
//	}
//	e.Start()
//	defer e.Stop()
//
//	// on the idle path of cpu
//	state = e.Enter(cpu, state, nextWake, now)
//	...
//	e.Exit(cpu, cancelled, now)
package cpupm

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	cpupmlog "github.com/intel/cpupm/pkg/log"
	"github.com/intel/cpupm/pkg/tracebuf"
	"github.com/intel/cpupm/pkg/utils"
)

// TraceAction is what happened in a trace record.
type TraceAction int

const (
	TraceEnter TraceAction = iota
	TraceExit
	TraceRefused
	TraceVetoed
)

func (a TraceAction) String() string {
	switch a {
	case TraceEnter:
		return "enter"
	case TraceExit:
		return "exit"
	case TraceRefused:
		return "refused"
	case TraceVetoed:
		return "vetoed"
	}
	return fmt.Sprintf("TraceAction(%d)", int(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a TraceAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// TraceCore is the Target of core-level trace records.
const TraceCore = "core"

// TraceRecord is one attempted core or power-mode transition.
type TraceRecord struct {
	Time      time.Duration `json:"time"`
	CPU       utils.ID      `json:"cpu"`
	Target    string        `json:"target"`
	Action    TraceAction   `json:"action"`
	State     int           `json:"state,omitempty"`
	Cancelled bool          `json:"cancelled,omitempty"`
}

const noState = -1

// cpuState is the per-CPU record. busy, nextWake, online and inHotplug are
// read cross-CPU without the coordination lock.
type cpuState struct {
	id    utils.ID
	modes [numDomainKinds]*PowerMode

	busy      atomic.Int32
	nextWake  atomic.Int64
	online    atomic.Bool
	inHotplug atomic.Bool

	// Written only by the owning CPU.
	idling       bool
	enteredState int
	entryStart   time.Duration
}

// Engine is the power-mode coordination engine. It owns the power mode
// registry, the Idle-IP registry, the observer chain and the statistics.
type Engine struct {
	log   *slog.Logger
	cal   CAL
	xcall CrossCaller

	// Read-only after New.
	modes       []*PowerMode
	modesByName map[string]*PowerMode
	cpus        map[utils.ID]*cpuState
	bootCPU     utils.ID
	wakeup      WakeupMaskConfig

	idleIPs  *IdleIPRegistry
	notifier *NotifierChain

	// mu is the coordination lock. It serializes idle entry and exit of
	// all CPUs, hotplug transitions and statistics access.
	mu              sync.Mutex
	stats           *statsCollector
	trace           *tracebuf.Ring[TraceRecord]
	lowPowerDomains int

	policyMu      sync.Mutex
	deferredGrace time.Duration
	timers        []*time.Timer
	started       bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger of the engine.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// WithDeferredGracePeriod overrides the configured grace period of
// deferred power modes.
func WithDeferredGracePeriod(d time.Duration) Option {
	return func(e *Engine) {
		e.deferredGrace = d
	}
}

// New creates an engine for the given configuration. Power modes and
// Idle-IPs with configuration problems are logged and left out.
func New(cfg *Config, cal CAL, xcall CrossCaller, opts ...Option) (*Engine, error) {
	conf, err := cfg.resolve()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	e := &Engine{
		log:           cpupmlog.NewLogger("cpupm", slog.LevelInfo),
		cal:           cal,
		xcall:         xcall,
		modesByName:   map[string]*PowerMode{},
		cpus:          map[utils.ID]*cpuState{},
		bootCPU:       conf.bootCPU,
		wakeup:        conf.wakeup,
		notifier:      NewNotifierChain(),
		trace:         tracebuf.New[TraceRecord](conf.traceDepth),
		deferredGrace: conf.deferredGrace,
	}
	for _, o := range opts {
		o(e)
	}
	e.idleIPs = newIdleIPRegistry(e.log)

	for _, err := range conf.skipped.WrappedErrors() {
		e.log.Warn("ignoring invalid configuration entry", "err", err)
	}

	for _, cpu := range conf.possibleCPUs.SortedMembers() {
		c := &cpuState{id: cpu, enteredState: noState}
		c.busy.Store(int32(Busy))
		c.online.Store(true)
		e.cpus[cpu] = c
	}

	for _, rm := range conf.modes {
		m := newPowerMode(len(e.modes), rm)
		for _, cpu := range m.siblings.SortedMembers() {
			c := e.cpus[cpu]
			c.modes[m.kind] = m
			m.members = append(m.members, c)
		}
		e.modes = append(e.modes, m)
		e.modesByName[m.name] = m
		if m.deferred && !m.inert() {
			// Held until the grace timer armed by Start fires.
			m.disableCount.Add(1)
		}
		e.log.Debug("power mode configured", "mode", m.name, "kind", m.kind, "siblings", m.siblings, "entryAllowed", m.entryAllowed)
	}
	e.stats = newStatsCollector(e.modes)

	for _, ip := range conf.idleIPs {
		e.idleIPs.RegisterExternal(ip.Name, ip.RequiresCoherency, &registerStatus{io: cal, reg: ip.StatusReg, mask: ip.BusyMask, log: e.log})
	}

	return e, nil
}

// registerStatus reads the idleness of an Idle-IP from a status register.
// Unreadable registers report busy.
type registerStatus struct {
	io   RegisterIO
	reg  uint32
	mask uint32
	log  *slog.Logger
}

func (r *registerStatus) Busy() bool {
	val, err := r.io.ReadReg(r.reg)
	if err != nil {
		r.log.Warn("failed to read idle-ip status", "reg", fmt.Sprintf("%#x", r.reg), "err", err)
		return true
	}
	return val&r.mask != 0
}

// Start arms the grace timers of deferred power modes, which stay
// disabled from New until their timer fires. It has no effect after the
// first call.
func (e *Engine) Start() {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	if e.started {
		return
	}
	e.started = true

	for _, m := range e.modes {
		if !m.deferred || m.inert() {
			continue
		}
		e.log.Info("deferring power mode", "mode", m.name, "grace", e.deferredGrace)
		e.timers = append(e.timers, time.AfterFunc(e.deferredGrace, func() {
			e.enablePowerMode(m)
			e.log.Info("deferred power mode enabled", "mode", m.name)
		}))
	}
}

// Stop cancels pending deferred enables.
func (e *Engine) Stop() {
	e.policyMu.Lock()
	defer e.policyMu.Unlock()

	for _, t := range e.timers {
		t.Stop()
	}
	e.timers = nil
}

// IdleIPs returns the Idle-IP registry of the engine.
func (e *Engine) IdleIPs() *IdleIPRegistry {
	return e.idleIPs
}

// Notifier returns the observer chain of the engine.
func (e *Engine) Notifier() *NotifierChain {
	return e.notifier
}

// Enter is called on the idle path of cpu once the idle state has been
// chosen. nextWake is the forecast wakeup time and now the current time,
// both on the same monotonic clock. It returns the idle state the CPU
// should actually enter.
func (e *Engine) Enter(cpu utils.ID, state int, nextWake, now time.Duration) int {
	c, ok := e.cpus[cpu]
	if !ok {
		return ShallowState
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if c.inHotplug.Load() {
		return ShallowState
	}
	c.nextWake.Store(int64(nextWake))
	mustCAL("cpu down", e.cal.CPUDown(cpu))
	c.busy.Store(int32(Idle))
	c.idling = true
	c.enteredState = state
	c.entryStart = now
	e.stats.cpuEnter(cpu, state)
	e.trace.Push(TraceRecord{Time: now, CPU: cpu, Target: TraceCore, Action: TraceEnter, State: state})

	// The scheduler has already committed the core to idle.
	if err := e.notifier.notify(EventCoreEnter, EventInfo{CPU: cpu}); err != nil {
		e.log.Debug("ignoring core-enter veto", "cpu", cpu, "err", err)
	}

	for _, m := range c.modes {
		if m == nil || m.state == Idle {
			continue
		}
		if !e.entryAllowed(c, m, now) {
			e.trace.Push(TraceRecord{Time: now, CPU: cpu, Target: m.name, Action: TraceRefused})
			continue
		}
		if !e.enterPowerMode(c, m, now) {
			continue
		}
		m.state = Idle
	}

	return state
}

// Exit is called once for every Enter when cpu leaves idle. cancelled is
// set if the idle period was cut short before the CPU really slept. Only
// power modes that are actually idle are brought back up, so Exit is
// safe whatever point Enter reached.
func (e *Engine) Exit(cpu utils.ID, cancelled bool, now time.Duration) {
	c, ok := e.cpus[cpu]
	if !ok {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.exitLocked(c, cancelled, now)
}

func (e *Engine) exitLocked(c *cpuState, cancelled bool, now time.Duration) {
	if !c.idling {
		return
	}

	for kind := numDomainKinds - 1; kind >= 0; kind-- {
		m := c.modes[kind]
		if m == nil || m.state != Idle {
			continue
		}
		e.exitPowerMode(c, m, cancelled, now)
		m.state = Busy
	}

	c.busy.Store(int32(Busy))
	mustCAL("cpu up", e.cal.CPUUp(c.id))
	e.stats.cpuExit(c.id, c.enteredState, cancelled, now-c.entryStart)
	e.trace.Push(TraceRecord{Time: now, CPU: c.id, Target: TraceCore, Action: TraceExit, State: c.enteredState, Cancelled: cancelled})
	_ = e.notifier.notify(EventCoreExit, EventInfo{CPU: c.id})

	c.idling = false
	c.enteredState = noState
}

// Trace returns the most recent transition records, oldest first.
func (e *Engine) Trace() []TraceRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.trace.Records()
}

// Statistics returns a copy of all counters.
func (e *Engine) Statistics() *Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statisticsLocked()
}

func (e *Engine) statisticsLocked() *Statistics {
	ips, totals := e.idleIPs.stats()
	return e.stats.snapshot(ips, totals)
}

// ResetStatistics zeroes all counters and ends a running profiling
// session.
func (e *Engine) ResetStatistics() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats.reset()
	e.idleIPs.resetStats()
}

// StartProfiling records the baseline of a profiling session.
func (e *Engine) StartProfiling(now time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stats.profiling {
		return fmt.Errorf("profiling already in progress")
	}
	e.stats.baseline = e.statisticsLocked()
	e.stats.profileStart = now
	e.stats.profiling = true
	return nil
}

// StopProfiling ends the profiling session and returns the counter
// changes since StartProfiling.
func (e *Engine) StopProfiling(now time.Duration) (*Profile, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.stats.profiling {
		return nil, fmt.Errorf("profiling not in progress")
	}
	delta := e.statisticsLocked().delta(e.stats.baseline)
	p := &Profile{Start: e.stats.profileStart, End: now, Statistics: *delta}
	e.stats.profiling = false
	e.stats.baseline = nil
	return p, nil
}

// Profiling returns true while a profiling session is running.
func (e *Engine) Profiling() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats.profiling
}
