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
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/intel/cpupm/pkg/cpupm"
	cpupmlog "github.com/intel/cpupm/pkg/log"
	"github.com/intel/cpupm/pkg/simhw"
	"github.com/intel/cpupm/pkg/utils"
)

type simOptions struct {
	log             *slog.Logger
	seed            uint64
	pin             bool
	maxBusy         time.Duration
	maxIdle         time.Duration
	cancelRatio     float64
	hotplugInterval time.Duration
	idleStates      int
	idleIPs         []simIdleIP
}

type simIdleIP struct {
	name              string
	requiresCoherency bool
	busyRatio         float64
}

func defaultSimOptions() simOptions {
	return simOptions{
		log:         cpupmlog.Discard(),
		seed:        1,
		maxBusy:     2 * time.Millisecond,
		maxIdle:     10 * time.Millisecond,
		cancelRatio: 0.1,
		idleStates:  3,
		idleIPs: []simIdleIP{
			{name: "gpu", requiresCoherency: true, busyRatio: 0.3},
			{name: "audio", requiresCoherency: false, busyRatio: 0.5},
		},
	}
}

// simulator drives one goroutine per CPU through busy and idle periods
// on a shared monotonic clock.
type simulator struct {
	e     *cpupm.Engine
	hw    *simhw.Hardware
	cpus  []utils.ID
	opts  simOptions
	start time.Time

	idleIPs []cpupm.IdleIPToken
}

func newSimulator(e *cpupm.Engine, hw *simhw.Hardware, cpus utils.IDSet, opts simOptions) *simulator {
	s := &simulator{
		e:     e,
		hw:    hw,
		cpus:  cpus.SortedMembers(),
		opts:  opts,
		start: time.Now(),
	}
	for _, ip := range opts.idleIPs {
		s.idleIPs = append(s.idleIPs, e.IdleIPs().Register(ip.name, ip.requiresCoherency))
	}
	return s
}

func (s *simulator) now() time.Duration {
	return time.Since(s.start)
}

func (s *simulator) rng(stream uint64) *rand.Rand {
	return rand.New(rand.NewPCG(s.opts.seed, stream))
}

// run blocks until ctx is done and every CPU has left idle.
func (s *simulator) run(ctx context.Context) {
	var wg sync.WaitGroup
	for i, cpu := range s.cpus {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runCPU(ctx, cpu, s.rng(uint64(i)))
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runIdleIPs(ctx, s.rng(uint64(len(s.cpus))))
	}()

	if s.opts.hotplugInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runHotplug(ctx, s.rng(uint64(len(s.cpus)+1)))
		}()
	}

	wg.Wait()
}

func randDuration(rng *rand.Rand, max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int64N(int64(max)))
}

// sleep returns false if ctx is done before d has passed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *simulator) runCPU(ctx context.Context, cpu utils.ID, rng *rand.Rand) {
	log := s.opts.log.With("cpu", cpu)
	if s.opts.pin {
		if err := pinThread(cpu); err != nil {
			log.Warn("failed to pin simulated cpu", "err", err)
		}
	}
	wake := s.hw.Wake(cpu)

	for {
		if !sleep(ctx, randDuration(rng, s.opts.maxBusy)) {
			return
		}

		idle := randDuration(rng, s.opts.maxIdle)
		state := 1
		if s.opts.idleStates > 1 {
			state = 1 + rng.IntN(s.opts.idleStates-1)
		}
		now := s.now()
		effective := s.e.Enter(cpu, state, now+idle, now)
		if effective != state {
			log.Debug("idle state downgraded", "requested", state, "effective", effective)
		}

		if rng.Float64() < s.opts.cancelRatio {
			s.e.Exit(cpu, true, s.now())
			continue
		}

		t := time.NewTimer(idle)
		select {
		case <-t.C:
		case <-wake:
			log.Debug("woken by IPI")
		case <-ctx.Done():
		}
		t.Stop()
		s.e.Exit(cpu, false, s.now())

		if ctx.Err() != nil {
			return
		}
	}
}

func (s *simulator) runIdleIPs(ctx context.Context, rng *rand.Rand) {
	for {
		for i, tok := range s.idleIPs {
			s.e.IdleIPs().Update(tok, rng.Float64() < s.opts.idleIPs[i].busyRatio)
		}
		if !sleep(ctx, randDuration(rng, 4*s.opts.maxIdle)) {
			return
		}
	}
}

// runHotplug periodically takes a random CPU other than the first one
// offline for a while.
func (s *simulator) runHotplug(ctx context.Context, rng *rand.Rand) {
	if len(s.cpus) < 2 {
		return
	}
	for {
		if !sleep(ctx, s.opts.hotplugInterval) {
			return
		}
		cpu := s.cpus[1+rng.IntN(len(s.cpus)-1)]
		if err := s.e.CPUGoingOffline(cpu, s.now()); err != nil {
			s.opts.log.Error("hotplug failed", "cpu", cpu, "err", err)
			return
		}
		sleep(ctx, s.opts.hotplugInterval/2)
		if err := s.e.CPUOnline(cpu, s.now()); err != nil {
			s.opts.log.Error("hotplug failed", "cpu", cpu, "err", err)
			return
		}
	}
}
