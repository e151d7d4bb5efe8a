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
	"log/slog"
	"sync"
	"sync/atomic"
)

// IdleIPKind tells where the idleness of an Idle-IP comes from.
type IdleIPKind int

const (
	// IdleIPInternal idleness is pushed by its producer with Update.
	IdleIPInternal IdleIPKind = iota
	// IdleIPExternal idleness is read live from a status register.
	IdleIPExternal
)

func (k IdleIPKind) String() string {
	if k == IdleIPExternal {
		return "external"
	}
	return "internal"
}

// MarshalText implements encoding.TextMarshaler.
func (k IdleIPKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IdleIPToken is returned by registration and is the only way to update
// the state of an Idle-IP. The zero value is not a valid token.
type IdleIPToken struct {
	reg   *IdleIPRegistry
	index int
}

// Index returns the registration index of the Idle-IP.
func (t IdleIPToken) Index() int {
	return t.index
}

// Valid returns true if the token was issued by a registry.
func (t IdleIPToken) Valid() bool {
	return t.reg != nil
}

type idleIP struct {
	name              string
	index             int
	kind              IdleIPKind
	requiresCoherency bool
	reader            StatusReader

	busy      atomic.Bool
	checks    atomic.Uint64
	busyCount atomic.Uint64
}

// IdleIPRegistry tracks auxiliary hardware blocks that must be idle before
// a shared-interconnect or system domain may power down.
type IdleIPRegistry struct {
	log *slog.Logger

	mu  sync.RWMutex
	ips []*idleIP

	checks    atomic.Uint64
	busyCount atomic.Uint64
}

func newIdleIPRegistry(log *slog.Logger) *IdleIPRegistry {
	return &IdleIPRegistry{log: log}
}

// Register adds an internal Idle-IP. The new Idle-IP starts busy.
func (r *IdleIPRegistry) Register(name string, requiresCoherency bool) IdleIPToken {
	return r.add(name, IdleIPInternal, requiresCoherency, nil)
}

// RegisterExternal adds an Idle-IP whose idleness is read through reader
// every time it is checked.
func (r *IdleIPRegistry) RegisterExternal(name string, requiresCoherency bool, reader StatusReader) IdleIPToken {
	return r.add(name, IdleIPExternal, requiresCoherency, reader)
}

func (r *IdleIPRegistry) add(name string, kind IdleIPKind, requiresCoherency bool, reader StatusReader) IdleIPToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	ip := &idleIP{
		name:              name,
		index:             len(r.ips),
		kind:              kind,
		requiresCoherency: requiresCoherency,
		reader:            reader,
	}
	ip.busy.Store(true)
	r.ips = append(r.ips, ip)

	r.log.Info("registered idle-ip", "name", name, "index", ip.index, "kind", kind, "requiresCoherency", requiresCoherency)
	return IdleIPToken{reg: r, index: ip.index}
}

// Update records the idleness pushed by the producer of an internal
// Idle-IP. Invalid tokens are logged and the update is dropped.
func (r *IdleIPRegistry) Update(t IdleIPToken, busy bool) {
	if t.reg != r {
		r.log.Warn("dropping idle-ip update with foreign or zero token", "index", t.index)
		return
	}

	r.mu.RLock()
	var ip *idleIP
	if t.index >= 0 && t.index < len(r.ips) {
		ip = r.ips[t.index]
	}
	r.mu.RUnlock()

	if ip == nil {
		r.log.Warn("dropping update of unknown idle-ip", "index", t.index)
		return
	}
	if ip.kind == IdleIPExternal {
		r.log.Warn("dropping update of external idle-ip", "name", ip.name, "index", ip.index)
		return
	}
	ip.busy.Store(busy)
}

// AnyBusy returns true if any Idle-IP relevant to a domain of the given
// kind is busy. Idle-IPs that do not require interconnect coherency are
// ignored for shared-interconnect domains.
//
// Every relevant Idle-IP is checked, not only up to the first busy one, to
// keep per-IP busy ratios meaningful.
func (r *IdleIPRegistry) AnyBusy(kind DomainKind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	anyBusy := false
	for _, ip := range r.ips {
		if kind == DomainSharedInterconnect && !ip.requiresCoherency {
			continue
		}
		busy := ip.busy.Load()
		if ip.kind == IdleIPExternal {
			busy = ip.reader.Busy()
			ip.busy.Store(busy)
		}
		ip.checks.Add(1)
		if busy {
			ip.busyCount.Add(1)
			anyBusy = true
		}
	}

	r.checks.Add(1)
	if anyBusy {
		r.busyCount.Add(1)
	}
	return anyBusy
}

// Len returns the number of registered Idle-IPs.
func (r *IdleIPRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ips)
}

func (r *IdleIPRegistry) stats() ([]IdleIPStats, IdleIPTotals) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]IdleIPStats, 0, len(r.ips))
	for _, ip := range r.ips {
		out = append(out, IdleIPStats{
			Name:              ip.name,
			Index:             ip.index,
			Kind:              ip.kind,
			RequiresCoherency: ip.requiresCoherency,
			Busy:              ip.busy.Load(),
			Checks:            ip.checks.Load(),
			BusyCount:         ip.busyCount.Load(),
		})
	}
	return out, IdleIPTotals{Checks: r.checks.Load(), BusyCount: r.busyCount.Load()}
}

func (r *IdleIPRegistry) resetStats() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ip := range r.ips {
		ip.checks.Store(0)
		ip.busyCount.Store(0)
	}
	r.checks.Store(0)
	r.busyCount.Store(0)
}
