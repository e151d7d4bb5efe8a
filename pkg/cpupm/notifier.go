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
	"sort"
	"sync"

	"github.com/intel/cpupm/pkg/utils"
)

// Event is a power-mode transition delivered to observers.
type Event int

const (
	EventClusterEnter Event = iota
	EventClusterExit
	EventSharedInterconnectEnter
	EventSharedInterconnectExit
	EventSystemEnter
	EventSystemExit
	EventCoreEnter
	EventCoreExit
)

var eventNames = map[Event]string{
	EventClusterEnter:            "cluster-enter",
	EventClusterExit:             "cluster-exit",
	EventSharedInterconnectEnter: "dsu-enter",
	EventSharedInterconnectExit:  "dsu-exit",
	EventSystemEnter:             "system-enter",
	EventSystemExit:              "system-exit",
	EventCoreEnter:               "core-enter",
	EventCoreExit:                "core-exit",
}

func (ev Event) String() string {
	if name, ok := eventNames[ev]; ok {
		return name
	}
	return fmt.Sprintf("Event(%d)", int(ev))
}

// IsEnter returns true for the events an observer may veto.
func (ev Event) IsEnter() bool {
	switch ev {
	case EventClusterEnter, EventSharedInterconnectEnter, EventSystemEnter, EventCoreEnter:
		return true
	}
	return false
}

func enterEvent(kind DomainKind) Event {
	return Event(int(kind) * 2)
}

func exitEvent(kind DomainKind) Event {
	return Event(int(kind)*2 + 1)
}

// EventInfo describes the transition an event is delivered for.
type EventInfo struct {
	CPU  utils.ID
	Mode string // empty for core events
	Kind DomainKind
}

// Observer receives power-mode transitions. Observers are called with the
// coordination lock held and must not call back into the Engine. A non-nil
// error returned for an enter event vetoes that entry.
type Observer interface {
	Notify(ev Event, info EventInfo) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ev Event, info EventInfo) error

// Notify implements Observer.
func (f ObserverFunc) Notify(ev Event, info EventInfo) error {
	return f(ev, info)
}

// ObserverHandle identifies a registered observer.
type ObserverHandle uint64

// VetoError is returned when an observer refuses an enter event.
type VetoError struct {
	Event Event
	Err   error
}

func (e *VetoError) Error() string {
	return fmt.Sprintf("%s vetoed: %v", e.Event, e.Err)
}

func (e *VetoError) Unwrap() error {
	return e.Err
}

type observerEntry struct {
	handle   ObserverHandle
	priority int
	observer Observer
}

// NotifierChain is an ordered list of observers. Observers with a higher
// priority are called first; equal priorities keep registration order.
type NotifierChain struct {
	mu         sync.RWMutex
	entries    []observerEntry
	lastHandle ObserverHandle
}

// NewNotifierChain creates an empty chain.
func NewNotifierChain() *NotifierChain {
	return &NotifierChain{}
}

// Register adds an observer to the chain.
func (c *NotifierChain) Register(o Observer, priority int) ObserverHandle {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastHandle++
	c.entries = append(c.entries, observerEntry{handle: c.lastHandle, priority: priority, observer: o})
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].priority > c.entries[j].priority
	})
	return c.lastHandle
}

// Unregister removes an observer. It returns false if the handle is unknown.
func (c *NotifierChain) Unregister(h ObserverHandle) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, e := range c.entries {
		if e.handle == h {
			c.entries = append(c.entries[:i], c.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered observers.
func (c *NotifierChain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// notify delivers ev to the chain. For enter events delivery stops at the
// first observer returning an error, which is returned as a *VetoError.
// Exit events cannot be refused: every observer is called and errors are
// dropped.
func (c *NotifierChain) notify(ev Event, info EventInfo) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, e := range c.entries {
		if err := e.observer.Notify(ev, info); err != nil && ev.IsEnter() {
			return &VetoError{Event: ev, Err: err}
		}
	}
	return nil
}
