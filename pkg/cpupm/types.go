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
	"strings"
)

// DomainKind is the kind of a power domain above a single core. The order
// of the constants is the order in which domains are entered.
type DomainKind int

const (
	// DomainCluster is a CPU cluster.
	DomainCluster DomainKind = iota
	// DomainSharedInterconnect is the shared interconnect (DSU) above clusters.
	DomainSharedInterconnect
	// DomainSystem is the whole SoC.
	DomainSystem

	numDomainKinds
)

var domainKindNames = [numDomainKinds]string{
	DomainCluster:            "cluster",
	DomainSharedInterconnect: "dsu",
	DomainSystem:             "system",
}

func (k DomainKind) String() string {
	if k < 0 || k >= numDomainKinds {
		return fmt.Sprintf("DomainKind(%d)", int(k))
	}
	return domainKindNames[k]
}

// MarshalText implements encoding.TextMarshaler.
func (k DomainKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ParseDomainKind converts a configuration string into a DomainKind.
func ParseDomainKind(s string) (DomainKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cluster", "cpd":
		return DomainCluster, nil
	case "dsu", "shared-interconnect", "interconnect":
		return DomainSharedInterconnect, nil
	case "system", "sicd":
		return DomainSystem, nil
	}
	return -1, fmt.Errorf("unknown power mode type %q", s)
}

// State is the busy/idle state of a CPU or of a power domain.
type State int32

const (
	Busy State = iota
	Idle
)

func (s State) String() string {
	switch s {
	case Busy:
		return "busy"
	case Idle:
		return "idle"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ShallowState is the idle state index that involves no power-domain
// coordination. Enter returns it when deeper idle must be suppressed.
const ShallowState = 0
