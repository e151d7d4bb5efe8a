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

package utils

import (
	"fmt"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// Unknown represents an unknown id.
const Unknown ID = -1

// MaxID is the largest id accepted when parsing an id list.
const MaxID ID = 8191

// ID is nominally a CPU, cluster or power-mode id.
type ID = int

// IDSet is an unordered set of integer ids.
type IDSet sets.Set[ID]

// NewIDSet creates a new unordered set of (integer) ids.
func NewIDSet(ids ...ID) IDSet {
	return IDSet(sets.New[ID](ids...))
}

// NewIDSetFromString parses a Linux cpulist style string, e.g. "0-3,6,8-9",
// into an IDSet. An empty string yields an empty set.
func NewIDSetFromString(str string) (IDSet, error) {
	s := NewIDSet()
	str = strings.TrimSpace(str)
	if str == "" {
		return s, nil
	}
	for _, part := range strings.Split(str, ",") {
		part = strings.TrimSpace(part)
		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q in %q: %w", lo, str, err)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid id %q in %q: %w", hi, str, err)
			}
		}
		if first < 0 || last < first {
			return nil, fmt.Errorf("invalid id range %q in %q", part, str)
		}
		if last > MaxID {
			return nil, fmt.Errorf("id %d in %q exceeds maximum %d", last, str, MaxID)
		}
		for id := first; id <= last; id++ {
			s.Add(id)
		}
	}
	return s, nil
}

// Clone returns a copy of this IDSet.
func (s IDSet) Clone() IDSet {
	return IDSet(sets.Set[ID](s).Clone())
}

// Add adds the given ids into the set.
func (s IDSet) Add(ids ...ID) {
	sets.Set[ID](s).Insert(ids...)
}

// Del deletes the given ids from the set.
func (s IDSet) Del(ids ...ID) {
	sets.Set[ID](s).Delete(ids...)
}

// Size returns the number of ids in the set.
func (s IDSet) Size() int {
	return sets.Set[ID](s).Len()
}

// Has tests if all the ids are present in the set.
func (s IDSet) Has(ids ...ID) bool {
	return sets.Set[ID](s).HasAll(ids...)
}

// IsSubsetOf returns true if every id of s is also present in o.
func (s IDSet) IsSubsetOf(o IDSet) bool {
	return sets.Set[ID](o).IsSuperset(sets.Set[ID](s))
}

// Intersection returns the ids present in both s and o.
func (s IDSet) Intersection(o IDSet) IDSet {
	return IDSet(sets.Set[ID](s).Intersection(sets.Set[ID](o)))
}

// Members returns all ids in the set as a randomly ordered slice.
func (s IDSet) Members() []ID {
	return sets.Set[ID](s).UnsortedList()
}

// SortedMembers returns all ids in the set as a sorted slice.
func (s IDSet) SortedMembers() []ID {
	return sets.List(sets.Set[ID](s))
}

// String returns the set in cpulist notation, e.g. "0-3,6".
func (s IDSet) String() string {
	members := s.SortedMembers()
	parts := []string{}
	for i := 0; i < len(members); {
		j := i
		for j+1 < len(members) && members[j+1] == members[j]+1 {
			j++
		}
		switch {
		case i == j:
			parts = append(parts, strconv.Itoa(members[i]))
		default:
			parts = append(parts, strconv.Itoa(members[i])+"-"+strconv.Itoa(members[j]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
