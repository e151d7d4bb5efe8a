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

// Package tracebuf implements a fixed-capacity circular buffer that keeps
// the most recent records and silently overwrites the oldest ones.
//
// A Ring is not synchronized. Callers serialize Push against Records,
// typically by holding the lock that already guards the traced state.
package tracebuf

import "fmt"

// Ring holds the last Cap() records pushed into it.
type Ring[T any] struct {
	mask   uint64
	cursor uint64 // total number of records ever pushed
	buf    []T
}

// New allocates a ring of the given capacity. The capacity is rounded up
// to the next power of two so that the write cursor can be masked.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("tracebuf: invalid capacity %d", capacity))
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &Ring[T]{
		mask: uint64(size - 1),
		buf:  make([]T, size),
	}
}

// Push appends rec, overwriting the oldest record if the ring is full.
func (r *Ring[T]) Push(rec T) {
	r.buf[r.cursor&r.mask] = rec
	r.cursor++
}

// Cap returns the number of records the ring can hold.
func (r *Ring[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of records currently held.
func (r *Ring[T]) Len() int {
	if r.cursor < uint64(len(r.buf)) {
		return int(r.cursor)
	}
	return len(r.buf)
}

// Total returns the number of records pushed since creation or the last
// Reset, including overwritten ones.
func (r *Ring[T]) Total() uint64 {
	return r.cursor
}

// Records returns a copy of the held records, oldest first.
func (r *Ring[T]) Records() []T {
	n := r.Len()
	out := make([]T, 0, n)
	for seq := r.cursor - uint64(n); seq < r.cursor; seq++ {
		out = append(out, r.buf[seq&r.mask])
	}
	return out
}

// Reset drops all records.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.cursor = 0
}
