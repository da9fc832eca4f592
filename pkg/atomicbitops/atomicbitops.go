// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package atomicbitops provides single-word atomic operations on memory
// shared between the two cores.
//
// Every operation is expressed in terms of the Memory interface, which
// models the instructions a core has for touching shared memory: aligned
// plain loads and stores, the exclusive load and conditional store pair,
// the monitor clear, and a full data memory barrier. All operations are
// bracketed by barriers, so ordinary memory accesses around them are not
// reordered across the operation as observed by the other core.
package atomicbitops

import (
	"gvisor.dev/dualcore/pkg/metric"
)

// Word is a 32-bit shared memory cell.
//
// Once a Word is visible to the other core it must only be accessed through
// the functions in this package.
type Word struct {
	value uint32
}

// FromUint32 returns a Word initialized to v. It is meant for static
// initialization before the Word is published.
func FromUint32(v uint32) Word {
	return Word{value: v}
}

// Ptr returns the address of the underlying cell. It exists for Memory
// implementations only.
func (w *Word) Ptr() *uint32 {
	return &w.value
}

// Memory is the view of shared memory from one execution context.
//
// LoadExclusive and StoreExclusive behave like LDREX and STREX: the
// conditional store commits only if no other observer has written the word
// since the exclusive load, and reports whether it committed. The
// reservation belongs to the execution context that owns the Memory.
type Memory interface {
	// Load reads w with a single aligned access.
	Load(w *Word) uint32

	// Store writes w with a single aligned access.
	Store(w *Word, v uint32)

	// LoadExclusive reads w and marks it for exclusive access.
	LoadExclusive(w *Word) uint32

	// StoreExclusive writes v to w if the exclusive reservation still
	// holds and returns true if the store committed.
	StoreExclusive(w *Word, v uint32) bool

	// ClearExclusive drops any outstanding reservation.
	ClearExclusive()

	// Barrier is a full data memory barrier.
	Barrier()
}

// exclusiveRetries counts conditional stores that failed and were retried.
var exclusiveRetries = metric.MustCreateNewUint64Metric("/atomic/exclusive_retries", "Number of failed exclusive stores that were retried.")

// Load atomically loads w.
//
// A single aligned word access is already atomic; the barriers only keep
// surrounding accesses from moving across it.
func Load(m Memory, w *Word) uint32 {
	m.Barrier()
	v := m.Load(w)
	m.Barrier()
	return v
}

// Store atomically stores v into w.
func Store(m Memory, w *Word, v uint32) {
	m.Barrier()
	m.Store(w, v)
	m.Barrier()
}

// update runs the exclusive load, compute, conditional store loop until the
// store commits and returns the value that was replaced. The loop is
// unbounded.
func update(m Memory, w *Word, f func(old uint32) uint32) uint32 {
	m.Barrier()
	for {
		old := m.LoadExclusive(w)
		if m.StoreExclusive(w, f(old)) {
			m.Barrier()
			return old
		}
		exclusiveRetries.Increment()
	}
}

// Exchange atomically stores v into w and returns the previous value.
func Exchange(m Memory, w *Word, v uint32) uint32 {
	return update(m, w, func(uint32) uint32 { return v })
}

// FetchAdd atomically adds v to w and returns the previous value. The sum
// wraps at 2^32.
func FetchAdd(m Memory, w *Word, v uint32) uint32 {
	return update(m, w, func(old uint32) uint32 { return old + v })
}

// FetchSub atomically subtracts v from w and returns the previous value. The
// difference wraps at 2^32.
func FetchSub(m Memory, w *Word, v uint32) uint32 {
	return update(m, w, func(old uint32) uint32 { return old - v })
}

// CompareExchange stores desired into w if w holds *expected, and returns
// true. Otherwise it writes the value it observed into *expected, stores
// nothing, and returns false.
//
// The comparison is strong: it never fails spuriously. A comparison failure
// is a result, not contention, so it is returned at once after clearing the
// reservation. Only a failed conditional store causes another attempt.
func CompareExchange(m Memory, w *Word, expected *uint32, desired uint32) bool {
	m.Barrier()
	for {
		old := m.LoadExclusive(w)
		if old != *expected {
			m.ClearExclusive()
			*expected = old
			m.Barrier()
			return false
		}
		if m.StoreExclusive(w, desired) {
			m.Barrier()
			return true
		}
		exclusiveRetries.Increment()
	}
}
