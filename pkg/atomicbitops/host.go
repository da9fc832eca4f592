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

package atomicbitops

import "sync/atomic"

// HostMemory implements Memory on the host with sync/atomic.
//
// The exclusive reservation is emulated by remembering the value seen by
// LoadExclusive; StoreExclusive commits with a compare-and-swap against it.
// That accepts an intervening write of the same value, which the value
// based operations in this package cannot observe.
//
// A HostMemory is one execution context. It must not be shared between
// goroutines; each goroutine acting as a core context needs its own.
type HostMemory struct {
	reserved *Word
	seen     uint32
}

// Load implements Memory.Load.
func (*HostMemory) Load(w *Word) uint32 {
	return atomic.LoadUint32(&w.value)
}

// Store implements Memory.Store.
func (*HostMemory) Store(w *Word, v uint32) {
	atomic.StoreUint32(&w.value, v)
}

// LoadExclusive implements Memory.LoadExclusive.
func (h *HostMemory) LoadExclusive(w *Word) uint32 {
	v := atomic.LoadUint32(&w.value)
	h.reserved, h.seen = w, v
	return v
}

// StoreExclusive implements Memory.StoreExclusive.
func (h *HostMemory) StoreExclusive(w *Word, v uint32) bool {
	if h.reserved != w {
		h.reserved = nil
		return false
	}
	h.reserved = nil
	return atomic.CompareAndSwapUint32(&w.value, h.seen, v)
}

// ClearExclusive implements Memory.ClearExclusive.
func (h *HostMemory) ClearExclusive() {
	h.reserved = nil
}

// Barrier implements Memory.Barrier. sync/atomic operations are already
// sequentially consistent.
func (*HostMemory) Barrier() {}
