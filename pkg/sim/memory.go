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

package sim

import (
	"sync"
	"sync/atomic"

	"gvisor.dev/dualcore/pkg/atomicbitops"
)

// reservation is a core's local monitor state: the reserved word and the
// context that reserved it.
type reservation struct {
	owner *Context
	w     *atomicbitops.Word
}

// monitor is the exclusive access monitor. Each core holds at most one
// reservation. Any store to a reserved word, plain or exclusive, from
// either core, kills every reservation on it.
//
// A reservation belongs to the context that made it. Handlers run
// alongside the thread here instead of preempting it, so an exclusive load
// by one context replaces the reservation of any other context on the
// core, and only the owner's conditional store can commit.
type monitor struct {
	mu           sync.Mutex
	reservations [2]reservation
}

// invalidate must be called with mu held.
func (m *monitor) invalidate(w *atomicbitops.Word) {
	for i, r := range m.reservations {
		if r.w == w {
			m.reservations[i] = reservation{}
		}
	}
}

func (m *monitor) clear(core int) {
	m.mu.Lock()
	m.reservations[core] = reservation{}
	m.mu.Unlock()
}

// memoryPort is one context's bus interface to shared memory.
type memoryPort struct {
	ctx *Context
}

// Load implements atomicbitops.Memory.Load.
func (p memoryPort) Load(w *atomicbitops.Word) uint32 {
	return atomic.LoadUint32(w.Ptr())
}

// Store implements atomicbitops.Memory.Store.
func (p memoryPort) Store(w *atomicbitops.Word, v uint32) {
	mon := &p.ctx.core.m.monitor
	mon.mu.Lock()
	atomic.StoreUint32(w.Ptr(), v)
	mon.invalidate(w)
	mon.mu.Unlock()
}

// LoadExclusive implements atomicbitops.Memory.LoadExclusive.
func (p memoryPort) LoadExclusive(w *atomicbitops.Word) uint32 {
	c := p.ctx.core
	mon := &c.m.monitor
	mon.mu.Lock()
	defer mon.mu.Unlock()
	mon.reservations[c.index] = reservation{owner: p.ctx, w: w}
	return atomic.LoadUint32(w.Ptr())
}

// StoreExclusive implements atomicbitops.Memory.StoreExclusive.
func (p memoryPort) StoreExclusive(w *atomicbitops.Word, v uint32) bool {
	c := p.ctx.core
	mon := &c.m.monitor
	mon.mu.Lock()
	defer mon.mu.Unlock()
	if r := mon.reservations[c.index]; r.owner != p.ctx || r.w != w || c.consumeInjectedFailure() {
		mon.reservations[c.index] = reservation{}
		c.failedStores.Add(1)
		return false
	}
	atomic.StoreUint32(w.Ptr(), v)
	mon.invalidate(w)
	return true
}

// ClearExclusive implements atomicbitops.Memory.ClearExclusive.
func (p memoryPort) ClearExclusive() {
	p.ctx.core.m.monitor.clear(p.ctx.core.index)
}

// Barrier implements atomicbitops.Memory.Barrier. Every access above is
// sequentially consistent, so there is nothing left to order.
func (p memoryPort) Barrier() {
	p.ctx.core.barriers.Add(1)
}
