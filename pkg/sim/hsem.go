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

	"gvisor.dev/dualcore/pkg/hsem"
)

// SemaphoreBlock is the hardware semaphore block. Bus accesses are
// serialized, which is what makes the first writer win.
type SemaphoreBlock struct {
	mu  sync.Mutex
	sem [hsem.Count]hsem.Status
	key uint16

	accesses atomic.Uint64
}

// SetKey programs the key that clear register writes must carry.
func (b *SemaphoreBlock) SetKey(key uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.key = key
}

// Accesses returns the number of register accesses made so far.
func (b *SemaphoreBlock) Accesses() uint64 {
	return b.accesses.Load()
}

// Status returns semaphore i without counting as a bus access.
func (b *SemaphoreBlock) Status(i int) hsem.Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sem[i]
}

// hsemPort is a core's bus view of the block. Every access carries the
// core's bus id.
type hsemPort struct {
	b  *SemaphoreBlock
	hw uint32
}

// ReadLock implements hsem.Registers.ReadLock.
func (p hsemPort) ReadLock(i int) uint32 {
	p.b.accesses.Add(1)
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if !p.b.sem[i].Locked() {
		p.b.sem[i] = hsem.MakeStatus(true, p.hw, 0)
	}
	return uint32(p.b.sem[i])
}

// Read implements hsem.Registers.Read.
func (p hsemPort) Read(i int) uint32 {
	p.b.accesses.Add(1)
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return uint32(p.b.sem[i])
}

// Write implements hsem.Registers.Write.
func (p hsemPort) Write(i int, v uint32) {
	p.b.accesses.Add(1)
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	w := hsem.Status(v)
	if w.HardwareCore() != p.hw {
		return
	}
	cur := p.b.sem[i]
	if w.Locked() {
		if !cur.Locked() {
			p.b.sem[i] = w
		}
		return
	}
	if cur.Locked() && cur.HardwareCore() == w.HardwareCore() && cur.Process() == w.Process() {
		p.b.sem[i] = 0
	}
}

// Clear implements hsem.Registers.Clear.
func (p hsemPort) Clear(v uint32) {
	p.b.accesses.Add(1)
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	if uint16(v>>hsem.KeyShift) != p.b.key {
		return
	}
	hw := (v >> hsem.CoreIDShift) & hsem.CoreIDMask
	for i, s := range p.b.sem {
		if s.Locked() && s.HardwareCore() == hw {
			p.b.sem[i] = 0
		}
	}
}
