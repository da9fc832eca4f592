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

// Package critlock provides a spin lock in shared memory whose holder runs
// with local interrupts masked.
//
// The lock word is claimed with a compare-exchange, so it excludes the
// other core; masking interrupts while it is held excludes local handlers.
// Each lock carries an id handed out at Init so that a lock that was never
// initialized, or has been destroyed, is rejected instead of used.
package critlock

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff"
	"gvisor.dev/dualcore/pkg/atomicbitops"
	"gvisor.dev/dualcore/pkg/critical"
	"gvisor.dev/dualcore/pkg/spin"
)

var (
	// ErrInvalid is returned for a lock that is not initialized.
	ErrInvalid = errors.New("critlock: invalid lock")

	// ErrLocked is returned when destroying a held lock.
	ErrLocked = errors.New("critlock: lock is held")

	// ErrNotLocked is returned when releasing a free lock.
	ErrNotLocked = errors.New("critlock: lock is not held")

	// ErrTimeout is returned when the poll policy stopped before the lock
	// was acquired.
	ErrTimeout = errors.New("critlock: timed out")
)

// firstID is the first id handed out.
const firstID = 123

// nextID is the id counter. It lives beside the locks it numbers.
var nextID = atomicbitops.FromUint32(firstID)

// CPU is the context a lock is used from.
type CPU interface {
	critical.Masks
	Memory() atomicbitops.Memory
}

// Lock is a critical section lock. It must be placed in memory both cores
// can see and initialized with Init before use.
type Lock struct {
	id     atomicbitops.Word
	locked atomicbitops.Word

	// entry is the holder's interrupt state from before Acquire. It is
	// only touched by the holder.
	entry critical.State
}

// Init assigns l a fresh id and marks it free. It returns the id.
func (l *Lock) Init(c CPU) uint32 {
	m := c.Memory()
	id := atomicbitops.FetchAdd(m, &nextID, 1)
	atomicbitops.Store(m, &l.locked, 0)
	atomicbitops.Store(m, &l.id, id)
	return id
}

// ID returns l's id, or 0 if l is not initialized.
func (l *Lock) ID(c CPU) uint32 {
	return atomicbitops.Load(c.Memory(), &l.id)
}

// Valid returns true if l is initialized.
func (l *Lock) Valid(c CPU) bool {
	return l.ID(c) != 0
}

// Equal returns true if l and o are the same initialized lock.
func (l *Lock) Equal(c CPU, o *Lock) bool {
	id := l.ID(c)
	return id != 0 && id == o.ID(c)
}

// Locked returns true if l is held.
func (l *Lock) Locked(c CPU) bool {
	return atomicbitops.Load(c.Memory(), &l.locked) != 0
}

// Acquire takes l, masking interrupts on c's core until Release. Between
// attempts interrupts are restored, so pending handlers can run while the
// caller waits. A nil policy waits forever; otherwise Acquire returns
// ErrTimeout once the policy stops.
func (l *Lock) Acquire(c CPU, policy backoff.BackOff) error {
	if !l.Valid(c) {
		return ErrInvalid
	}
	m := c.Memory()
	ok := spin.Poll(fmt.Sprintf("critlock %d", l.ID(c)), policy, func() bool {
		s := critical.Enter(c)
		expected := uint32(0)
		if atomicbitops.CompareExchange(m, &l.locked, &expected, 1) {
			l.entry = s
			return true
		}
		critical.Exit(c, s)
		return false
	})
	if !ok {
		return ErrTimeout
	}
	return nil
}

// TryAcquire makes one attempt to take l. It returns ErrTimeout if l is
// held.
func (l *Lock) TryAcquire(c CPU) error {
	return l.Acquire(c, &backoff.StopBackOff{})
}

// Release frees l and restores the interrupt state from before Acquire.
func (l *Lock) Release(c CPU) error {
	if !l.Valid(c) {
		return ErrInvalid
	}
	if !l.Locked(c) {
		return ErrNotLocked
	}
	s := l.entry
	atomicbitops.Store(c.Memory(), &l.locked, 0)
	critical.Exit(c, s)
	return nil
}

// Destroy invalidates l. A held lock cannot be destroyed.
func (l *Lock) Destroy(c CPU) error {
	if !l.Valid(c) {
		return ErrInvalid
	}
	if l.Locked(c) {
		return ErrLocked
	}
	atomicbitops.Store(c.Memory(), &l.id, 0)
	return nil
}
