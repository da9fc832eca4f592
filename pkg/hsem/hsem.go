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

// Package hsem drives the hardware semaphore block, which gives the two
// cores mutual exclusion arbitrated by the bus rather than by memory
// atomics.
//
// The block has Count semaphores. Each is either free or locked by one core,
// optionally tagged with a process id. Locking is first writer wins; only a
// write carrying the owner's core id and process id unlocks. There is no
// fairness between waiting cores.
package hsem

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/critical"
	"gvisor.dev/dualcore/pkg/log"
	"gvisor.dev/dualcore/pkg/metric"
	"gvisor.dev/dualcore/pkg/spin"
)

// Count is the number of semaphores in the block.
const Count = 32

// Register layout.
const (
	// LockBit is set while a semaphore is locked.
	LockBit = 1 << 31

	// CoreIDShift and CoreIDMask locate the owner's hardware core id.
	CoreIDShift = 8
	CoreIDMask  = 0xF

	// ProcIDMask locates the owner's process id.
	ProcIDMask = 0xFF

	// KeyShift locates the key in the clear register.
	KeyShift = 16
)

// Hardware core ids as they appear on the bus.
const (
	HardwareCoreA = 1
	HardwareCoreB = 3
)

// HardwareCoreID returns the bus id of a core, or 0 for None.
func HardwareCoreID(id coreid.ID) uint32 {
	switch id {
	case coreid.CoreA:
		return HardwareCoreA
	case coreid.CoreB:
		return HardwareCoreB
	default:
		return 0
	}
}

// CoreOf is the inverse of HardwareCoreID.
func CoreOf(hw uint32) coreid.ID {
	switch hw {
	case HardwareCoreA:
		return coreid.CoreA
	case HardwareCoreB:
		return coreid.CoreB
	default:
		return coreid.None
	}
}

// Status is the content of a semaphore register.
type Status uint32

// MakeStatus encodes a register value.
func MakeStatus(locked bool, hwCore uint32, proc uint8) Status {
	s := Status((hwCore&CoreIDMask)<<CoreIDShift | uint32(proc))
	if locked {
		s |= LockBit
	}
	return s
}

// Locked returns the lock bit.
func (s Status) Locked() bool {
	return s&LockBit != 0
}

// HardwareCore returns the core id field.
func (s Status) HardwareCore() uint32 {
	return (uint32(s) >> CoreIDShift) & CoreIDMask
}

// Process returns the process id field.
func (s Status) Process() uint8 {
	return uint8(s & ProcIDMask)
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if !s.Locked() {
		return "free"
	}
	return fmt.Sprintf("locked by %v process %d", CoreOf(s.HardwareCore()), s.Process())
}

// ClearValue encodes a write to the clear register that unlocks every
// semaphore held by hwCore, given the block's key.
func ClearValue(key uint16, hwCore uint32) uint32 {
	return uint32(key)<<KeyShift | (hwCore&CoreIDMask)<<CoreIDShift
}

// Registers is the semaphore register block as seen by one core. Every
// access carries that core's bus id.
type Registers interface {
	// ReadLock reads the one-step lock register of semaphore i. If the
	// semaphore is free, the read locks it for the reading core with
	// process id 0. It returns the status after the read.
	ReadLock(i int) uint32

	// Read returns the status of semaphore i without side effects.
	Read(i int) uint32

	// Write writes the status register of semaphore i. With the lock bit
	// set it attempts a two-step lock; with it clear it unlocks if the
	// core and process ids match the owner's. The core id must be the
	// writer's own or the write is ignored.
	Write(i int, v uint32)

	// Clear writes the clear register.
	Clear(v uint32)
}

// CPU is the part of an execution context the driver needs.
type CPU interface {
	coreid.Register
	critical.Masks
}

var (
	acquiredMetric  = metric.MustCreateNewUint64Metric("/hsem/acquired", "Number of hardware semaphores acquired.", metric.CoreField)
	contendedMetric = metric.MustCreateNewUint64Metric("/hsem/contended_polls", "Number of lock attempts that found the semaphore held.", metric.CoreField)
	releasedMetric  = metric.MustCreateNewUint64Metric("/hsem/released", "Number of hardware semaphore release writes.", metric.CoreField)
	expiredMetric   = metric.MustCreateNewUint64Metric("/hsem/poll_limit_expired", "Number of acquires abandoned because the poll policy stopped.", metric.CoreField)
	forcedMetric    = metric.MustCreateNewUint64Metric("/hsem/forced_releases", "Number of forced releases through the clear register.", metric.CoreField)

	expiredLog = log.BasicRateLimitedLogger(time.Second)
)

// IsValid returns true if index names a semaphore.
func IsValid(index int) bool {
	return index >= 0 && index < Count
}

// Semaphores is one core's driver for the semaphore block.
type Semaphores struct {
	cpu  CPU
	regs Registers
	core coreid.ID
	hw   uint32

	// policy returns the poll policy for one acquire, or nil to wait
	// forever.
	policy func() backoff.BackOff

	key uint16
}

// Option configures Semaphores.
type Option func(*Semaphores)

// WithPollLimit bounds every acquire to n failed polls. Zero means no bound.
func WithPollLimit(n uint64) Option {
	return func(s *Semaphores) {
		if n == 0 {
			s.policy = nil
			return
		}
		s.policy = func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, n)
		}
	}
}

// WithBackOff uses a fresh policy from newPolicy for every acquire.
func WithBackOff(newPolicy func() backoff.BackOff) Option {
	return func(s *Semaphores) {
		s.policy = newPolicy
	}
}

// WithKey sets the key written with forced releases. It must match the key
// programmed into the block.
func WithKey(key uint16) Option {
	return func(s *Semaphores) {
		s.key = key
	}
}

// New returns the driver for the core that cpu runs on.
func New(cpu CPU, regs Registers, opts ...Option) *Semaphores {
	core := coreid.Active(cpu)
	s := &Semaphores{
		cpu:  cpu,
		regs: regs,
		core: core,
		hw:   HardwareCoreID(core),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Core returns the core this driver acquires for.
func (s *Semaphores) Core() coreid.ID {
	return s.core
}

func (s *Semaphores) mine(v uint32) bool {
	st := Status(v)
	return st.Locked() && st.HardwareCore() == s.hw
}

func (s *Semaphores) poll(index int, policy backoff.BackOff, try func() bool) bool {
	what := fmt.Sprintf("hsem %d on %v", index, s.core)
	var misses uint64
	ok := spin.Poll(what, policy, func() bool {
		if try() {
			return true
		}
		misses++
		return false
	})
	contendedMetric.IncrementBy(misses, s.core.Short())
	if ok {
		acquiredMetric.Increment(s.core.Short())
		return true
	}
	expiredMetric.Increment(s.core.Short())
	expiredLog.Warningf("hsem: %v gave up on semaphore %d, %v", s.core, index, Status(s.regs.Read(index)))
	return false
}

func (s *Semaphores) newPolicy() backoff.BackOff {
	if s.policy == nil {
		return nil
	}
	return s.policy()
}

// Acquire locks semaphore index for this core with the one-step read lock,
// polling until the owner field shows this core. A semaphore this core
// already holds is acquired at once.
//
// Without a poll policy Acquire waits forever. With one, it returns false
// when the policy stops; nothing is undone, and recovery is up to the
// caller. An invalid index returns false without touching the registers.
func (s *Semaphores) Acquire(index int) bool {
	if !IsValid(index) {
		return false
	}
	return s.poll(index, s.newPolicy(), func() bool {
		return s.mine(s.regs.ReadLock(index))
	})
}

// TryAcquire makes a single one-step lock attempt.
func (s *Semaphores) TryAcquire(index int) bool {
	if !IsValid(index) {
		return false
	}
	if s.mine(s.regs.ReadLock(index)) {
		acquiredMetric.Increment(s.core.Short())
		return true
	}
	return false
}

// AcquireProcess locks semaphore index for process proc of this core with
// the two-step write lock: write the request, then read back to see who
// won. It follows the same poll policy as Acquire.
func (s *Semaphores) AcquireProcess(index int, proc uint8) bool {
	if !IsValid(index) {
		return false
	}
	want := uint32(MakeStatus(true, s.hw, proc))
	return s.poll(index, s.newPolicy(), func() bool {
		s.regs.Write(index, want)
		return s.regs.Read(index) == want
	})
}

// Release unlocks semaphore index, which must be held by this core with
// process id 0. The hardware ignores the write from any other owner, but
// callers must not rely on that. An invalid index returns false without
// touching the registers.
func (s *Semaphores) Release(index int) bool {
	return s.ReleaseProcess(index, 0)
}

// ReleaseProcess unlocks semaphore index held by process proc of this core.
func (s *Semaphores) ReleaseProcess(index int, proc uint8) bool {
	if !IsValid(index) {
		return false
	}
	s.regs.Write(index, uint32(MakeStatus(false, s.hw, proc)))
	releasedMetric.Increment(s.core.Short())
	return true
}

// ForceRelease unlocks every semaphore held by core through the keyed clear
// register. It is the only way to take a semaphore away from its owner.
func (s *Semaphores) ForceRelease(core coreid.ID) bool {
	if !core.Valid() {
		return false
	}
	s.regs.Clear(ClearValue(s.key, HardwareCoreID(core)))
	forcedMetric.Increment(s.core.Short())
	log.Debugf("hsem: %v forced release of all semaphores held by %v", s.core, core)
	return true
}

// Owner returns the core holding semaphore index, or None if it is free or
// index is invalid.
func (s *Semaphores) Owner(index int) coreid.ID {
	owner, _ := s.OwnerProcess(index)
	return owner
}

// OwnerProcess is Owner that also returns the owner's process id.
func (s *Semaphores) OwnerProcess(index int) (coreid.ID, uint8) {
	if !IsValid(index) {
		return coreid.None, 0
	}
	st := Status(s.regs.Read(index))
	if !st.Locked() {
		return coreid.None, 0
	}
	return CoreOf(st.HardwareCore()), st.Process()
}

// Section runs fn with local interrupts masked and semaphore index held.
//
// If this core already owns the semaphore on entry, Section leaves it held
// on exit, so sections on the same semaphore nest. Otherwise it acquires,
// waiting without bound whatever the poll policy, and releases after fn.
// The other core is kept out for the whole of fn.
//
// For an invalid index fn still runs, masked but without any lock, and
// Section returns false.
func (s *Semaphores) Section(index int, fn func()) bool {
	held := false
	critical.Section(s.cpu, func() {
		if !IsValid(index) {
			fn()
			return
		}
		held = true
		if s.Owner(index) == s.core {
			fn()
			return
		}
		s.poll(index, nil, func() bool {
			return s.mine(s.regs.ReadLock(index))
		})
		defer s.Release(index)
		fn()
	})
	return held
}
