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

package scenario

import (
	"context"
	"fmt"

	"gvisor.dev/dualcore/pkg/atomicbitops"
	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/critical"
	"gvisor.dev/dualcore/pkg/critlock"
	"gvisor.dev/dualcore/pkg/hsem"
	"gvisor.dev/dualcore/pkg/log"
	"gvisor.dev/dualcore/pkg/sim"
	"gvisor.dev/dualcore/pkg/xcall"
)

// RaceResult counts the winners of a compare-exchange race.
type RaceResult struct {
	Rounds int
	Wins   map[coreid.ID]int
}

// RaceCAS has both cores compare-exchange the same word from 0 to 1 at
// once, rounds times. Every round must have exactly one winner, and the
// loser must observe the winner's 1.
func RaceCAS(ctx context.Context, b *Board, rounds int) (RaceResult, error) {
	res := RaceResult{Wins: make(map[coreid.ID]int)}
	for r := 0; r < rounds; r++ {
		b.reset()
		var (
			won  [2]bool
			seen [2]uint32
		)
		race := func(_ context.Context, t *sim.Context) error {
			i := int(coreid.Active(t)) - 1
			rendezvous(t, b.word(readyWord), 2)
			expected := uint32(0)
			won[i] = atomicbitops.CompareExchange(t.Memory(), b.word(raceWord), &expected, 1)
			seen[i] = expected
			return nil
		}
		if err := b.Machine.Run(ctx, race, race); err != nil {
			return res, err
		}

		if won[0] == won[1] {
			return res, failf("round %d: core A won %t, core B won %t", r, won[0], won[1])
		}
		winner, loser := 0, 1
		if won[1] {
			winner, loser = 1, 0
		}
		if seen[winner] != 0 {
			return res, failf("round %d: winner's expected changed to %d", r, seen[winner])
		}
		if seen[loser] != 1 {
			return res, failf("round %d: loser observed %d, want 1", r, seen[loser])
		}
		if v := b.load(raceWord); v != 1 {
			return res, failf("round %d: word is %d after the race, want 1", r, v)
		}
		res.Wins[coreid.ID(winner+1)]++
		res.Rounds++
	}
	log.Debugf("scenario: race wins %v", res.Wins)
	return res, nil
}

// HSEMHandoff hands semaphore index from core A to core B. B must fail to
// take it while A holds it, and its blocking acquire must not return until
// A lets go.
func HSEMHandoff(ctx context.Context, b *Board, index int) error {
	b.reset()
	stage := b.word(stageWord)
	mainA := func(_ context.Context, t *sim.Context) error {
		s := b.Semaphores(t)
		if !s.Acquire(index) {
			return failf("acquire of free semaphore %d failed", index)
		}
		atomicbitops.Store(t.Memory(), stage, 1)
		awaitStage(t, stage, 2)
		if owner := s.Owner(index); owner != coreid.CoreA {
			return failf("semaphore %d owned by %v while core A holds it", index, owner)
		}
		atomicbitops.Store(t.Memory(), stage, 3)
		if !s.Release(index) {
			return failf("release of semaphore %d failed", index)
		}
		return nil
	}
	mainB := func(_ context.Context, t *sim.Context) error {
		s := b.Semaphores(t)
		awaitStage(t, stage, 1)
		if s.TryAcquire(index) {
			return failf("took semaphore %d held by core A", index)
		}
		atomicbitops.Store(t.Memory(), stage, 2)
		if !s.Acquire(index) {
			return failf("acquire of semaphore %d after hand-off failed", index)
		}
		if st := atomicbitops.Load(t.Memory(), stage); st != 3 {
			return failf("core B acquired semaphore %d before core A released it", index)
		}
		if owner := s.Owner(index); owner != coreid.CoreB {
			return failf("semaphore %d owned by %v after hand-off", index, owner)
		}
		s.Release(index)
		return nil
	}
	if err := b.Machine.Run(ctx, mainA, mainB); err != nil {
		return err
	}
	if st := b.Machine.HSEM().Status(index); st.Locked() {
		return failf("semaphore %d left %v", index, st)
	}
	return nil
}

// HSEMCounter has both cores increment a shared word iterations times each
// with a plain load and store, inside sections on semaphore index. It
// returns the final count, which must be 2*iterations.
func HSEMCounter(ctx context.Context, b *Board, index, iterations int) (uint32, error) {
	b.reset()
	counter := b.word(counterWord)
	count := func(_ context.Context, t *sim.Context) error {
		s := b.Semaphores(t)
		m := t.Memory()
		for i := 0; i < iterations; i++ {
			ok := s.Section(index, func() {
				v := atomicbitops.Load(m, counter)
				atomicbitops.Store(m, counter, v+1)
			})
			if !ok {
				return failf("section on semaphore %d did not lock", index)
			}
		}
		return nil
	}
	if err := b.Machine.Run(ctx, count, count); err != nil {
		return 0, err
	}
	got := b.load(counterWord)
	if want := uint32(2 * iterations); got != want {
		return got, failf("counter is %d, want %d", got, want)
	}
	return got, nil
}

// CritlockCounter is HSEMCounter with a critlock in shared memory instead
// of a semaphore.
func CritlockCounter(ctx context.Context, b *Board, iterations int) (uint32, error) {
	b.reset()
	var lock critlock.Lock
	lock.Init(b.Machine.Core(coreid.CoreA).Thread())
	counter := b.word(counterWord)
	count := func(_ context.Context, t *sim.Context) error {
		m := t.Memory()
		for i := 0; i < iterations; i++ {
			if err := lock.Acquire(t, nil); err != nil {
				return err
			}
			v := atomicbitops.Load(m, counter)
			atomicbitops.Store(m, counter, v+1)
			if err := lock.Release(t); err != nil {
				return err
			}
		}
		return nil
	}
	if err := b.Machine.Run(ctx, count, count); err != nil {
		return 0, err
	}
	if err := lock.Destroy(b.Machine.Core(coreid.CoreA).Thread()); err != nil {
		return 0, fmt.Errorf("destroying lock: %w", err)
	}
	got := b.load(counterWord)
	if want := uint32(2 * iterations); got != want {
		return got, failf("counter is %d, want %d", got, want)
	}
	return got, nil
}

// Square is the result of a pinned call.
type Square struct {
	Value   int
	Core    coreid.ID
	Handler bool
}

// PinnedSquare squares n with a function pinned to core B, calling it from
// both cores at once. Core A's call must go through the link into B's
// event handler; B's own call must run in place.
func PinnedSquare(ctx context.Context, b *Board, n int) (remote, local Square, err error) {
	square := xcall.Pin(b.Link(), coreid.CoreB, func(c xcall.CPU, x int) Square {
		r, ok := c.(critical.ExceptionRegister)
		return Square{
			Value:   x * x,
			Core:    coreid.Active(c),
			Handler: ok && critical.InHandler(r),
		}
	})
	err = b.Machine.Run(ctx, func(_ context.Context, t *sim.Context) error {
		remote = square.Call(t, n)
		return nil
	}, func(_ context.Context, t *sim.Context) error {
		local = square.Call(t, n)
		return nil
	})
	if err != nil {
		return remote, local, err
	}
	want := n * n
	if remote.Value != want || local.Value != want {
		return remote, local, failf("squares of %d: remote %d, local %d, want %d", n, remote.Value, local.Value, want)
	}
	if remote.Core != coreid.CoreB || !remote.Handler {
		return remote, local, failf("remote call ran on %v (handler=%t)", remote.Core, remote.Handler)
	}
	if local.Core != coreid.CoreB || local.Handler {
		return remote, local, failf("local call ran on %v (handler=%t)", local.Core, local.Handler)
	}
	return remote, local, nil
}

// InvalidIndex checks that every semaphore operation on an out of range
// index fails without a single register access.
func InvalidIndex(ctx context.Context, b *Board) error {
	const index = hsem.Count + 8
	return b.Machine.Run(ctx, func(_ context.Context, t *sim.Context) error {
		s := b.Semaphores(t)
		before := b.Machine.HSEM().Accesses()
		ran := false
		switch {
		case s.Acquire(index):
			return failf("Acquire(%d) succeeded", index)
		case s.TryAcquire(index):
			return failf("TryAcquire(%d) succeeded", index)
		case s.Release(index):
			return failf("Release(%d) succeeded", index)
		case s.Owner(index) != coreid.None:
			return failf("Owner(%d) is not none", index)
		case s.Section(index, func() { ran = true }):
			return failf("Section(%d) reported a lock", index)
		}
		if !ran {
			return failf("Section(%d) skipped its body", index)
		}
		if after := b.Machine.HSEM().Accesses(); after != before {
			return failf("%d register accesses for index %d", after-before, index)
		}
		return nil
	}, nil)
}
