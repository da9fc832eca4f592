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

package critlock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/critical"
	"gvisor.dev/dualcore/pkg/critlock"
	"gvisor.dev/dualcore/pkg/sim"
)

func newMachine(t *testing.T) *sim.Machine {
	t.Helper()
	m, err := sim.New(sim.Config{})
	if err != nil {
		t.Fatalf("sim.New: %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestUninitialized(t *testing.T) {
	m := newMachine(t)
	a := m.Core(coreid.CoreA).Thread()
	var l critlock.Lock
	if l.Valid(a) {
		t.Errorf("zero lock is valid")
	}
	for name, err := range map[string]error{
		"Acquire": l.Acquire(a, nil),
		"Release": l.Release(a),
		"Destroy": l.Destroy(a),
	} {
		if !errors.Is(err, critlock.ErrInvalid) {
			t.Errorf("%s on a zero lock = %v, want %v", name, err, critlock.ErrInvalid)
		}
	}
}

func TestLifecycle(t *testing.T) {
	m := newMachine(t)
	a := m.Core(coreid.CoreA).Thread()
	var l, other critlock.Lock
	id := l.Init(a)
	if id < 123 {
		t.Errorf("id %d below the first id", id)
	}
	if oid := other.Init(a); oid == id {
		t.Errorf("two locks got the same id %d", id)
	}
	if !l.Equal(a, &l) || l.Equal(a, &other) {
		t.Errorf("Equal does not compare ids")
	}

	if err := l.Acquire(a, nil); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if !critical.IsCritical(a) {
		t.Errorf("holder's interrupts are not masked")
	}
	if err := l.Destroy(a); !errors.Is(err, critlock.ErrLocked) {
		t.Errorf("Destroy of a held lock = %v, want %v", err, critlock.ErrLocked)
	}
	if err := l.Release(a); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if critical.IsCritical(a) {
		t.Errorf("interrupts still masked after Release")
	}
	if err := l.Release(a); !errors.Is(err, critlock.ErrNotLocked) {
		t.Errorf("second Release = %v, want %v", err, critlock.ErrNotLocked)
	}
	if err := l.Destroy(a); err != nil {
		t.Errorf("Destroy: %v", err)
	}
	if l.Valid(a) {
		t.Errorf("destroyed lock still valid")
	}
}

func TestReleaseKeepsOuterSection(t *testing.T) {
	m := newMachine(t)
	a := m.Core(coreid.CoreA).Thread()
	var l critlock.Lock
	l.Init(a)
	critical.Section(a, func() {
		if err := l.Acquire(a, nil); err != nil {
			t.Fatalf("Acquire: %v", err)
		}
		l.Release(a)
		if !critical.IsCritical(a) {
			t.Errorf("Release unmasked interrupts masked before Acquire")
		}
	})
}

func TestTimeout(t *testing.T) {
	m := newMachine(t)
	a := m.Core(coreid.CoreA).Thread()
	b := m.Core(coreid.CoreB).Thread()
	var l critlock.Lock
	l.Init(a)
	if err := l.Acquire(a, nil); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := l.TryAcquire(b); !errors.Is(err, critlock.ErrTimeout) {
		t.Errorf("TryAcquire of a held lock = %v, want %v", err, critlock.ErrTimeout)
	}
	if err := l.Acquire(b, backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Microsecond), 5)); !errors.Is(err, critlock.ErrTimeout) {
		t.Errorf("bounded Acquire of a held lock = %v, want %v", err, critlock.ErrTimeout)
	}
	if critical.IsCritical(b) {
		t.Errorf("failed Acquire left interrupts masked")
	}
	l.Release(a)
}

func TestCrossCoreExclusion(t *testing.T) {
	const iterations = 2000
	m := newMachine(t)
	var (
		l       critlock.Lock
		counter int
	)
	l.Init(m.Core(coreid.CoreA).Thread())

	work := func(_ context.Context, c *sim.Context) error {
		for i := 0; i < iterations; i++ {
			if err := l.Acquire(c, nil); err != nil {
				return err
			}
			counter++
			if err := l.Release(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := m.Run(context.Background(), work, work); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counter != 2*iterations {
		t.Errorf("counter = %d, want %d", counter, 2*iterations)
	}
}
