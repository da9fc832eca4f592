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

import (
	"math"
	"math/rand"
	"sync"
	"testing"
)

// countingMemory wraps HostMemory, counting instructions and failing a
// given number of conditional stores.
type countingMemory struct {
	HostMemory
	failStores int
	exclusives int
	stores     int
	clears     int
	barriers   int
}

func (c *countingMemory) LoadExclusive(w *Word) uint32 {
	c.exclusives++
	return c.HostMemory.LoadExclusive(w)
}

func (c *countingMemory) StoreExclusive(w *Word, v uint32) bool {
	c.stores++
	if c.failStores > 0 {
		c.failStores--
		c.HostMemory.ClearExclusive()
		return false
	}
	return c.HostMemory.StoreExclusive(w, v)
}

func (c *countingMemory) ClearExclusive() {
	c.clears++
	c.HostMemory.ClearExclusive()
}

func (c *countingMemory) Barrier() {
	c.barriers++
}

var interesting = []uint32{0, 1, 2, 0x7fffffff, 0x80000000, math.MaxUint32 - 1, math.MaxUint32}

func TestCompareExchange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	values := append([]uint32(nil), interesting...)
	for i := 0; i < 32; i++ {
		values = append(values, rng.Uint32())
	}

	var m HostMemory
	for _, init := range values {
		for _, exp := range values {
			desired := ^init
			w := FromUint32(init)
			expected := exp
			ok := CompareExchange(&m, &w, &expected, desired)
			if init == exp {
				if !ok || w.value != desired || expected != exp {
					t.Fatalf("CompareExchange(%#x, %#x, %#x) = %t, word %#x, expected %#x; want true, %#x, %#x", init, exp, desired, ok, w.value, expected, desired, exp)
				}
				continue
			}
			if ok || w.value != init || expected != init {
				t.Fatalf("CompareExchange(%#x, %#x, %#x) = %t, word %#x, expected %#x; want false, %#x, %#x", init, exp, desired, ok, w.value, expected, init, init)
			}
		}
	}
}

func TestCompareExchangeMismatchClearsReservation(t *testing.T) {
	m := &countingMemory{}
	w := FromUint32(7)
	expected := uint32(3)
	if CompareExchange(m, &w, &expected, 9) {
		t.Fatalf("CompareExchange succeeded on mismatch")
	}
	if m.exclusives != 1 || m.stores != 0 || m.clears != 1 {
		t.Errorf("got %d exclusive loads, %d conditional stores, %d clears; want 1, 0, 1", m.exclusives, m.stores, m.clears)
	}
	if m.reserved != nil {
		t.Errorf("reservation left outstanding after mismatch")
	}
	if m.barriers != 2 {
		t.Errorf("got %d barriers, want 2", m.barriers)
	}
}

func TestCompareExchangeRetriesOnlyFailedStores(t *testing.T) {
	m := &countingMemory{failStores: 3}
	w := FromUint32(5)
	expected := uint32(5)
	if !CompareExchange(m, &w, &expected, 6) {
		t.Fatalf("CompareExchange failed after store retries")
	}
	if w.value != 6 {
		t.Errorf("word = %d, want 6", w.value)
	}
	if m.exclusives != 4 || m.stores != 4 {
		t.Errorf("got %d exclusive loads and %d stores, want 4 and 4", m.exclusives, m.stores)
	}
}

func TestFetchAddSub(t *testing.T) {
	var m HostMemory
	for _, init := range interesting {
		for _, v := range interesting {
			w := FromUint32(init)
			if old := FetchAdd(&m, &w, v); old != init {
				t.Errorf("FetchAdd(%#x, %#x) returned %#x, want %#x", init, v, old, init)
			}
			if w.value != init+v {
				t.Errorf("after FetchAdd(%#x, %#x) word = %#x, want %#x", init, v, w.value, init+v)
			}

			w = FromUint32(init)
			if old := FetchSub(&m, &w, v); old != init {
				t.Errorf("FetchSub(%#x, %#x) returned %#x, want %#x", init, v, old, init)
			}
			if w.value != init-v {
				t.Errorf("after FetchSub(%#x, %#x) word = %#x, want %#x", init, v, w.value, init-v)
			}
		}
	}
}

func TestFetchAddWraps(t *testing.T) {
	var m HostMemory
	w := FromUint32(math.MaxUint32)
	FetchAdd(&m, &w, 2)
	if w.value != 1 {
		t.Errorf("MaxUint32 + 2 = %d, want 1", w.value)
	}
	FetchSub(&m, &w, 3)
	if w.value != math.MaxUint32-1 {
		t.Errorf("1 - 3 = %#x, want %#x", w.value, uint32(math.MaxUint32-1))
	}
}

func TestUpdateRetries(t *testing.T) {
	m := &countingMemory{failStores: 2}
	w := FromUint32(1)
	if old := Exchange(m, &w, 8); old != 1 {
		t.Errorf("Exchange returned %d, want 1", old)
	}
	if w.value != 8 || m.stores != 3 {
		t.Errorf("word %d after %d stores, want 8 after 3", w.value, m.stores)
	}
	if m.barriers != 2 {
		t.Errorf("got %d barriers, want 2", m.barriers)
	}
}

func TestLoadStoreBarriers(t *testing.T) {
	m := &countingMemory{}
	var w Word
	Store(m, &w, 42)
	if got := Load(m, &w); got != 42 {
		t.Errorf("Load = %d, want 42", got)
	}
	if m.barriers != 4 {
		t.Errorf("got %d barriers, want 4", m.barriers)
	}
}

func TestBitwise(t *testing.T) {
	var m HostMemory
	w := FromUint32(0b1100)
	if old := And(&m, &w, 0b1010); old != 0b1100 || w.value != 0b1000 {
		t.Errorf("And: old %#b word %#b", old, w.value)
	}
	if old := Or(&m, &w, 0b0011); old != 0b1000 || w.value != 0b1011 {
		t.Errorf("Or: old %#b word %#b", old, w.value)
	}
	if old := Xor(&m, &w, 0b1111); old != 0b1011 || w.value != 0b0100 {
		t.Errorf("Xor: old %#b word %#b", old, w.value)
	}
	if prev := CompareAndSwap(&m, &w, 0b0100, 9); prev != 0b0100 || w.value != 9 {
		t.Errorf("CompareAndSwap hit: prev %d word %d", prev, w.value)
	}
	if prev := CompareAndSwap(&m, &w, 1, 2); prev != 9 || w.value != 9 {
		t.Errorf("CompareAndSwap miss: prev %d word %d", prev, w.value)
	}
}

func TestBool(t *testing.T) {
	var m HostMemory
	b := FromBool(true)
	if !b.Load(&m) {
		t.Errorf("FromBool(true).Load() = false")
	}
	if old := b.Swap(&m, false); !old || b.Load(&m) {
		t.Errorf("Swap(false) = %t, now %t", old, b.Load(&m))
	}
	if b.CompareAndSwap(&m, true, true) {
		t.Errorf("CompareAndSwap(true, true) succeeded on false")
	}
	if !b.CompareAndSwap(&m, false, true) || !b.Load(&m) {
		t.Errorf("CompareAndSwap(false, true) failed")
	}
	b.Store(&m, false)
	if b.Load(&m) {
		t.Errorf("Store(false) did not stick")
	}
}

func TestConcurrentFetchAdd(t *testing.T) {
	const (
		goroutines = 8
		iterations = 10000
	)
	var (
		w  Word
		wg sync.WaitGroup
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var m HostMemory
			for j := 0; j < iterations; j++ {
				FetchAdd(&m, &w, 1)
			}
		}()
	}
	wg.Wait()
	var m HostMemory
	if got, want := Load(&m, &w), uint32(goroutines*iterations); got != want {
		t.Errorf("counter = %d, want %d", got, want)
	}
}

func TestRaceZeroToOne(t *testing.T) {
	for round := 0; round < 200; round++ {
		var (
			w      Word
			wg     sync.WaitGroup
			won    [2]bool
			seen   [2]uint32
			starts = make(chan struct{})
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var m HostMemory
				<-starts
				seen[i] = 0
				won[i] = CompareExchange(&m, &w, &seen[i], 1)
			}(i)
		}
		close(starts)
		wg.Wait()
		if won[0] == won[1] {
			t.Fatalf("round %d: both or neither won: %v", round, won)
		}
		loser := 0
		if won[0] {
			loser = 1
		}
		if seen[loser] != 1 {
			t.Fatalf("round %d: loser observed %d, want 1", round, seen[loser])
		}
	}
}
