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

// Bool is an atomic Boolean.
//
// It is implemented by a Word, with value 0 indicating false, and 1
// indicating true.
type Bool struct {
	Word
}

// FromBool returns a Bool initialized to value val.
func FromBool(val bool) Bool {
	return Bool{Word{value: b32(val)}}
}

func b32(val bool) uint32 {
	if val {
		return 1
	}
	return 0
}

// Load is analogous to atomic.LoadBool, if such a thing existed.
func (b *Bool) Load(m Memory) bool {
	return Load(m, &b.Word) == 1
}

// Store is analogous to atomic.StoreBool, if such a thing existed.
func (b *Bool) Store(m Memory, val bool) {
	Store(m, &b.Word, b32(val))
}

// Swap is analogous to atomic.SwapBool, if such a thing existed.
func (b *Bool) Swap(m Memory, val bool) bool {
	return Exchange(m, &b.Word, b32(val)) == 1
}

// CompareAndSwap sets b to new if it holds old, and returns true if it did.
func (b *Bool) CompareAndSwap(m Memory, old, new bool) bool {
	expected := b32(old)
	return CompareExchange(m, &b.Word, &expected, b32(new))
}
