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

// And atomically applies bitwise and operation to w with val and returns the
// previous value.
func And(m Memory, w *Word, val uint32) uint32 {
	return update(m, w, func(o uint32) uint32 { return o & val })
}

// Or atomically applies bitwise or operation to w with val and returns the
// previous value.
func Or(m Memory, w *Word, val uint32) uint32 {
	return update(m, w, func(o uint32) uint32 { return o | val })
}

// Xor atomically applies bitwise xor operation to w with val and returns the
// previous value.
func Xor(m Memory, w *Word, val uint32) uint32 {
	return update(m, w, func(o uint32) uint32 { return o ^ val })
}

// CompareAndSwap is like CompareExchange, but returns the value previously
// stored at w. The swap happened iff prev == old.
func CompareAndSwap(m Memory, w *Word, old, new uint32) (prev uint32) {
	prev = old
	CompareExchange(m, w, &prev, new)
	return
}
