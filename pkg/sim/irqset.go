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

import "math/bits"

// NumIRQ is the number of external interrupt lines per core.
const NumIRQ = 150

// irqSet is a fixed size bitmap of interrupt lines.
type irqSet [(NumIRQ + 63) / 64]uint64

func (s *irqSet) add(irq int) {
	s[irq/64] |= 1 << (irq % 64)
}

func (s *irqSet) remove(irq int) {
	s[irq/64] &^= 1 << (irq % 64)
}

func (s *irqSet) has(irq int) bool {
	return s[irq/64]&(1<<(irq%64)) != 0
}

// and returns the intersection of s and o.
func (s *irqSet) and(o *irqSet) irqSet {
	var r irqSet
	for i := range s {
		r[i] = s[i] & o[i]
	}
	return r
}

// each calls fn for every member in increasing order.
func (s *irqSet) each(fn func(irq int)) {
	for i, w := range s {
		for w != 0 {
			b := bits.TrailingZeros64(w)
			fn(i*64 + b)
			w &^= 1 << b
		}
	}
}

func (s *irqSet) empty() bool {
	for _, w := range s {
		if w != 0 {
			return false
		}
	}
	return true
}
