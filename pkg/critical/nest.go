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

package critical

// Nest is a depth counted critical section for one core.
//
// Unlike Section it tolerates Enter and Exit calls that do not pair up
// lexically, as long as they balance. The first Enter masks interrupts and
// the matching last Exit unmasks them. A Nest must only be used from the
// core that owns m, and is not safe for concurrent use.
type Nest struct {
	m     Masks
	depth uint32
}

// NewNest returns a Nest driving m.
func NewNest(m Masks) *Nest {
	return &Nest{m: m}
}

// Enter masks interrupts and increments the depth.
func (n *Nest) Enter() {
	if n.depth == 0 {
		n.m.SetPRIMASK(true)
	}
	n.depth++
}

// Exit decrements the depth, unmasking interrupts when it reaches zero.
// Exit at depth zero does nothing.
func (n *Nest) Exit() {
	if n.depth == 0 {
		return
	}
	n.depth--
	if n.depth == 0 {
		n.m.SetPRIMASK(false)
	}
}

// Reset drops all nesting and unmasks interrupts.
func (n *Nest) Reset() {
	n.depth = 0
	n.m.SetPRIMASK(false)
}

// Depth returns the current nesting depth.
func (n *Nest) Depth() uint32 {
	return n.depth
}
