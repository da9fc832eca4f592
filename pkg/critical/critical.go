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

// Package critical masks interrupts on the local core.
//
// A critical section records whether the mask was already set on entry and
// clears it on exit only if it was not. Only that boolean is kept, so
// sections must nest strictly. Two sections that partially overlap (A
// entered, B entered, A exited, B exited) are out of contract: A's exit
// unmasks while B is still running.
//
// Section masks ordinary interrupts with PRIMASK; hard faults and NMI stay
// enabled. FaultSection additionally masks fault class exceptions with
// FAULTMASK.
package critical

// Masks are the core-local interrupt mask bits.
type Masks interface {
	// PRIMASK returns true if ordinary interrupts are masked.
	PRIMASK() bool

	// SetPRIMASK masks (true) or unmasks (false) ordinary interrupts.
	SetPRIMASK(masked bool)

	// FAULTMASK returns true if fault class exceptions are masked.
	FAULTMASK() bool

	// SetFAULTMASK masks or unmasks fault class exceptions.
	SetFAULTMASK(masked bool)
}

// IsCritical returns true if ordinary interrupts are masked on m's core.
func IsCritical(m Masks) bool {
	return m.PRIMASK()
}

// IsFaultCritical returns true if fault class exceptions are masked.
func IsFaultCritical(m Masks) bool {
	return m.FAULTMASK()
}

// State is the entry snapshot of a critical section.
type State struct {
	wasCritical bool
}

// WasCritical returns true if interrupts were already masked on entry.
func (s State) WasCritical() bool {
	return s.wasCritical
}

// Enter masks ordinary interrupts and returns the state to pass to Exit.
func Enter(m Masks) State {
	s := State{wasCritical: m.PRIMASK()}
	if !s.wasCritical {
		m.SetPRIMASK(true)
	}
	return s
}

// Exit ends a critical section started by Enter. Interrupts are unmasked
// only if they were unmasked when the section was entered.
func Exit(m Masks, s State) {
	if !s.wasCritical {
		m.SetPRIMASK(false)
	}
}

// Section runs fn with ordinary interrupts masked, then restores the mask
// to its entry state. The mask is restored even if fn panics.
func Section(m Masks, fn func()) {
	s := Enter(m)
	defer Exit(m, s)
	fn()
}

// EnterFault is Enter for FAULTMASK.
func EnterFault(m Masks) State {
	s := State{wasCritical: m.FAULTMASK()}
	if !s.wasCritical {
		m.SetFAULTMASK(true)
	}
	return s
}

// ExitFault is Exit for FAULTMASK.
func ExitFault(m Masks, s State) {
	if !s.wasCritical {
		m.SetFAULTMASK(false)
	}
}

// FaultSection runs fn with fault class exceptions masked, with the same
// save and restore discipline as Section.
func FaultSection(m Masks, fn func()) {
	s := EnterFault(m)
	defer ExitFault(m, s)
	fn()
}
