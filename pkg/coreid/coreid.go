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

// Package coreid identifies which of the two cores is executing.
//
// The two cores are told apart by the part number field of the read-only
// CPUID register, which every core sees at the same address but with its
// own value.
package coreid

import "fmt"

// ID names a core.
type ID uint32

const (
	// None is never returned by Active. It is used elsewhere to mean "no
	// owner".
	None ID = iota

	// CoreA is the core whose part number is PartNumberA.
	CoreA

	// CoreB is the other core.
	CoreB
)

// Part numbers as found in CPUID bits [15:4].
const (
	// PartNumberA identifies a Cortex-M7.
	PartNumberA = 0xC27

	// PartNumberB identifies a Cortex-M4.
	PartNumberB = 0xC24
)

// Reset values of the CPUID register on each core.
const (
	CPUIDA = 0x411FC271
	CPUIDB = 0x410FC241
)

const (
	partNumberShift = 4
	partNumberMask  = 0xFFF
)

// Register is the core-local CPUID register.
type Register interface {
	// CPUID returns the raw register value.
	CPUID() uint32
}

// PartNumber extracts the part number field from a CPUID value.
func PartNumber(cpuid uint32) uint32 {
	return (cpuid >> partNumberShift) & partNumberMask
}

// Active returns the core that r belongs to. Any part number other than
// PartNumberA is taken to be core B, so Active never returns None.
//
// Active has no side effects and may be called from thread or handler mode.
func Active(r Register) ID {
	if PartNumber(r.CPUID()) == PartNumberA {
		return CoreA
	}
	return CoreB
}

// FromPartNumber maps a part number to a core. It returns false for part
// numbers that belong to neither core.
func FromPartNumber(p uint32) (ID, bool) {
	switch p {
	case PartNumberA:
		return CoreA, true
	case PartNumberB:
		return CoreB, true
	default:
		return None, false
	}
}

// Valid returns true for CoreA and CoreB.
func (id ID) Valid() bool {
	return id == CoreA || id == CoreB
}

// Peer returns the other core, or None if id is not a valid core.
func (id ID) Peer() ID {
	switch id {
	case CoreA:
		return CoreB
	case CoreB:
		return CoreA
	default:
		return None
	}
}

// Short returns "A" or "B", for metric fields. It returns "-" for None.
func (id ID) Short() string {
	switch id {
	case CoreA:
		return "A"
	case CoreB:
		return "B"
	default:
		return "-"
	}
}

// String implements fmt.Stringer.
func (id ID) String() string {
	switch id {
	case None:
		return "none"
	case CoreA:
		return "core A"
	case CoreB:
		return "core B"
	default:
		return fmt.Sprintf("core(%d)", uint32(id))
	}
}
