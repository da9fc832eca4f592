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

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

// masks records every write to the mask bits.
type masks struct {
	primask, faultmask bool
	writes             []string
}

func (m *masks) PRIMASK() bool   { return m.primask }
func (m *masks) FAULTMASK() bool { return m.faultmask }

func (m *masks) SetPRIMASK(v bool) {
	m.primask = v
	if v {
		m.writes = append(m.writes, "cpsid i")
	} else {
		m.writes = append(m.writes, "cpsie i")
	}
}

func (m *masks) SetFAULTMASK(v bool) {
	m.faultmask = v
	if v {
		m.writes = append(m.writes, "cpsid f")
	} else {
		m.writes = append(m.writes, "cpsie f")
	}
}

func TestSection(t *testing.T) {
	m := &masks{}
	ran := false
	Section(m, func() {
		ran = true
		if !IsCritical(m) {
			t.Errorf("interrupts not masked inside section")
		}
		if IsFaultCritical(m) {
			t.Errorf("faults masked inside ordinary section")
		}
	})
	if !ran {
		t.Fatalf("body did not run")
	}
	if IsCritical(m) {
		t.Errorf("interrupts still masked after section")
	}
	if diff := cmp.Diff([]string{"cpsid i", "cpsie i"}, m.writes); diff != "" {
		t.Errorf("mask writes mismatch (-want +got):\n%s", diff)
	}
}

func TestSectionAlreadyCritical(t *testing.T) {
	m := &masks{primask: true}
	Section(m, func() {})
	if !IsCritical(m) {
		t.Errorf("section unmasked interrupts that were masked on entry")
	}
	if len(m.writes) != 0 {
		t.Errorf("got mask writes %v, want none", m.writes)
	}
}

func TestNestedSections(t *testing.T) {
	m := &masks{}
	Section(m, func() {
		Section(m, func() {
			if !IsCritical(m) {
				t.Errorf("inner section not masked")
			}
		})
		if !IsCritical(m) {
			t.Errorf("inner section exit unmasked the outer section")
		}
	})
	if IsCritical(m) {
		t.Errorf("outer section exit left interrupts masked")
	}
	if diff := cmp.Diff([]string{"cpsid i", "cpsie i"}, m.writes); diff != "" {
		t.Errorf("mask writes mismatch (-want +got):\n%s", diff)
	}
}

// TestOverlappingSectionsOutOfContract pins down what partial overlap does
// with token sections: the first exit unmasks while the second section is
// still open. Callers must not do this.
func TestOverlappingSectionsOutOfContract(t *testing.T) {
	m := &masks{}
	a := Enter(m)
	b := Enter(m)
	Exit(m, a)
	if IsCritical(m) {
		t.Errorf("overlap unexpectedly kept interrupts masked")
	}
	Exit(m, b)
	if IsCritical(m) {
		t.Errorf("interrupts masked after both exits")
	}
}

func TestSectionRestoresOnPanic(t *testing.T) {
	m := &masks{}
	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Errorf("panic did not propagate")
			}
		}()
		Section(m, func() { panic("body") })
	}()
	if IsCritical(m) {
		t.Errorf("interrupts still masked after panicking body")
	}
}

func TestFaultSection(t *testing.T) {
	m := &masks{}
	FaultSection(m, func() {
		if !IsFaultCritical(m) {
			t.Errorf("faults not masked inside fault section")
		}
		FaultSection(m, func() {})
		if !IsFaultCritical(m) {
			t.Errorf("nested fault section unmasked faults")
		}
	})
	if IsFaultCritical(m) {
		t.Errorf("faults masked after section")
	}
	if m.primask {
		t.Errorf("fault section touched PRIMASK")
	}
	if diff := cmp.Diff([]string{"cpsid f", "cpsie f"}, m.writes); diff != "" {
		t.Errorf("mask writes mismatch (-want +got):\n%s", diff)
	}
}

func TestNest(t *testing.T) {
	m := &masks{}
	n := NewNest(m)
	n.Enter()
	n.Enter()
	if n.Depth() != 2 || !IsCritical(m) {
		t.Fatalf("depth %d critical %t, want 2 true", n.Depth(), IsCritical(m))
	}
	n.Exit()
	if !IsCritical(m) {
		t.Errorf("inner Exit unmasked interrupts")
	}
	n.Exit()
	if IsCritical(m) || n.Depth() != 0 {
		t.Errorf("depth %d critical %t after balanced exits", n.Depth(), IsCritical(m))
	}
	n.Exit()
	if n.Depth() != 0 {
		t.Errorf("Exit at depth zero changed depth to %d", n.Depth())
	}

	n.Enter()
	n.Enter()
	n.Reset()
	if IsCritical(m) || n.Depth() != 0 {
		t.Errorf("Reset left depth %d critical %t", n.Depth(), IsCritical(m))
	}
}

type ipsr uint32

func (r ipsr) IPSR() uint32 { return uint32(r) }

func TestActiveException(t *testing.T) {
	for _, tc := range []struct {
		ipsr      uint32
		exception int32
		irq       int32
	}{
		{ipsr: 0, exception: -1, irq: -1},
		{ipsr: 3, exception: 3, irq: -1},
		{ipsr: ExternalBase + 64, exception: 80, irq: 64},
		{ipsr: 0x01000000 | (ExternalBase + 65), exception: 81, irq: 65},
	} {
		if got := ActiveException(ipsr(tc.ipsr)); got != tc.exception {
			t.Errorf("ActiveException(%#x) = %d, want %d", tc.ipsr, got, tc.exception)
		}
		if got := ActiveIRQ(ipsr(tc.ipsr)); got != tc.irq {
			t.Errorf("ActiveIRQ(%#x) = %d, want %d", tc.ipsr, got, tc.irq)
		}
		if got, want := InHandler(ipsr(tc.ipsr)), tc.exception >= 0; got != want {
			t.Errorf("InHandler(%#x) = %t, want %t", tc.ipsr, got, want)
		}
	}
}
