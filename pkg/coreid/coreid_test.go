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

package coreid

import "testing"

type cpuidRegister uint32

func (r cpuidRegister) CPUID() uint32 { return uint32(r) }

func TestActive(t *testing.T) {
	for _, tc := range []struct {
		name  string
		cpuid uint32
		want  ID
	}{
		{name: "reset value A", cpuid: CPUIDA, want: CoreA},
		{name: "reset value B", cpuid: CPUIDB, want: CoreB},
		{name: "other revision of A", cpuid: 0x410FC270, want: CoreA},
		{name: "unknown part", cpuid: 0x410FC600, want: CoreB},
		{name: "zero", cpuid: 0, want: CoreB},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := Active(cpuidRegister(tc.cpuid)); got != tc.want {
				t.Errorf("Active(%#x) = %v, want %v", tc.cpuid, got, tc.want)
			}
		})
	}
}

func TestActiveNeverNone(t *testing.T) {
	for cpuid := uint32(0); cpuid < 1<<16; cpuid += 0x10 {
		if got := Active(cpuidRegister(cpuid)); !got.Valid() {
			t.Fatalf("Active(%#x) = %v, want a valid core", cpuid, got)
		}
	}
}

func TestPartNumber(t *testing.T) {
	if got := PartNumber(CPUIDA); got != PartNumberA {
		t.Errorf("PartNumber(%#x) = %#x, want %#x", CPUIDA, got, PartNumberA)
	}
	if got := PartNumber(CPUIDB); got != PartNumberB {
		t.Errorf("PartNumber(%#x) = %#x, want %#x", CPUIDB, got, PartNumberB)
	}
	if id, ok := FromPartNumber(0xC60); ok || id != None {
		t.Errorf("FromPartNumber(0xC60) = %v, %t, want none, false", id, ok)
	}
}

func TestPeer(t *testing.T) {
	if CoreA.Peer() != CoreB || CoreB.Peer() != CoreA {
		t.Errorf("A and B should be each other's peer")
	}
	if None.Peer() != None {
		t.Errorf("None.Peer() = %v, want none", None.Peer())
	}
	if None.Valid() {
		t.Errorf("None.Valid() = true")
	}
}
