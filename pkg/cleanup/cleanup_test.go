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

package cleanup

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCleanRunsInReverse(t *testing.T) {
	var order []int
	func() {
		cu := Make(func() { order = append(order, 1) })
		cu.Add(func() { order = append(order, 2) })
		cu.Add(func() { order = append(order, 3) })
		defer cu.Clean()
	}()
	if diff := cmp.Diff([]int{3, 2, 1}, order); diff != "" {
		t.Errorf("cleanup order mismatch (-want +got):\n%s", diff)
	}
}

func TestCleanTwice(t *testing.T) {
	calls := 0
	cu := Make(func() { calls++ })
	cu.Clean()
	cu.Clean()
	if calls != 1 {
		t.Errorf("cleaner called %d times, want 1", calls)
	}
}

func TestRelease(t *testing.T) {
	var order []int
	var cleaner func()
	func() {
		cu := Make(func() { order = append(order, 1) })
		defer cu.Clean()
		cu.Add(func() { order = append(order, 2) })
		cleaner = cu.Release()
	}()
	if len(order) != 0 {
		t.Fatalf("released cleaners ran: %v", order)
	}
	cleaner()
	if diff := cmp.Diff([]int{2, 1}, order); diff != "" {
		t.Errorf("cleanup order mismatch (-want +got):\n%s", diff)
	}
}
