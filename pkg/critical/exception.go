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

// ExceptionRegister is the interrupt program status register.
type ExceptionRegister interface {
	// IPSR returns the exception number being handled, or 0 in thread
	// mode.
	IPSR() uint32
}

// ExternalBase is the exception number of external interrupt 0.
const ExternalBase = 16

// ActiveException returns the exception number being handled, or -1 in
// thread mode.
func ActiveException(r ExceptionRegister) int32 {
	n := r.IPSR() & 0x1FF
	if n == 0 {
		return -1
	}
	return int32(n)
}

// ActiveIRQ returns the external interrupt being handled, or -1 if the core
// is in thread mode or handling a system exception.
func ActiveIRQ(r ExceptionRegister) int32 {
	n := ActiveException(r)
	if n < ExternalBase {
		return -1
	}
	return n - ExternalBase
}

// InHandler returns true if the core is handling an exception.
func InHandler(r ExceptionRegister) bool {
	return ActiveException(r) >= 0
}
