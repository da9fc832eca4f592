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

import (
	"gvisor.dev/dualcore/pkg/atomicbitops"
	"gvisor.dev/dualcore/pkg/hsem"
	"gvisor.dev/dualcore/pkg/xcall"
)

// Context is an execution context on a core: the thread, or one run of an
// interrupt handler. It implements every hardware interface the
// synchronization packages consume.
type Context struct {
	core *Core

	// ipsr is 0 in thread mode.
	ipsr uint32
}

func (x *Context) isThread() bool {
	return x.ipsr == 0
}

// Core returns the core x runs on.
func (x *Context) Core() *Core {
	return x.core
}

// CPUID implements coreid.Register.CPUID.
func (x *Context) CPUID() uint32 {
	return x.core.cpuid
}

// IPSR implements critical.ExceptionRegister.IPSR.
func (x *Context) IPSR() uint32 {
	return x.ipsr
}

// PRIMASK implements critical.Masks.PRIMASK.
func (x *Context) PRIMASK() bool {
	c := x.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if x.isThread() {
		c.waitIdle()
	}
	return c.primask
}

// SetPRIMASK implements critical.Masks.SetPRIMASK.
func (x *Context) SetPRIMASK(masked bool) {
	c := x.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if x.isThread() {
		c.waitIdle()
	}
	c.primask = masked
	if !masked {
		c.cond.Broadcast()
	}
}

// FAULTMASK implements critical.Masks.FAULTMASK.
func (x *Context) FAULTMASK() bool {
	c := x.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if x.isThread() {
		c.waitIdle()
	}
	return c.faultmask
}

// SetFAULTMASK implements critical.Masks.SetFAULTMASK.
func (x *Context) SetFAULTMASK(masked bool) {
	c := x.core
	c.mu.Lock()
	defer c.mu.Unlock()
	if x.isThread() {
		c.waitIdle()
	}
	c.faultmask = masked
	if !masked {
		c.cond.Broadcast()
	}
}

// Memory implements xcall.CPU.Memory.
func (x *Context) Memory() atomicbitops.Memory {
	return memoryPort{ctx: x}
}

// SendEvent implements xcall.CPU.SendEvent by raising the other core's
// event interrupt.
func (x *Context) SendEvent() {
	eventsMetric.Increment(x.core.id.Short())
	peer := x.core.m.Core(x.core.id.Peer())
	peer.Pend(xcall.EventIRQ(peer.id))
}

// HSEM returns this core's view of the semaphore block.
func (x *Context) HSEM() hsem.Registers {
	return hsemPort{b: &x.core.m.hsem, hw: x.core.hw}
}
