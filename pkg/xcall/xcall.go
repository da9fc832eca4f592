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

// Package xcall runs a function on a chosen core and returns its result to
// the caller, whichever core the caller is on.
//
// A Link holds one request slot per direction. A caller on the other core
// masks its interrupts, publishes the function and argument in the slot
// directed at the target, raises the inter-core event and spins until the
// target's event handler has run the function and emptied the slot. A
// caller already on the target core runs the function in place.
//
// Calls block without a timeout. If the target never services its event
// interrupt the caller spins forever. A function running on behalf of a
// remote caller must never make a cross-core call itself: the target's
// handler would wait on the caller's core, which is spinning with
// interrupts masked and cannot service it. For the same reason the two
// cores must not call each other at the same time.
package xcall

import (
	"fmt"

	"golang.org/x/sys/cpu"
	"gvisor.dev/dualcore/pkg/atomicbitops"
	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/critical"
	"gvisor.dev/dualcore/pkg/metric"
	"gvisor.dev/dualcore/pkg/spin"
)

// Inter-core event interrupts. Each core's send event instruction raises
// the other core's interrupt.
const (
	// IRQEventA is serviced on core A and raised by core B.
	IRQEventA = 64

	// IRQEventB is serviced on core B and raised by core A.
	IRQEventB = 65

	// MaxPriority is the most urgent interrupt priority.
	MaxPriority = 0
)

// EventIRQ returns the event interrupt serviced on core id.
func EventIRQ(id coreid.ID) int {
	if id == coreid.CoreA {
		return IRQEventA
	}
	return IRQEventB
}

// Interrupts is the local interrupt controller.
type Interrupts interface {
	SetPriority(irq int, priority uint8)
	Enable(irq int)
}

// Init enables both event interrupts at MaxPriority so that nothing delays
// servicing a request. It must run once on each core before any call.
func Init(ic Interrupts) {
	for _, irq := range []int{IRQEventA, IRQEventB} {
		ic.SetPriority(irq, MaxPriority)
		ic.Enable(irq)
	}
}

// CPU is one execution context.
type CPU interface {
	coreid.Register
	critical.Masks

	// Memory returns this context's view of shared memory.
	Memory() atomicbitops.Memory

	// SendEvent raises the other core's event interrupt.
	SendEvent()
}

// Func is a function that can be run on another core. c is the context it
// runs in: the caller's own context for a local call, the target's event
// handler for a remote one.
type Func func(c CPU, arg any) any

// slot is a request directed at one core.
//
// fn, arg and ret are written by one side and read by the other only after
// the pending word has been stored and observed through atomicbitops, which
// orders them.
type slot struct {
	// busy is held by the caller owning the slot, from before publishing
	// the request until after reading the result.
	busy atomicbitops.Word

	// pending is 1 from publication until the target has stored ret.
	pending atomicbitops.Word

	fn  Func
	arg any
	ret any

	_ cpu.CacheLinePad
}

// Link is the shared call region. The zero value is ready to use; it must
// live in memory visible to both cores and never move.
type Link struct {
	slots [2]slot
}

func (l *Link) slot(target coreid.ID) *slot {
	switch target {
	case coreid.CoreA:
		return &l.slots[0]
	case coreid.CoreB:
		return &l.slots[1]
	default:
		panic(fmt.Sprintf("xcall: invalid target %v", target))
	}
}

var (
	localMetric    = metric.MustCreateNewUint64Metric("/xcall/local", "Number of calls run in place on the target core.", metric.CoreField)
	remoteMetric   = metric.MustCreateNewUint64Metric("/xcall/remote", "Number of calls sent to the other core.", metric.CoreField)
	servicedMetric = metric.MustCreateNewUint64Metric("/xcall/serviced", "Number of requests run by the event handler.", metric.CoreField)
	busyMetric     = metric.MustCreateNewUint64Metric("/xcall/busy_polls", "Number of polls waiting for a slot held by another caller.", metric.CoreField)
)

// Call runs fn(arg) on target and returns its result. c is the caller's
// context.
func (l *Link) Call(c CPU, target coreid.ID, fn Func, arg any) any {
	s := l.slot(target)
	caller := coreid.Active(c)
	if caller == target {
		localMetric.Increment(caller.Short())
		return fn(c, arg)
	}
	remoteMetric.Increment(caller.Short())

	m := c.Memory()
	var ret any
	critical.Section(c, func() {
		polls := spin.Until("xcall slot", func() bool {
			return atomicbitops.CompareAndSwap(m, &s.busy, 0, 1) == 0
		})
		busyMetric.IncrementBy(polls, caller.Short())

		s.fn, s.arg = fn, arg
		atomicbitops.Store(m, &s.pending, 1)
		c.SendEvent()
		spin.Until("xcall completion", func() bool {
			return atomicbitops.Load(m, &s.pending) == 0
		})
		ret, s.ret = s.ret, nil

		atomicbitops.Store(m, &s.busy, 0)
	})
	return ret
}

// Service runs the request pending for c's core, if any, and reports
// whether there was one. It is the body of the event interrupt handler.
func (l *Link) Service(c CPU) bool {
	core := coreid.Active(c)
	s := l.slot(core)
	m := c.Memory()
	if atomicbitops.Load(m, &s.pending) == 0 {
		return false
	}
	fn, arg := s.fn, s.arg
	s.fn, s.arg = nil, nil
	s.ret = fn(c, arg)
	atomicbitops.Store(m, &s.pending, 0)
	servicedMetric.Increment(core.Short())
	return true
}

// Pinned is a function that always runs on one core.
type Pinned[A, R any] struct {
	link   *Link
	target coreid.ID
	body   func(CPU, A) R
}

// Pin binds body to target over l.
func Pin[A, R any](l *Link, target coreid.ID, body func(c CPU, arg A) R) *Pinned[A, R] {
	if !target.Valid() {
		panic(fmt.Sprintf("xcall: cannot pin to %v", target))
	}
	return &Pinned[A, R]{link: l, target: target, body: body}
}

// Target returns the core p runs on.
func (p *Pinned[A, R]) Target() coreid.ID {
	return p.target
}

// Call runs p's body with arg on the target core. From the target core the
// body runs in place in c; from the other core the call goes through the
// link and the body runs in the target's event handler.
func (p *Pinned[A, R]) Call(c CPU, arg A) R {
	ret, _ := p.link.Call(c, p.target, p.invoke, arg).(R)
	return ret
}

func (p *Pinned[A, R]) invoke(c CPU, arg any) any {
	a, _ := arg.(A)
	return p.body(c, a)
}
