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
	"fmt"
	"sync"
	"sync/atomic"

	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/critical"
	"gvisor.dev/dualcore/pkg/log"
	"gvisor.dev/dualcore/pkg/metric"
)

// Handler is an interrupt handler. It runs in handler mode on its core.
type Handler func(c *Context)

var (
	handledMetric   = metric.MustCreateNewUint64Metric("/sim/irqs_handled", "Number of interrupt handlers run.", metric.CoreField)
	unhandledMetric = metric.MustCreateNewUint64Metric("/sim/irqs_unhandled", "Number of interrupts taken with no handler installed.", metric.CoreField)
	eventsMetric    = metric.MustCreateNewUint64Metric("/sim/events_sent", "Number of send event instructions executed.", metric.CoreField)
)

// Core is one simulated core: its interrupt mask bits, its interrupt
// controller and the goroutine that takes its interrupts.
//
// Handlers do not nest and run on their own goroutine, alongside the
// thread. A thread that reads or writes a mask bit waits for the running
// handler to return first, so masking interrupts in thread mode excludes
// every handler on the core, as on hardware.
type Core struct {
	m     *Machine
	id    coreid.ID
	index int
	cpuid uint32
	hw    uint32

	// mu protects the fields below and is the lock of cond.
	mu            sync.Mutex
	cond          *sync.Cond
	primask       bool
	faultmask     bool
	handlerActive bool
	stopped       bool
	pending       irqSet
	enabled       irqSet
	priority      [NumIRQ]uint8
	handlers      [NumIRQ]Handler

	thread Context

	injectedFailures atomic.Int32
	failedStores     atomic.Uint64
	barriers         atomic.Uint64
}

func newCore(m *Machine, id coreid.ID, cpuid, hw uint32) *Core {
	c := &Core{
		m:     m,
		id:    id,
		index: int(id) - 1,
		cpuid: cpuid,
		hw:    hw,
	}
	c.cond = sync.NewCond(&c.mu)
	c.thread = Context{core: c}
	return c
}

// ID returns the core's identity.
func (c *Core) ID() coreid.ID {
	return c.id
}

// Thread returns the core's thread mode context. Only one goroutine may
// run as the thread at a time.
func (c *Core) Thread() *Context {
	return &c.thread
}

// Install sets the handler for irq.
func (c *Core) Install(irq int, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[irq] = h
}

// SetPriority sets the priority of irq. Lower values are more urgent.
func (c *Core) SetPriority(irq int, priority uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.priority[irq] = priority
}

// Enable unmasks irq in the interrupt controller.
func (c *Core) Enable(irq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled.add(irq)
	c.cond.Broadcast()
}

// Disable masks irq in the interrupt controller.
func (c *Core) Disable(irq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enabled.remove(irq)
}

// Enabled returns true if irq is enabled.
func (c *Core) Enabled(irq int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled.has(irq)
}

// Priority returns the priority of irq.
func (c *Core) Priority(irq int) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.priority[irq]
}

// Pend marks irq pending. It is taken once it is enabled and the core's
// masks allow it.
func (c *Core) Pend(irq int) {
	if irq < 0 || irq >= NumIRQ {
		panic(fmt.Sprintf("sim: irq %d out of range", irq))
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending.add(irq)
	c.cond.Broadcast()
}

// Pending returns true if irq is pending.
func (c *Core) Pending(irq int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.has(irq)
}

// InjectExclusiveFailures makes the next n conditional stores on this core
// fail as though another observer had written the word.
func (c *Core) InjectExclusiveFailures(n int32) {
	c.injectedFailures.Add(n)
}

func (c *Core) consumeInjectedFailure() bool {
	for {
		n := c.injectedFailures.Load()
		if n <= 0 {
			return false
		}
		if c.injectedFailures.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// FailedStores returns the number of conditional stores that failed.
func (c *Core) FailedStores() uint64 {
	return c.failedStores.Load()
}

// Barriers returns the number of barriers executed.
func (c *Core) Barriers() uint64 {
	return c.barriers.Load()
}

// next picks the most urgent deliverable interrupt, lowest number first
// among equals. It returns -1 if none can be taken. mu must be held.
func (c *Core) next() int {
	if c.primask || c.faultmask {
		return -1
	}
	ready := c.pending.and(&c.enabled)
	best := -1
	ready.each(func(irq int) {
		if best < 0 || c.priority[irq] < c.priority[best] {
			best = irq
		}
	})
	return best
}

// waitIdle blocks a thread mode access until no handler is running. mu must
// be held.
func (c *Core) waitIdle() {
	for c.handlerActive && !c.stopped {
		c.cond.Wait()
	}
}

// dispatch takes interrupts until the machine stops.
func (c *Core) dispatch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		irq := c.next()
		for irq < 0 && !c.stopped {
			c.cond.Wait()
			irq = c.next()
		}
		if c.stopped {
			return
		}
		c.pending.remove(irq)
		h := c.handlers[irq]
		c.handlerActive = true
		c.mu.Unlock()

		// Exception entry and return clear the local monitor.
		c.m.monitor.clear(c.index)
		if h != nil {
			h(&Context{core: c, ipsr: uint32(critical.ExternalBase + irq)})
			handledMetric.Increment(c.id.Short())
		} else {
			unhandledMetric.Increment(c.id.Short())
			log.Warningf("sim: %v took irq %d with no handler", c.id, irq)
		}
		c.m.monitor.clear(c.index)

		c.mu.Lock()
		c.handlerActive = false
		c.cond.Broadcast()
	}
}

func (c *Core) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	c.cond.Broadcast()
}

func (c *Core) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = false
}
