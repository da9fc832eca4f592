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

// Package sim simulates the dual-core board on the host.
//
// A Machine has two cores sharing an exclusive access monitor and a
// hardware semaphore block. Each core has PRIMASK and FAULTMASK bits, an
// interrupt controller with enable, priority and pending state, and a
// goroutine that runs interrupt handlers whenever the masks allow it. A
// core's send event instruction pends the other core's event interrupt.
//
// Goroutines play the cores' threads. The goroutine acting as a core's
// thread uses that core's Thread context for every hardware access; a
// handler receives its own handler mode context.
package sim

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/hsem"
	"gvisor.dev/dualcore/pkg/log"
)

// Config configures a Machine.
type Config struct {
	// CPUIDA and CPUIDB are the CPUID register values of the two cores.
	// Zero selects the reset value.
	CPUIDA uint32
	CPUIDB uint32

	// HSEMKey is the key programmed into the semaphore block.
	HSEMKey uint16
}

// Machine is a simulated dual-core board.
type Machine struct {
	cores   [2]*Core
	monitor monitor
	hsem    SemaphoreBlock

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup
}

// New returns a stopped machine. The CPUID values must identify one core A
// and one core B.
func New(conf Config) (*Machine, error) {
	if conf.CPUIDA == 0 {
		conf.CPUIDA = coreid.CPUIDA
	}
	if conf.CPUIDB == 0 {
		conf.CPUIDB = coreid.CPUIDB
	}
	if id, ok := coreid.FromPartNumber(coreid.PartNumber(conf.CPUIDA)); !ok || id != coreid.CoreA {
		return nil, fmt.Errorf("CPUID %#x does not identify core A", conf.CPUIDA)
	}
	if id, ok := coreid.FromPartNumber(coreid.PartNumber(conf.CPUIDB)); !ok || id != coreid.CoreB {
		return nil, fmt.Errorf("CPUID %#x does not identify core B", conf.CPUIDB)
	}

	m := &Machine{}
	m.cores[0] = newCore(m, coreid.CoreA, conf.CPUIDA, hsem.HardwareCoreA)
	m.cores[1] = newCore(m, coreid.CoreB, conf.CPUIDB, hsem.HardwareCoreB)
	m.hsem.SetKey(conf.HSEMKey)
	return m, nil
}

// Core returns core id. It panics for None.
func (m *Machine) Core(id coreid.ID) *Core {
	if !id.Valid() {
		panic(fmt.Sprintf("sim: no such core %v", id))
	}
	return m.cores[int(id)-1]
}

// HSEM returns the semaphore block.
func (m *Machine) HSEM() *SemaphoreBlock {
	return &m.hsem
}

// Start starts taking interrupts on both cores.
func (m *Machine) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	for _, c := range m.cores {
		c.reset()
		m.wg.Add(1)
		go func(c *Core) {
			defer m.wg.Done()
			c.dispatch()
		}(c)
	}
	log.Debugf("sim: machine started")
}

// Stop stops taking interrupts and waits for running handlers to return. A
// handler that never returns blocks Stop forever.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	for _, c := range m.cores {
		c.stop()
	}
	m.wg.Wait()
	m.running = false
	log.Debugf("sim: machine stopped")
}

// Main is the thread mode program of one core.
type Main func(ctx context.Context, t *Context) error

// Run starts the machine, runs mainA on core A's thread and mainB on core
// B's thread concurrently, and stops the machine once both return. Either
// may be nil. The first error is returned and cancels ctx for the other.
func (m *Machine) Run(ctx context.Context, mainA, mainB Main) error {
	m.Start()
	defer m.Stop()

	g, gctx := errgroup.WithContext(ctx)
	for i, prog := range []Main{mainA, mainB} {
		if prog == nil {
			continue
		}
		prog := prog
		t := m.cores[i].Thread()
		g.Go(func() error {
			if err := prog(gctx, t); err != nil {
				return fmt.Errorf("%v: %w", t.core.id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
