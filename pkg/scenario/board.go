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

// Package scenario runs the synchronization primitives against each other
// on a simulated board and checks the outcome.
package scenario

import (
	"errors"
	"fmt"

	"gvisor.dev/dualcore/pkg/atomicbitops"
	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/hsem"
	"gvisor.dev/dualcore/pkg/log"
	"gvisor.dev/dualcore/pkg/metric"
	"gvisor.dev/dualcore/pkg/shm"
	"gvisor.dev/dualcore/pkg/sim"
	"gvisor.dev/dualcore/pkg/spin"
	"gvisor.dev/dualcore/pkg/xcall"
)

// ErrFailed is wrapped by every error reporting an outcome the primitives
// should have made impossible.
var ErrFailed = errors.New("scenario failed")

// Layout of the shared region.
const (
	raceWord = iota
	readyWord
	stageWord
	counterWord

	// SharedWords is the size of the shared region.
	SharedWords = 16
)

var failuresMetric = metric.MustCreateNewUint64Metric("/scenario/failures", "Number of scenario runs whose outcome was wrong.")

// Options configures a Board.
type Options struct {
	// Sim configures the machine.
	Sim sim.Config

	// SharedFile, if set, backs the shared region with a file so that
	// other processes can watch it. Otherwise the region is anonymous.
	SharedFile string

	// HSEM are extra options for every core's semaphore driver.
	HSEM []hsem.Option
}

// Board is a simulated machine set up the way the firmware sets up the
// real one: both event interrupts serviced by one cross-core link, and a
// shared region for the words both cores touch.
type Board struct {
	Machine *sim.Machine
	Shared  *shm.Region

	link     xcall.Link
	hsemOpts []hsem.Option
}

// NewBoard builds a board. Close must be called when done.
func NewBoard(opts Options) (*Board, error) {
	m, err := sim.New(opts.Sim)
	if err != nil {
		return nil, err
	}
	var region *shm.Region
	if opts.SharedFile != "" {
		region, err = shm.Open(opts.SharedFile, SharedWords)
	} else {
		region, err = shm.NewAnonymous(SharedWords)
	}
	if err != nil {
		return nil, fmt.Errorf("mapping shared region: %w", err)
	}

	b := &Board{
		Machine:  m,
		Shared:   region,
		hsemOpts: append([]hsem.Option{hsem.WithKey(opts.Sim.HSEMKey)}, opts.HSEM...),
	}
	for _, id := range []coreid.ID{coreid.CoreA, coreid.CoreB} {
		core := m.Core(id)
		core.Install(xcall.EventIRQ(id), func(c *sim.Context) {
			b.link.Service(c)
		})
		xcall.Init(core)
	}
	return b, nil
}

// Close releases the shared region.
func (b *Board) Close() error {
	b.Machine.Stop()
	return b.Shared.Close()
}

// Link returns the board's cross-core link.
func (b *Board) Link() *xcall.Link {
	return &b.link
}

// Semaphores returns the semaphore driver for the core c runs on.
func (b *Board) Semaphores(c *sim.Context) *hsem.Semaphores {
	return hsem.New(c, c.HSEM(), b.hsemOpts...)
}

func (b *Board) word(i int) *atomicbitops.Word {
	return b.Shared.Word(i)
}

// reset zeroes the shared region. The machine must be stopped.
func (b *Board) reset() {
	m := b.Machine.Core(coreid.CoreA).Thread().Memory()
	for i := 0; i < b.Shared.Len(); i++ {
		atomicbitops.Store(m, b.word(i), 0)
	}
}

// load reads shared word i from core A. The machine must be stopped.
func (b *Board) load(i int) uint32 {
	return atomicbitops.Load(b.Machine.Core(coreid.CoreA).Thread().Memory(), b.word(i))
}

// rendezvous waits until n cores have arrived at w.
func rendezvous(t *sim.Context, w *atomicbitops.Word, n uint32) {
	m := t.Memory()
	atomicbitops.FetchAdd(m, w, 1)
	spin.Until("rendezvous", func() bool {
		return atomicbitops.Load(m, w) >= n
	})
}

// awaitStage waits until the stage word reaches stage.
func awaitStage(t *sim.Context, w *atomicbitops.Word, stage uint32) {
	m := t.Memory()
	spin.Until(fmt.Sprintf("stage %d", stage), func() bool {
		return atomicbitops.Load(m, w) >= stage
	})
}

func failf(format string, v ...any) error {
	failuresMetric.Increment()
	err := fmt.Errorf("%w: %s", ErrFailed, fmt.Sprintf(format, v...))
	log.Warningf("scenario: %v", err)
	return err
}
