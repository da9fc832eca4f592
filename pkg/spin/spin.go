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

// Package spin implements the busy-wait loops used by the synchronization
// primitives.
//
// Waits here are true spins. There is no scheduler underneath to yield to,
// so a wait whose condition never becomes true never returns. Long waits
// are reported through a rate-limited warning so a stall is visible, but
// they are never abandoned unless the caller supplied a poll policy.
package spin

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/dualcore/pkg/log"
	"gvisor.dev/dualcore/pkg/metric"
)

// DefaultStallThreshold is the default number of polls after which a wait
// is reported as stalled.
const DefaultStallThreshold = 1 << 20

var stallThreshold atomic.Uint64

func init() {
	stallThreshold.Store(DefaultStallThreshold)
}

// SetStallThreshold sets the number of polls between stall reports. Zero
// disables reports.
func SetStallThreshold(polls uint64) {
	stallThreshold.Store(polls)
}

var (
	pollsMetric  = metric.MustCreateNewUint64Metric("/spin/polls", "Number of unsuccessful polls in spin waits.")
	stallsMetric = metric.MustCreateNewUint64Metric("/spin/stalls", "Number of stall reports issued by spin waits.")

	stallLog = log.BasicRateLimitedLogger(time.Second)
)

// Relax is the body of one spin iteration. On the host it yields the
// processor so that the goroutine playing the other core can make progress.
func Relax() {
	runtime.Gosched()
}

// waiter tracks one wait for stall reporting.
type waiter struct {
	what  string
	polls uint64
}

func (w *waiter) miss() {
	w.polls++
	if t := stallThreshold.Load(); t != 0 && w.polls%t == 0 {
		stallsMetric.Increment()
		stallLog.Warningf("spin: still waiting for %s after %d polls", w.what, w.polls)
	}
}

func (w *waiter) done() uint64 {
	pollsMetric.IncrementBy(w.polls)
	return w.polls
}

// Until polls done until it returns true and returns the number of polls
// that failed. what names the condition in stall reports.
func Until(what string, done func() bool) uint64 {
	w := waiter{what: what}
	for !done() {
		w.miss()
		Relax()
	}
	return w.done()
}

// Poll is Until bounded by b. Between failed polls it waits for the
// duration b returns, spinning once for a zero duration. It returns false
// once b returns backoff.Stop. A nil b never stops.
func Poll(what string, b backoff.BackOff, done func() bool) bool {
	if b == nil {
		Until(what, done)
		return true
	}
	w := waiter{what: what}
	defer w.done()
	b.Reset()
	for !done() {
		w.miss()
		d := b.NextBackOff()
		if d == backoff.Stop {
			return false
		}
		if d > 0 {
			time.Sleep(d)
		} else {
			Relax()
		}
	}
	return true
}
