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

package spin

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"gvisor.dev/dualcore/pkg/log"
)

func TestUntilCountsPolls(t *testing.T) {
	n := 0
	polls := Until("counter", func() bool {
		n++
		return n == 5
	})
	if polls != 4 {
		t.Errorf("Until returned %d polls, want 4", polls)
	}
}

func TestUntilWaitsForOtherGoroutine(t *testing.T) {
	var flag atomic.Bool
	go func() {
		time.Sleep(10 * time.Millisecond)
		flag.Store(true)
	}()

	done := make(chan struct{})
	go func() {
		Until("flag", flag.Load)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Until did not return after the flag was set")
	}
}

func TestPollStops(t *testing.T) {
	calls := 0
	ok := Poll("never", backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3), func() bool {
		calls++
		return false
	})
	if ok {
		t.Errorf("Poll succeeded on a condition that is never true")
	}
	if calls != 4 {
		t.Errorf("condition checked %d times, want 4", calls)
	}
}

func TestPollSucceeds(t *testing.T) {
	calls := 0
	ok := Poll("third", backoff.NewConstantBackOff(time.Microsecond), func() bool {
		calls++
		return calls == 3
	})
	if !ok || calls != 3 {
		t.Errorf("Poll = %t after %d calls, want true after 3", ok, calls)
	}
	if !Poll("nil policy", nil, func() bool { return true }) {
		t.Errorf("Poll with nil policy returned false")
	}
}

type lines struct {
	mu  sync.Mutex
	buf []string
}

func (l *lines) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf = append(l.buf, string(b))
	return len(b), nil
}

func TestStallReport(t *testing.T) {
	out := &lines{}
	log.SetTarget(&log.Writer{Next: out})
	defer log.SetTarget(log.GoogleEmitter{Writer: &log.Writer{Next: &lines{}}})
	SetStallThreshold(2)
	defer SetStallThreshold(DefaultStallThreshold)

	n := 0
	Until("slow peer", func() bool {
		n++
		return n > 4
	})

	out.mu.Lock()
	defer out.mu.Unlock()
	found := false
	for _, l := range out.buf {
		if strings.Contains(l, "still waiting for slow peer") {
			found = true
		}
	}
	if !found {
		t.Errorf("no stall report in %q", out.buf)
	}
}
