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

package cmd

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"gvisor.dev/dualcore/corectl/cmd/util"
	"gvisor.dev/dualcore/corectl/config"
	"gvisor.dev/dualcore/pkg/hsem"
	"gvisor.dev/dualcore/pkg/log"
	"gvisor.dev/dualcore/pkg/metric"
	"gvisor.dev/dualcore/pkg/scenario"
)

// Stress implements subcommands.Command for the "stress" command.
type Stress struct {
	passes     int
	iterations int
	metrics    bool
}

// Name implements subcommands.Command.Name.
func (*Stress) Name() string {
	return "stress"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stress) Synopsis() string {
	return "run every scenario repeatedly and print metrics"
}

// Usage implements subcommands.Command.Usage.
func (*Stress) Usage() string {
	return `stress [-passes=<n>] [-iterations=<n>] [-metrics=<true|false>] - runs every scenario n times, then prints metric data in Prometheus metric format.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Stress) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.passes, "passes", 10, "number of times to run every scenario.")
	f.IntVar(&s.iterations, "iterations", 200, "increments per core in the counter scenarios.")
	f.BoolVar(&s.metrics, "metrics", true, "print metrics to stdout when done.")
}

// Execute implements subcommands.Command.Execute.
func (s *Stress) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || s.passes <= 0 || s.iterations < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	b := newBoard(conf)
	defer closeBoard(b)

	for pass := 0; pass < s.passes; pass++ {
		index := pass % hsem.Count
		log.Debugf("stress: pass %d on semaphore %d", pass, index)
		if _, err := scenario.RaceCAS(ctx, b, 10); err != nil {
			return util.Errorf("pass %d: race: %v", pass, err)
		}
		if err := scenario.HSEMHandoff(ctx, b, index); err != nil {
			return util.Errorf("pass %d: hand-off: %v", pass, err)
		}
		if _, err := scenario.HSEMCounter(ctx, b, index, s.iterations); err != nil {
			return util.Errorf("pass %d: counter: %v", pass, err)
		}
		if _, err := scenario.CritlockCounter(ctx, b, s.iterations); err != nil {
			return util.Errorf("pass %d: critlock: %v", pass, err)
		}
		if _, _, err := scenario.PinnedSquare(ctx, b, pass); err != nil {
			return util.Errorf("pass %d: call: %v", pass, err)
		}
		if err := scenario.InvalidIndex(ctx, b); err != nil {
			return util.Errorf("pass %d: invalid index: %v", pass, err)
		}
	}
	util.Infof("%d passes succeeded", s.passes)

	if s.metrics {
		if err := metric.WritePrometheus(os.Stdout); err != nil {
			util.Fatalf("Cannot write metrics to stdout: %v", err)
		}
	}
	return subcommands.ExitSuccess
}
