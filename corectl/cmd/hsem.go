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
	"fmt"
	"text/tabwriter"

	"github.com/google/subcommands"
	"gvisor.dev/dualcore/corectl/cmd/util"
	"gvisor.dev/dualcore/corectl/config"
	"gvisor.dev/dualcore/pkg/hsem"
	"gvisor.dev/dualcore/pkg/scenario"
)

// HSEM implements subcommands.Command for the "hsem" command.
type HSEM struct {
	index      int
	iterations int
	status     bool
}

// Name implements subcommands.Command.Name.
func (*HSEM) Name() string {
	return "hsem"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*HSEM) Synopsis() string {
	return "exercise a hardware semaphore from both cores"
}

// Usage implements subcommands.Command.Usage.
func (*HSEM) Usage() string {
	return `hsem [-index=<i>] [-iterations=<n>] [-status] - hands semaphore i from core A to core B, then has both cores count to n under it.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (h *HSEM) SetFlags(f *flag.FlagSet) {
	f.IntVar(&h.index, "index", 5, "semaphore to use.")
	f.IntVar(&h.iterations, "iterations", 1000, "increments per core in the counter run.")
	f.BoolVar(&h.status, "status", false, "print the state of every semaphore afterwards.")
}

// Execute implements subcommands.Command.Execute.
func (h *HSEM) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || h.iterations < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	b := newBoard(conf)
	defer closeBoard(b)

	if !hsem.IsValid(h.index) {
		// Out of range indices are a supported no-op; show that they are.
		if err := scenario.InvalidIndex(ctx, b); err != nil {
			return util.Errorf("hsem: %v", err)
		}
		util.Infof("semaphore %d does not exist; every operation on it failed without touching the registers", h.index)
		return subcommands.ExitSuccess
	}

	if err := scenario.HSEMHandoff(ctx, b, h.index); err != nil {
		return util.Errorf("hsem: %v", err)
	}
	util.Infof("semaphore %d handed from core A to core B", h.index)
	count, err := scenario.HSEMCounter(ctx, b, h.index, h.iterations)
	if err != nil {
		return util.Errorf("hsem: %v", err)
	}
	util.Infof("counted to %d under semaphore %d", count, h.index)

	if h.status {
		w := tabwriter.NewWriter(&util.Writer{}, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "INDEX\tSTATUS\n")
		for i := 0; i < hsem.Count; i++ {
			fmt.Fprintf(w, "%d\t%v\n", i, b.Machine.HSEM().Status(i))
		}
		w.Flush()
	}
	return subcommands.ExitSuccess
}
