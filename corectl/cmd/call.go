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

	"github.com/google/subcommands"
	"gvisor.dev/dualcore/corectl/cmd/util"
	"gvisor.dev/dualcore/corectl/config"
	"gvisor.dev/dualcore/pkg/scenario"
)

// Call implements subcommands.Command for the "call" command.
type Call struct {
	n int
}

// Name implements subcommands.Command.Name.
func (*Call) Name() string {
	return "call"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Call) Synopsis() string {
	return "call a function pinned to core B from both cores"
}

// Usage implements subcommands.Command.Usage.
func (*Call) Usage() string {
	return `call [-n=<n>] - squares n with a function pinned to core B, called remotely from core A and locally from core B.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Call) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.n, "n", 7, "number to square.")
}

// Execute implements subcommands.Command.Execute.
func (c *Call) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	b := newBoard(conf)
	defer closeBoard(b)

	remote, local, err := scenario.PinnedSquare(ctx, b, c.n)
	if err != nil {
		return util.Errorf("call: %v", err)
	}
	util.Infof("from core A: %d on %v (handler=%t)", remote.Value, remote.Core, remote.Handler)
	util.Infof("from core B: %d on %v (handler=%t)", local.Value, local.Core, local.Handler)
	return subcommands.ExitSuccess
}
