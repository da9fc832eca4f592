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
	"gvisor.dev/dualcore/pkg/coreid"
	"gvisor.dev/dualcore/pkg/scenario"
)

// Race implements subcommands.Command for the "race" command.
type Race struct {
	rounds int
}

// Name implements subcommands.Command.Name.
func (*Race) Name() string {
	return "race"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Race) Synopsis() string {
	return "race both cores to compare-exchange one word"
}

// Usage implements subcommands.Command.Usage.
func (*Race) Usage() string {
	return `race [-rounds=<n>] - has both cores compare-exchange the same shared word from 0 to 1 and checks that exactly one wins each round.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Race) SetFlags(f *flag.FlagSet) {
	f.IntVar(&r.rounds, "rounds", 1000, "number of races to run.")
}

// Execute implements subcommands.Command.Execute.
func (r *Race) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || r.rounds <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	b := newBoard(conf)
	defer closeBoard(b)

	res, err := scenario.RaceCAS(ctx, b, r.rounds)
	if err != nil {
		return util.Errorf("race: %v", err)
	}
	util.Infof("%d rounds: core A won %d, core B won %d", res.Rounds, res.Wins[coreid.CoreA], res.Wins[coreid.CoreB])
	return subcommands.ExitSuccess
}
