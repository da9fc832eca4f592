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

// Package cmd holds implementations of the corectl commands.
package cmd

import (
	"gvisor.dev/dualcore/corectl/cmd/util"
	"gvisor.dev/dualcore/corectl/config"
	"gvisor.dev/dualcore/pkg/scenario"
)

// newBoard builds the board described by conf, or exits.
func newBoard(conf *config.Config) *scenario.Board {
	b, err := scenario.NewBoard(conf.BoardOptions())
	if err != nil {
		util.Fatalf("creating board: %v", err)
	}
	return b
}

// closeBoard releases b, reporting but otherwise ignoring errors.
func closeBoard(b *scenario.Board) {
	if err := b.Close(); err != nil {
		util.Infof("closing board: %v", err)
	}
}
