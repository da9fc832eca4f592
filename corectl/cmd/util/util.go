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

// Package util groups a bunch of common helper functions used by commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/subcommands"
	"gvisor.dev/dualcore/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by scripts driving corectl, and the format is JSON.
var ErrorLogger io.Writer

// Writer writes to log and stdout.
type Writer struct{}

// Write implements io.Writer.
func (i *Writer) Write(data []byte) (n int, err error) {
	log.Infof("%s", data)
	return os.Stdout.Write(data)
}

// Infof writes message to log and stdout.
func Infof(format string, args ...any) {
	log.Infof(format, args...)
	fmt.Fprintf(os.Stdout, format+"\n", args...)
}

// Errorf logs the error to the log, to stderr, and as JSON to ErrorLogger.
// It returns subcommands.ExitFailure for convenience with
// subcommand.Execute() methods:
//
//	return Errorf("hand-off failed: %v", err)
func Errorf(format string, args ...any) subcommands.ExitStatus {
	errorf(format, args...)
	return subcommands.ExitFailure
}

func errorf(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)

	errMsg := fmt.Sprintf(format, args...)
	if ErrorLogger == nil {
		return
	}
	j, err := json.Marshal(struct {
		Msg   string    `json:"msg"`
		Level string    `json:"level"`
		Time  time.Time `json:"time"`
	}{
		Msg:   errMsg,
		Level: "error",
		Time:  time.Now(),
	})
	if err != nil {
		log.Warningf("failed to marshal error message %q: %v", errMsg, err)
		return
	}
	if _, err := ErrorLogger.Write(append(j, '\n')); err != nil {
		log.Warningf("failed to write error message %q: %v", errMsg, err)
	}
}

// Fatalf logs the same way as Errorf() does, plus *exits* the process.
func Fatalf(format string, args ...any) {
	errorf(format, args...)
	// Return an error that is unlikely to be used by scripts.
	os.Exit(128)
}
