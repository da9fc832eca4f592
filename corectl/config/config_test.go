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

package config

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/dualcore/pkg/sim"
)

func newFlagSet() *flag.FlagSet {
	testFlags := flag.NewFlagSet("test", flag.ContinueOnError)
	RegisterFlags(testFlags)
	return testFlags
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "corectl.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	c, err := NewFromFlags(newFlagSet())
	if err != nil {
		t.Fatal(err)
	}
	// All defaults doesn't require setting flags.
	if flags := c.ToFlags(); len(flags) > 0 {
		t.Errorf("default flags not set correctly for: %s", flags)
	}
	if diff := cmp.Diff(sim.Config{}, c.SimConfig()); diff != "" {
		t.Errorf("SimConfig mismatch (-want +got):\n%s", diff)
	}
	if opts := c.BoardOptions(); len(opts.HSEM) != 0 {
		t.Errorf("default board has %d semaphore options, want 0", len(opts.HSEM))
	}
}

func TestFromFlags(t *testing.T) {
	testFlags := newFlagSet()
	for name, val := range map[string]string{
		"debug":      "true",
		"cpuid-a":    "0x411FC271",
		"hsem-key":   "0xBEEF",
		"poll-limit": "1000",
		"log-format": "json",
	} {
		if err := testFlags.Set(name, val); err != nil {
			t.Fatalf("Flag set %s=%s: %v", name, val, err)
		}
	}
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	want := &Config{
		Debug:          true,
		LogFormat:      "json",
		CPUIDA:         0x411FC271,
		HSEMKey:        0xBEEF,
		PollLimit:      1000,
		StallThreshold: 1 << 20,
	}
	if diff := cmp.Diff(want, c); diff != "" {
		t.Errorf("Config mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(sim.Config{CPUIDA: 0x411FC271, HSEMKey: 0xBEEF}, c.SimConfig()); diff != "" {
		t.Errorf("SimConfig mismatch (-want +got):\n%s", diff)
	}
	if opts := c.BoardOptions(); len(opts.HSEM) != 1 {
		t.Errorf("board has %d semaphore options, want 1", len(opts.HSEM))
	}
}

func TestToFlagsFromFlags(t *testing.T) {
	testFlags := newFlagSet()
	testFlags.Set("debug", "true")
	testFlags.Set("shared-file", "/tmp/region")
	testFlags.Set("stall-threshold", "5")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}

	got := c.ToFlags()
	want := []string{"--debug=true", "--stall-threshold=5", "--shared-file=/tmp/region"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ToFlags mismatch (-want +got):\n%s", diff)
	}

	// The flags must parse back into the same Config.
	again := newFlagSet()
	if err := again.Parse(got); err != nil {
		t.Fatalf("Parse(%v): %v", got, err)
	}
	c2, err := NewFromFlags(again)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(c, c2); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	for _, tc := range []struct {
		name, val string
	}{
		{name: "log-format", val: "json-k8s"},
		{name: "cpuid-a", val: "0x100000000"},
		{name: "hsem-key", val: "0x10000"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			testFlags := newFlagSet()
			if err := testFlags.Set(tc.name, tc.val); err != nil {
				t.Fatalf("Flag set: %v", err)
			}
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags with %s=%s succeeded", tc.name, tc.val)
			}
		})
	}
}

func TestConfigFile(t *testing.T) {
	path := writeConfig(t, `
debug = true
log-format = "json"
cpuid-b = 0x410FC241
poll-limit = 64
`)
	testFlags := newFlagSet()
	testFlags.Set("config", path)
	testFlags.Set("poll-limit", "8")
	c, err := NewFromFlags(testFlags)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Debug {
		t.Errorf("Debug not read from the file")
	}
	if c.LogFormat != "json" {
		t.Errorf("LogFormat = %q, want %q", c.LogFormat, "json")
	}
	if c.CPUIDB != 0x410FC241 {
		t.Errorf("CPUIDB = %#x, want 0x410fc241", c.CPUIDB)
	}
	if c.PollLimit != 8 {
		t.Errorf("PollLimit = %d, want the command line's 8", c.PollLimit)
	}
}

func TestConfigFileErrors(t *testing.T) {
	for name, contents := range map[string]string{
		"unknown flag": `no-such-flag = 1`,
		"bad value":    `poll-limit = "lots"`,
		"nested":       `config = "other.toml"`,
		"syntax":       `debug = `,
	} {
		t.Run(name, func(t *testing.T) {
			testFlags := newFlagSet()
			testFlags.Set("config", writeConfig(t, contents))
			if _, err := NewFromFlags(testFlags); err == nil {
				t.Errorf("NewFromFlags succeeded")
			} else if !strings.Contains(err.Error(), "corectl.toml") {
				t.Errorf("error %q does not name the file", err)
			}
		})
	}
}
