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

// Package config provides basic infrastructure to set configuration settings
// for corectl. Each setting that can be changed from the command line must
// have a field in Config with a `flag` tag naming it.
package config

import (
	"flag"
	"fmt"
	"math"
	"reflect"
	"strconv"

	"github.com/BurntSushi/toml"
	"gvisor.dev/dualcore/pkg/hsem"
	"gvisor.dev/dualcore/pkg/log"
	"gvisor.dev/dualcore/pkg/scenario"
	"gvisor.dev/dualcore/pkg/sim"
)

// Config holds configuration that is not part of a single command.
type Config struct {
	// ConfigFile is a TOML file holding flag values. Flags set on the
	// command line take precedence over the file.
	ConfigFile string `flag:"config"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFilename is the filename to log to, if not empty. %COMMAND% and
	// %TIMESTAMP% are replaced.
	LogFilename string `flag:"log"`

	// LogFormat is the log format: text or json.
	LogFormat string `flag:"log-format"`

	// CPUIDA and CPUIDB are the CPUID register values of the simulated
	// cores. Zero selects the reset value.
	CPUIDA uint `flag:"cpuid-a"`
	CPUIDB uint `flag:"cpuid-b"`

	// HSEMKey is the key of the semaphore clear register.
	HSEMKey uint `flag:"hsem-key"`

	// PollLimit bounds semaphore acquires to that many failed polls. Zero
	// waits forever.
	PollLimit uint64 `flag:"poll-limit"`

	// StallThreshold is the number of polls between stall warnings of a
	// spin wait. Zero disables them.
	StallThreshold uint64 `flag:"stall-threshold"`

	// SharedFile backs the shared region with a file, if set.
	SharedFile string `flag:"shared-file"`
}

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "TOML file with flag values, keyed by flag name. Flags on the command line take precedence.")

	// Debugging flags.
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr. The following variables are available: %TIMESTAMP%, %COMMAND%.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Uint64("stall-threshold", 1<<20, "number of polls between warnings about a stalled spin wait. 0 disables them.")

	// Flags that control the simulated machine.
	flagSet.Uint("cpuid-a", 0, "CPUID register value of core A. 0 uses the reset value.")
	flagSet.Uint("cpuid-b", 0, "CPUID register value of core B. 0 uses the reset value.")
	flagSet.Uint("hsem-key", 0, "key of the hardware semaphore clear register.")
	flagSet.Uint64("poll-limit", 0, "number of failed polls after which a semaphore acquire gives up. 0 waits forever.")
	flagSet.String("shared-file", "", "file backing the region shared by the cores, so that other processes can watch it. Anonymous memory if empty.")
}

func get(v flag.Value) any {
	return v.(flag.Getter).Get()
}

// NewFromFlags creates a new Config with values coming from command line
// flags, and from the file named by the config flag for flags that were not
// set explicitly.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	if path := get(flagSet.Lookup("config").Value).(string); path != "" {
		if err := applyFile(flagSet, path); err != nil {
			return nil, err
		}
	}

	conf := &Config{}
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(get(fl.Value))
		obj.Field(i).Set(x)
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// applyFile sets the flags named in the TOML file at path, skipping those
// already set on the command line.
func applyFile(flagSet *flag.FlagSet, path string) error {
	var values map[string]any
	if _, err := toml.DecodeFile(path, &values); err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	explicit := make(map[string]bool)
	flagSet.Visit(func(fl *flag.Flag) {
		explicit[fl.Name] = true
	})
	for name, v := range values {
		if name == "config" {
			return fmt.Errorf("config file %q cannot name another config file", path)
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			return fmt.Errorf("config file %q: unknown flag %q", path, name)
		}
		if explicit[name] {
			continue
		}
		if err := fl.Value.Set(fmt.Sprint(v)); err != nil {
			return fmt.Errorf("config file %q: error setting flag %s=%v: %w", path, name, v, err)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text' or 'json'", c.LogFormat)
	}
	if c.CPUIDA > math.MaxUint32 || c.CPUIDB > math.MaxUint32 {
		return fmt.Errorf("CPUID values %#x, %#x do not fit in 32 bits", c.CPUIDA, c.CPUIDB)
	}
	if c.HSEMKey > math.MaxUint16 {
		return fmt.Errorf("HSEM key %#x does not fit in 16 bits", c.HSEMKey)
	}
	return nil
}

// ToFlags returns a slice of flags that correspond to the given Config.
func (c *Config) ToFlags() []string {
	var rv []string

	// Construct a temporary set for default plumbing.
	flagSet := flag.NewFlagSet("tmp", flag.ContinueOnError)
	RegisterFlags(flagSet)

	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		val := getVal(obj.Field(i))

		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		if val == fl.DefValue {
			continue
		}
		rv = append(rv, fmt.Sprintf("--%s=%s", fl.Name, val))
	}
	return rv
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	for _, f := range c.ToFlags() {
		log.Infof("  %s", f)
	}
}

// SimConfig returns the configuration of the simulated machine.
func (c *Config) SimConfig() sim.Config {
	return sim.Config{
		CPUIDA:  uint32(c.CPUIDA),
		CPUIDB:  uint32(c.CPUIDB),
		HSEMKey: uint16(c.HSEMKey),
	}
}

// BoardOptions returns the options of the board the commands run on.
func (c *Config) BoardOptions() scenario.Options {
	opts := scenario.Options{
		Sim:        c.SimConfig(),
		SharedFile: c.SharedFile,
	}
	if c.PollLimit != 0 {
		opts.HSEM = append(opts.HSEM, hsem.WithPollLimit(c.PollLimit))
	}
	return opts
}

func getVal(field reflect.Value) string {
	if str, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return str.String()
	}
	switch field.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(field.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(field.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(field.Uint(), 10)
	case reflect.String:
		return field.String()
	default:
		panic("unknown type " + field.Kind().String())
	}
}
