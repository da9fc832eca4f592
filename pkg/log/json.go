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

package log

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// record is a single line written by JSONEmitter.
type record struct {
	Time  time.Time `json:"time"`
	Level Level     `json:"level"`
	Site  string    `json:"site,omitempty"`
	Msg   string    `json:"msg"`
}

// MarshalJSON implements json.Marshaler.MarshalJSON. Levels are written by
// lower-case name.
func (l Level) MarshalJSON() ([]byte, error) {
	if l > Debug {
		return nil, fmt.Errorf("unknown level %d", uint32(l))
	}
	return json.Marshal(strings.ToLower(l.String()))
}

// UnmarshalJSON implements json.Unmarshaler.UnmarshalJSON. It accepts any
// name ParseLevel does, as well as the raw integer value.
func (l *Level) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		lv, err := ParseLevel(name)
		if err != nil {
			return err
		}
		*l = lv
		return nil
	}
	n, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil || Level(n) > Debug {
		return fmt.Errorf("unknown level %s", b)
	}
	*l = Level(n)
	return nil
}

// JSONEmitter writes one JSON object per line, with the call site in its
// own field.
type JSONEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	r := record{
		Time:  timestamp,
		Level: level,
		Msg:   fmt.Sprintf(format, v...),
	}
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		r.Site = filepath.Base(file) + ":" + strconv.Itoa(line)
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(r); err != nil {
		// Only an invalid level can fail here.
		fmt.Fprintf(&buf, "{\"level\":\"warning\",\"msg\":%q}\n", err.Error())
	}
	e.Writer.Write(buf.Bytes())
}
