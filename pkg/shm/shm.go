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

// Package shm maps the memory region the two simulated cores share.
//
// A Region is an array of atomicbitops.Words in a shared mapping, either of
// an anonymous memory file or of a named file that another process can map
// to watch the words change. Only plain data may live in a Region: the
// garbage collector does not scan it.
package shm

import (
	"errors"
	"fmt"
	"os"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
	"gvisor.dev/dualcore/pkg/atomicbitops"
	"gvisor.dev/dualcore/pkg/cleanup"
	"gvisor.dev/dualcore/pkg/log"
)

// WordSize is the size of one Word in bytes.
const WordSize = 4

// ErrBusy is returned by Open when another process holds the region.
var ErrBusy = errors.New("shm: region is in use by another process")

var pageSize = os.Getpagesize()

func roundUpToPage(x int) int {
	return (x + pageSize - 1) &^ (pageSize - 1)
}

// Region is a mapped shared region.
type Region struct {
	data  []byte
	words int
	file  *os.File
	lock  *flock.Flock
}

// NewAnonymous maps a zeroed region of the given number of words backed by
// an anonymous memory file.
func NewAnonymous(words int) (*Region, error) {
	if words <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", words)
	}
	fd, err := unix.MemfdCreate("dualcore_shared", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return nil, fmt.Errorf("failed to create memfd: %w", err)
	}
	f := os.NewFile(uintptr(fd), "dualcore_shared")
	cu := cleanup.Make(func() { f.Close() })
	defer cu.Clean()
	r, err := mapFile(f, words)
	if err != nil {
		return nil, err
	}
	cu.Release()
	// Shrinking the file under the mapping would fault the cores.
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS, unix.F_SEAL_SHRINK|unix.F_SEAL_SEAL); err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to apply memfd seals: %w", err)
	}
	return r, nil
}

// Open maps the region stored in path, creating it if needed. The region
// is held exclusively through a lock file next to it until Close.
func Open(path string, words int) (*Region, error) {
	if words <= 0 {
		return nil, fmt.Errorf("shm: invalid region size %d", words)
	}
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %q: %w", lock.Path(), err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %q", ErrBusy, path)
	}
	cu := cleanup.Make(func() { lock.Unlock() })
	defer cu.Clean()

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	cu.Add(func() { f.Close() })

	r, err := mapFile(f, words)
	if err != nil {
		return nil, err
	}
	r.lock = lock
	cu.Release()
	log.Debugf("shm: mapped %d words from %q", words, path)
	return r, nil
}

func mapFile(f *os.File, words int) (*Region, error) {
	size := roundUpToPage(words * WordSize)
	if err := f.Truncate(int64(size)); err != nil {
		return nil, fmt.Errorf("sizing %q to %d bytes: %w", f.Name(), size, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mapping %q: %w", f.Name(), err)
	}
	return &Region{data: data, words: words, file: f}, nil
}

// Len returns the number of words in r.
func (r *Region) Len() int {
	return r.words
}

// Word returns word i of r. The pointer is valid until Close.
func (r *Region) Word(i int) *atomicbitops.Word {
	if i < 0 || i >= r.words {
		panic(fmt.Sprintf("shm: word %d out of range [0, %d)", i, r.words))
	}
	return wordAt(r.data, i*WordSize)
}

// Close unmaps r and releases its file.
func (r *Region) Close() error {
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("unmapping: %w", err))
		}
		r.data = nil
	}
	if r.file != nil {
		if err := r.file.Close(); err != nil {
			errs = append(errs, err)
		}
		r.file = nil
	}
	if r.lock != nil {
		if err := r.lock.Unlock(); err != nil {
			errs = append(errs, err)
		}
		r.lock = nil
	}
	return errors.Join(errs...)
}
