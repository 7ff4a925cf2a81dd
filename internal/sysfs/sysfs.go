// Package sysfs is the port through which all cpufreq attribute files are read and written.
//
// Production code uses [NewOSFS], which goes straight to the kernel files. Tests
// build an [FS] over an in-memory afero filesystem.
package sysfs

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// attribute files are created by the kernel, the mode only matters for fakes
const attributeFileMode = 0644

// FS addresses sysfs attributes by exact path.
type FS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	Exists(path string) (bool, error)
}

type aferoFS struct {
	fs afero.Fs
}

// New wraps an afero filesystem.
func New(fs afero.Fs) FS {
	return &aferoFS{fs: fs}
}

// NewOSFS returns an FS backed by the host filesystem.
func NewOSFS() FS {
	return New(afero.NewOsFs())
}

func (a *aferoFS) ReadFile(path string) ([]byte, error) {
	return afero.ReadFile(a.fs, path)
}

func (a *aferoFS) WriteFile(path string, data []byte) error {
	return afero.WriteFile(a.fs, path, data, attributeFileMode)
}

func (a *aferoFS) Exists(path string) (bool, error) {
	return afero.Exists(a.fs, path)
}

// ReadString returns the attribute content without surrounding whitespace.
func ReadString(fs FS, path string) (string, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadUint parses a single decimal attribute value.
func ReadUint(fs FS, path string) (uint64, error) {
	value, err := ReadString(fs, path)
	if err != nil {
		return 0, err
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return parsed, nil
}

// ReadUintList parses a whitespace separated list of decimal values, keeping file order.
// An empty file yields an empty list.
func ReadUintList(fs FS, path string) ([]uint64, error) {
	value, err := ReadString(fs, path)
	if err != nil {
		return nil, err
	}

	fields := strings.Fields(value)
	values := make([]uint64, 0, len(fields))
	for _, field := range fields {
		parsed, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		values = append(values, parsed)
	}
	return values, nil
}

// WriteString writes value as the whole attribute content.
func WriteString(fs FS, path, value string) error {
	return fs.WriteFile(path, []byte(value))
}
