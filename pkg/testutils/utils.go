package testutils

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/mock"
	"golang.org/x/sys/unix"

	"github.com/asurasoft/radxa-q6a-utils/internal/sysfs"
)

const TestRoot = "/sys/devices/system/cpu/cpufreq"

// Frequency tables of the Q6A clusters as the kernel lists them (ascending).
var (
	Policy0Frequencies = []uint64{
		300000, 499200, 595200, 691200, 806400, 940800, 1054800, 1152000,
		1249200, 1344000, 1459200, 1574400, 1689600, 1804800, 1958400,
	}
	Policy4Frequencies = []uint64{
		691200, 940800, 1228800, 1344000, 1516800, 1651200, 1900800, 2054400, 2131200, 2400000,
	}
	Policy7Frequencies = []uint64{
		806400, 1094400, 1401600, 1996800, 2188800, 2400000, 2515200, 2707200,
	}
)

// FakeSysfs is an in-memory cpufreq tree implementing sysfs.FS. Writes are
// recorded per path, errors can be injected per path, and writes to
// scaling_setspeed are mirrored into scaling_cur_freq unless disabled.
type FakeSysfs struct {
	Mem  afero.Fs
	Root string

	base      sysfs.FS
	honor     bool
	clamp     map[string]uint64
	readErrs  map[string]error
	writeErrs map[string]error
	writes    map[string][]string
}

func NewFakeSysfs(root string) *FakeSysfs {
	mem := afero.NewMemMapFs()
	if err := mem.MkdirAll(root, 0755); err != nil {
		panic(err)
	}
	return &FakeSysfs{
		Mem:       mem,
		Root:      root,
		base:      sysfs.New(mem),
		honor:     true,
		clamp:     map[string]uint64{},
		readErrs:  map[string]error{},
		writeErrs: map[string]error{},
		writes:    map[string][]string{},
	}
}

// NewQ6ASysfs returns a fake populated with the three Q6A policies running schedutil.
func NewQ6ASysfs() *FakeSysfs {
	return NewFakeSysfs(TestRoot).
		AddPolicy("policy0", "schedutil", 1804800, Policy0Frequencies...).
		AddPolicy("policy4", "schedutil", 2131200, Policy4Frequencies...).
		AddPolicy("policy7", "schedutil", 2515200, Policy7Frequencies...)
}

func (f *FakeSysfs) Path(policy, resource string) string {
	return filepath.Join(f.Root, policy, resource)
}

func (f *FakeSysfs) AddPolicy(policy, governor string, current uint64, available ...uint64) *FakeSysfs {
	freqs := make([]string, 0, len(available))
	for _, freq := range available {
		freqs = append(freqs, strconv.FormatUint(freq, 10))
	}
	f.set(f.Path(policy, "scaling_governor"), governor+"\n")
	f.set(f.Path(policy, "scaling_cur_freq"), strconv.FormatUint(current, 10)+"\n")
	f.set(f.Path(policy, "scaling_setspeed"), "<unsupported>\n")
	f.set(f.Path(policy, "scaling_available_frequencies"), strings.Join(freqs, " ")+" \n")
	return f
}

func (f *FakeSysfs) set(path, content string) {
	if err := afero.WriteFile(f.Mem, path, []byte(content), 0644); err != nil {
		panic(err)
	}
}

// SetContent overwrites a file without recording a write.
func (f *FakeSysfs) SetContent(policy, resource, content string) {
	f.set(f.Path(policy, resource), content)
}

// Content returns the trimmed file content, or an empty string when missing.
func (f *FakeSysfs) Content(policy, resource string) string {
	data, err := afero.ReadFile(f.Mem, f.Path(policy, resource))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// IgnoreSetspeed makes the fake behave like a driver that accepts but does not apply writes.
func (f *FakeSysfs) IgnoreSetspeed() *FakeSysfs {
	f.honor = false
	return f
}

// ClampPolicy makes the fake apply limit instead of any higher requested frequency.
func (f *FakeSysfs) ClampPolicy(policy string, limit uint64) *FakeSysfs {
	f.clamp[policy] = limit
	return f
}

func (f *FakeSysfs) FailRead(policy, resource string, err error) *FakeSysfs {
	f.readErrs[f.Path(policy, resource)] = err
	return f
}

func (f *FakeSysfs) FailWrite(policy, resource string, err error) *FakeSysfs {
	f.writeErrs[f.Path(policy, resource)] = err
	return f
}

// DenyWrites injects the error the kernel returns to an unprivileged writer.
func (f *FakeSysfs) DenyWrites(policy string) *FakeSysfs {
	for _, resource := range []string{"scaling_governor", "scaling_setspeed"} {
		path := f.Path(policy, resource)
		f.writeErrs[path] = &fs.PathError{Op: "open", Path: path, Err: unix.EACCES}
	}
	return f
}

// Writes returns every value written to the resource, oldest first.
func (f *FakeSysfs) Writes(policy, resource string) []string {
	return f.writes[f.Path(policy, resource)]
}

// TotalWrites counts writes across all paths.
func (f *FakeSysfs) TotalWrites() int {
	total := 0
	for _, values := range f.writes {
		total += len(values)
	}
	return total
}

func (f *FakeSysfs) ReadFile(path string) ([]byte, error) {
	if err, found := f.readErrs[path]; found {
		return nil, err
	}
	return f.base.ReadFile(path)
}

func (f *FakeSysfs) WriteFile(path string, data []byte) error {
	if err, found := f.writeErrs[path]; found {
		return err
	}
	exists, err := f.base.Exists(path)
	if err != nil {
		return err
	}
	if !exists {
		// sysfs never creates attributes on open
		return &fs.PathError{Op: "open", Path: path, Err: unix.ENOENT}
	}
	if err := f.base.WriteFile(path, data); err != nil {
		return err
	}
	f.writes[path] = append(f.writes[path], string(data))

	if f.honor && filepath.Base(path) == "scaling_setspeed" {
		policy := filepath.Base(filepath.Dir(path))
		requested, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
		if err != nil {
			return &fs.PathError{Op: "write", Path: path, Err: unix.EINVAL}
		}
		if limit, found := f.clamp[policy]; found && requested > limit {
			requested = limit
		}
		f.set(filepath.Join(filepath.Dir(path), "scaling_cur_freq"), fmt.Sprintf("%d\n", requested))
	}
	return nil
}

func (f *FakeSysfs) Exists(path string) (bool, error) {
	return f.base.Exists(path)
}

type MockFS struct {
	mock.Mock
}

func (m *MockFS) ReadFile(path string) ([]byte, error) {
	args := m.Called(path)
	ret := args.Get(0)
	if ret == nil {
		return nil, args.Error(1)
	}
	return ret.([]byte), args.Error(1)
}

func (m *MockFS) WriteFile(path string, data []byte) error {
	return m.Called(path, string(data)).Error(0)
}

func (m *MockFS) Exists(path string) (bool, error) {
	args := m.Called(path)
	return args.Bool(0), args.Error(1)
}
