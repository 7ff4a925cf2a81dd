package cpufreq

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrorKind classifies controller failures. Each kind is itself an error so
// that callers can match with errors.Is(err, ErrPermission) and friends.
type ErrorKind string

func (k ErrorKind) Error() string { return string(k) }

const (
	KindEnvironment      ErrorKind = "environment"
	KindPermission       ErrorKind = "permission"
	KindInvalidFrequency ErrorKind = "invalid_frequency"
	KindIO               ErrorKind = "io"
	KindUnknownPreset    ErrorKind = "unknown_preset"
)

var (
	// ErrEnvironment means the host is not the target board or lacks cpufreq support.
	ErrEnvironment error = KindEnvironment
	// ErrPermission means the kernel rejected a write from an unprivileged caller.
	ErrPermission error = KindPermission
	// ErrInvalidFrequency means the requested value is not an available step.
	ErrInvalidFrequency error = KindInvalidFrequency
	// ErrIO covers any other failed read or write.
	ErrIO error = KindIO
	// ErrUnknownPreset means the preset name is not recognised.
	ErrUnknownPreset error = KindUnknownPreset
)

// Error carries the failed operation together with its kind and cause.
type Error struct {
	Kind   ErrorKind
	Policy Policy
	Op     string
	Path   string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Policy != "" {
		fmt.Fprintf(&b, " for %s", e.Policy)
	}
	if e.Msg != "" {
		fmt.Fprintf(&b, ": %s", e.Msg)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

type InvalidFrequencyError struct {
	Policy    Policy
	Requested Frequency
	Available []Frequency
}

func (e *InvalidFrequencyError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("frequency %d is not available for %s: no available frequencies reported", e.Requested, e.Policy)
	}
	valid := make([]string, 0, len(e.Available))
	for _, freq := range SortDescending(e.Available) {
		valid = append(valid, fmt.Sprintf("%d", freq))
	}
	return fmt.Sprintf("frequency %d is not available for %s, valid frequencies: %s",
		e.Requested, e.Policy, strings.Join(valid, ", "))
}

func (e *InvalidFrequencyError) Is(target error) bool {
	return target == ErrInvalidFrequency
}

type UnknownPresetError struct {
	Name string
}

func (e *UnknownPresetError) Error() string {
	names := make([]string, 0, len(Presets))
	for _, preset := range Presets {
		names = append(names, string(preset))
	}
	return fmt.Sprintf("unknown preset %q, valid presets: %s", e.Name, strings.Join(names, ", "))
}

func (e *UnknownPresetError) Is(target error) bool {
	return target == ErrUnknownPreset
}

// VerificationWarning reports a write the OS accepted but the driver did not apply.
// It is informational and never returned as an error.
type VerificationWarning struct {
	Policy    Policy
	Requested Frequency
	// Actual is nil when the read back itself failed
	Actual *Frequency
	Err    error
}

func (w *VerificationWarning) String() string {
	if w.Actual == nil {
		return fmt.Sprintf("%s: could not read back frequency after requesting %d: %v", w.Policy, w.Requested, w.Err)
	}
	return fmt.Sprintf("%s: frequency reads %d after requesting %d", w.Policy, *w.Actual, w.Requested)
}

func isPermissionError(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM)
}

func newReadError(op string, policy Policy, path string, err error) error {
	return &Error{Kind: KindIO, Policy: policy, Op: op, Path: path, Err: err}
}

// newWriteError keeps permission failures distinguishable, everything else is IO.
func newWriteError(op string, policy Policy, path string, err error) error {
	wrapped := &Error{Kind: KindIO, Policy: policy, Op: op, Path: path, Err: err}
	switch {
	case isPermissionError(err):
		wrapped.Kind = KindPermission
		wrapped.Msg = "permission denied, re-run with root privileges"
	case errors.Is(err, unix.EINVAL):
		wrapped.Msg = "value rejected by the kernel"
	case errors.Is(err, unix.EBUSY):
		wrapped.Msg = "device busy"
	}
	return wrapped
}

// KindOf returns the most specific kind found in err, preferring the order
// environment, permission, invalid frequency, unknown preset, io.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}
	for _, kind := range []ErrorKind{KindEnvironment, KindPermission, KindInvalidFrequency, KindUnknownPreset, KindIO} {
		if errors.Is(err, kind) {
			return kind, true
		}
	}
	return "", false
}
