package util

import (
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/exp/constraints"
)

// cpufreq reports frequencies in kHz
const (
	kHzPerMHz = 1000
	kHzPerGHz = 1000 * 1000
)

// FormatFrequency renders a cpufreq value as GHz or MHz followed by the raw value.
func FormatFrequency[T constraints.Integer](freq T) string {
	if uint64(freq) >= kHzPerGHz {
		return fmt.Sprintf("%.2f GHz (%d kHz)", float64(freq)/kHzPerGHz, freq)
	}
	return fmt.Sprintf("%.2f MHz (%d kHz)", float64(freq)/kHzPerMHz, freq)
}

// FormatFrequencyList renders every value with FormatFrequency.
func FormatFrequencyList[T constraints.Integer](freqs []T) []string {
	formatted := make([]string, 0, len(freqs))
	for _, freq := range freqs {
		formatted = append(formatted, FormatFrequency(freq))
	}
	return formatted
}

// UnpackErrsToStrings flattens a combined error into one message per cause.
func UnpackErrsToStrings(err error) *[]string {
	errs := multierr.Errors(err)
	messages := make([]string, 0, len(errs))
	for _, e := range errs {
		messages = append(messages, e.Error())
	}
	return &messages
}
