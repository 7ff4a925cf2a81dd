package cpufreq

import (
	"slices"
)

// Preset is a named shortcut resolving to one frequency per policy.
type Preset string

const (
	PresetPerformance Preset = "performance"
	PresetBalanced    Preset = "balanced"
	PresetPowersave   Preset = "powersave"
)

var Presets = []Preset{PresetPerformance, PresetBalanced, PresetPowersave}

func ParsePreset(name string) (Preset, error) {
	preset := Preset(name)
	if !slices.Contains(Presets, preset) {
		return "", &UnknownPresetError{Name: name}
	}
	return preset, nil
}

// SortDescending returns a sorted copy, highest frequency first.
func SortDescending(freqs []Frequency) []Frequency {
	sorted := slices.Clone(freqs)
	slices.SortFunc(sorted, func(a, b Frequency) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	})
	return sorted
}

// balancedFrequency picks index len/2 of the descending list. For even lengths
// that is the first step of the lower half, not the true median.
func balancedFrequency(available []Frequency) (Frequency, bool) {
	if len(available) == 0 {
		return 0, false
	}
	sorted := SortDescending(available)
	return sorted[len(sorted)/2], true
}

func powersaveFrequency(available []Frequency) (Frequency, bool) {
	if len(available) == 0 {
		return 0, false
	}
	return slices.Min(available), true
}
