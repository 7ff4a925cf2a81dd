package cpufreq

// Frequency is a cpufreq step as written in the policy attribute files (kHz).
type Frequency uint64

// Policy names a cpufreq policy directory, e.g. policy0.
type Policy string

const (
	Policy0 Policy = "policy0"
	Policy4 Policy = "policy4"
	Policy7 Policy = "policy7"
)

// PolicyState is a snapshot read from sysfs. It is rebuilt on every query.
type PolicyState struct {
	Policy               Policy      `json:"policy" yaml:"policy"`
	Governor             string      `json:"governor" yaml:"governor"`
	CurrentFrequency     Frequency   `json:"currentFrequency" yaml:"currentFrequency"`
	AvailableFrequencies []Frequency `json:"availableFrequencies" yaml:"availableFrequencies"`
}

// SetResult is the outcome of a frequency write that the OS accepted.
// Warning is set when the value read back differs from the one requested.
type SetResult struct {
	State   PolicyState
	Warning *VerificationWarning
}

func (r *SetResult) Verified() bool {
	return r.Warning == nil
}

// PolicyResult reports one policy of a batch operation. Exactly one of Result and Err is set.
type PolicyResult struct {
	Policy Policy
	Target Frequency
	Result *SetResult
	Err    error
}

// Internal helper constants for logging
const (
	policyLogKey    = "policy"
	frequencyLogKey = "frequency"
	governorLogKey  = "governor"
	pathLogKey      = "path"
)
