package cpufreq

import (
	"fmt"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/ptr"

	cpufreqv1 "github.com/asurasoft/radxa-q6a-utils/api/v1"
	"github.com/asurasoft/radxa-q6a-utils/internal/sysfs"
)

// FrequencyController mediates every read and write of the cpufreq policy files.
// Nothing is cached: each call goes back to sysfs.
type FrequencyController interface {
	// Discover checks that the cpufreq root exists.
	Discover() error
	// Policies returns the managed policies in batch order.
	Policies() []Policy
	GetState(policy Policy) (*PolicyState, error)
	// EnsureGovernor writes the governor only when it differs from the current one.
	EnsureGovernor(policy Policy, governor string) error
	SetFrequency(policy Policy, freq Frequency) (*SetResult, error)
	// SetAllFrequencies applies one frequency per policy in batch order. It is not
	// transactional: a failed policy does not stop or undo the others.
	SetAllFrequencies(freqs ...Frequency) ([]PolicyResult, error)
	ResolvePreset(policy Policy, presetName string) (Frequency, error)
	ApplyPreset(presetName string) ([]PolicyResult, error)
}

type frequencyControllerImpl struct {
	fs                   sysfs.FS
	root                 string
	policies             []Policy
	performanceFrequency map[Policy]Frequency
	logger               logr.Logger
}

func NewFrequencyController(fs sysfs.FS, config cpufreqv1.CPUFreqConfiguration, logger logr.Logger) (FrequencyController, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cpufreq configuration: %w", err)
	}

	ctrl := &frequencyControllerImpl{
		fs:                   fs,
		root:                 config.Root,
		policies:             make([]Policy, 0, len(config.Policies)),
		performanceFrequency: make(map[Policy]Frequency, len(config.Policies)),
		logger:               logger,
	}
	for _, policy := range config.Policies {
		ctrl.policies = append(ctrl.policies, Policy(policy.Name))
		ctrl.performanceFrequency[Policy(policy.Name)] = Frequency(policy.PerformanceFrequency)
	}
	return ctrl, nil
}

func (c *frequencyControllerImpl) Discover() error {
	exists, err := c.fs.Exists(c.root)
	if err != nil {
		return &Error{Kind: KindEnvironment, Op: "failed to check cpufreq root", Path: c.root, Err: err}
	}
	if !exists {
		return &Error{
			Kind: KindEnvironment,
			Op:   "cpufreq root " + c.root + " does not exist",
			Msg:  "kernel cpufreq support is missing or this is not a Radxa Dragon Q6A",
			Path: c.root,
		}
	}
	c.logger.V(4).Info("cpufreq root found", pathLogKey, c.root)
	return nil
}

func (c *frequencyControllerImpl) Policies() []Policy {
	return append([]Policy(nil), c.policies...)
}

func (c *frequencyControllerImpl) checkPolicy(policy Policy) error {
	if _, found := c.performanceFrequency[policy]; !found {
		return &Error{Kind: KindIO, Policy: policy, Op: "failed to look up policy", Msg: "policy is not managed"}
	}
	return nil
}

func (c *frequencyControllerImpl) GetState(policy Policy) (*PolicyState, error) {
	if err := c.checkPolicy(policy); err != nil {
		return nil, err
	}

	governor, err := c.getCurrentGovernor(policy)
	if err != nil {
		return nil, err
	}
	current, err := c.getCPUFrequency(policy)
	if err != nil {
		return nil, err
	}
	available, err := c.getAvailableFrequencies(policy)
	if err != nil {
		return nil, err
	}

	return &PolicyState{
		Policy:               policy,
		Governor:             governor,
		CurrentFrequency:     current,
		AvailableFrequencies: available,
	}, nil
}

func (c *frequencyControllerImpl) EnsureGovernor(policy Policy, governor string) error {
	if err := c.checkPolicy(policy); err != nil {
		return err
	}

	current, err := c.getCurrentGovernor(policy)
	if err != nil {
		return err
	}
	if current == governor {
		c.logger.V(4).Info("governor already set", policyLogKey, policy, governorLogKey, governor)
		return nil
	}

	c.logger.V(1).Info("switching governor", policyLogKey, policy, "from", current, governorLogKey, governor)
	return c.setGovernor(policy, governor)
}

func (c *frequencyControllerImpl) SetFrequency(policy Policy, freq Frequency) (*SetResult, error) {
	if err := c.checkPolicy(policy); err != nil {
		return nil, err
	}

	available, err := c.getAvailableFrequencies(policy)
	if err != nil {
		return nil, err
	}
	// exact match only, a nearest step would silently run at an unintended clock
	if !sets.New(available...).Has(freq) {
		return nil, &InvalidFrequencyError{Policy: policy, Requested: freq, Available: available}
	}

	if err := c.EnsureGovernor(policy, userspaceGovernor); err != nil {
		return nil, err
	}
	if err := c.setCPUFrequency(policy, freq); err != nil {
		return nil, err
	}
	c.logger.V(1).Info("frequency written", policyLogKey, policy, frequencyLogKey, freq)

	return c.verify(policy, freq, available), nil
}

// verify re-reads the policy after a successful write. A mismatch means the
// driver clamped or ignored the value, or another actor changed it since.
func (c *frequencyControllerImpl) verify(policy Policy, requested Frequency, available []Frequency) *SetResult {
	state, err := c.GetState(policy)
	if err != nil {
		warning := &VerificationWarning{Policy: policy, Requested: requested, Err: err}
		c.logger.Info("frequency could not be verified", policyLogKey, policy, frequencyLogKey, requested, "error", err.Error())
		return &SetResult{
			State:   PolicyState{Policy: policy, Governor: userspaceGovernor, AvailableFrequencies: available},
			Warning: warning,
		}
	}

	result := &SetResult{State: *state}
	if state.CurrentFrequency != requested {
		result.Warning = &VerificationWarning{Policy: policy, Requested: requested, Actual: ptr.To(state.CurrentFrequency)}
		c.logger.Info("frequency read back differs from requested",
			policyLogKey, policy, frequencyLogKey, requested, "actual", state.CurrentFrequency)
	}
	return result
}

func (c *frequencyControllerImpl) SetAllFrequencies(freqs ...Frequency) ([]PolicyResult, error) {
	if len(freqs) != len(c.policies) {
		return nil, &Error{
			Kind: KindInvalidFrequency,
			Op:   "failed to set all policies",
			Msg:  fmt.Sprintf("expected %d frequencies (one per policy %v), got %d", len(c.policies), c.policies, len(freqs)),
		}
	}

	targets := make([]PolicyResult, 0, len(c.policies))
	for i, policy := range c.policies {
		targets = append(targets, PolicyResult{Policy: policy, Target: freqs[i]})
	}
	return c.applyTargets(targets)
}

// applyTargets sets every target that has no error yet and combines the failures.
func (c *frequencyControllerImpl) applyTargets(targets []PolicyResult) ([]PolicyResult, error) {
	var errs error
	for i := range targets {
		target := &targets[i]
		if target.Err == nil {
			c.logger.V(1).Info("applying frequency", policyLogKey, target.Policy, frequencyLogKey, target.Target)
			target.Result, target.Err = c.SetFrequency(target.Policy, target.Target)
		}
		if target.Err != nil {
			c.logger.V(1).Info("policy failed", policyLogKey, target.Policy, "error", target.Err.Error())
			errs = multierr.Append(errs, target.Err)
		}
	}
	return targets, errs
}

func (c *frequencyControllerImpl) ResolvePreset(policy Policy, presetName string) (Frequency, error) {
	preset, err := ParsePreset(presetName)
	if err != nil {
		return 0, err
	}
	if err := c.checkPolicy(policy); err != nil {
		return 0, err
	}

	if preset == PresetPerformance {
		return c.performanceFrequency[policy], nil
	}

	available, err := c.getAvailableFrequencies(policy)
	if err != nil {
		return 0, err
	}

	var (
		freq  Frequency
		found bool
	)
	switch preset {
	case PresetBalanced:
		freq, found = balancedFrequency(available)
	case PresetPowersave:
		freq, found = powersaveFrequency(available)
	}
	if !found {
		return 0, &Error{
			Kind:   KindIO,
			Policy: policy,
			Op:     fmt.Sprintf("failed to resolve preset %s", preset),
			Msg:    "no available frequencies reported",
		}
	}
	return freq, nil
}

func (c *frequencyControllerImpl) ApplyPreset(presetName string) ([]PolicyResult, error) {
	if _, err := ParsePreset(presetName); err != nil {
		return nil, err
	}

	targets := make([]PolicyResult, 0, len(c.policies))
	for _, policy := range c.policies {
		freq, err := c.ResolvePreset(policy, presetName)
		targets = append(targets, PolicyResult{Policy: policy, Target: freq, Err: err})
	}
	return c.applyTargets(targets)
}
