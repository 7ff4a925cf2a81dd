package cpufreq

import (
	"fmt"
	"path/filepath"

	"github.com/asurasoft/radxa-q6a-utils/internal/sysfs"
)

const (
	userspaceGovernor = "userspace"

	scalingGovernorFile       = "scaling_governor"
	scalingSetspeedFile       = "scaling_setspeed"
	scalingCurFreqFile        = "scaling_cur_freq"
	scalingAvailableFreqsFile = "scaling_available_frequencies"
)

func (c *frequencyControllerImpl) getCPUFreqPath(policy Policy, resource string) string {
	return filepath.Join(c.root, string(policy), resource)
}

// get current governor
func (c *frequencyControllerImpl) getCurrentGovernor(policy Policy) (string, error) {
	governorPath := c.getCPUFreqPath(policy, scalingGovernorFile)

	c.logger.V(4).Info("reading governor", policyLogKey, policy, pathLogKey, governorPath)
	governor, err := sysfs.ReadString(c.fs, governorPath)
	if err != nil {
		return "", newReadError("failed to read current governor", policy, governorPath, err)
	}
	return governor, nil
}

func (c *frequencyControllerImpl) setGovernor(policy Policy, governor string) error {
	governorPath := c.getCPUFreqPath(policy, scalingGovernorFile)

	if err := sysfs.WriteString(c.fs, governorPath, governor); err != nil {
		return newWriteError(fmt.Sprintf("failed to set governor %s", governor), policy, governorPath, err)
	}
	return nil
}

// setCPUFrequency writes the frequency to scaling_setspeed. The caller is
// responsible for switching the policy to the userspace governor first.
func (c *frequencyControllerImpl) setCPUFrequency(policy Policy, frequency Frequency) error {
	scalingSetspeedPath := c.getCPUFreqPath(policy, scalingSetspeedFile)

	c.logger.V(4).Info("writing setspeed", policyLogKey, policy, frequencyLogKey, frequency, pathLogKey, scalingSetspeedPath)
	err := sysfs.WriteString(c.fs, scalingSetspeedPath, fmt.Sprintf("%d", frequency))
	if err != nil {
		return newWriteError("failed to set frequency", policy, scalingSetspeedPath, err)
	}
	return nil
}

// getCPUFrequency returns the current frequency of the policy.
func (c *frequencyControllerImpl) getCPUFrequency(policy Policy) (Frequency, error) {
	scalingCurFreqPath := c.getCPUFreqPath(policy, scalingCurFreqFile)

	c.logger.V(4).Info("reading current frequency", policyLogKey, policy, pathLogKey, scalingCurFreqPath)
	freq, err := sysfs.ReadUint(c.fs, scalingCurFreqPath)
	if err != nil {
		return 0, newReadError("failed to read current frequency", policy, scalingCurFreqPath, err)
	}
	return Frequency(freq), nil
}

// getAvailableFrequencies returns the steps in the order the kernel lists them.
func (c *frequencyControllerImpl) getAvailableFrequencies(policy Policy) ([]Frequency, error) {
	availablePath := c.getCPUFreqPath(policy, scalingAvailableFreqsFile)

	c.logger.V(4).Info("reading available frequencies", policyLogKey, policy, pathLogKey, availablePath)
	values, err := sysfs.ReadUintList(c.fs, availablePath)
	if err != nil {
		return nil, newReadError("failed to read available frequencies", policy, availablePath, err)
	}

	freqs := make([]Frequency, 0, len(values))
	for _, value := range values {
		freqs = append(freqs, Frequency(value))
	}
	return freqs, nil
}
