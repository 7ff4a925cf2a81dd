/*


Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package v1

import (
	"fmt"
	"path/filepath"
	"regexp"

	"k8s.io/apimachinery/pkg/util/sets"
)

// DefaultCPUFreqRoot is the kernel cpufreq directory holding one subdirectory per policy.
const DefaultCPUFreqRoot = "/sys/devices/system/cpu/cpufreq"

var policyNamePattern = regexp.MustCompile(`^policy[0-9]+$`)

type PolicyConfig struct {
	// Name of the cpufreq policy directory, e.g. policy0
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Frequency applied by the performance preset. This is the vendor
	// recommended value, which is not necessarily the highest available step.
	PerformanceFrequency uint64 `json:"performanceFrequency" yaml:"performanceFrequency" mapstructure:"performanceFrequency"`
}

// CPUFreqConfiguration describes the cpufreq layout of the board the tool manages.
type CPUFreqConfiguration struct {
	// Root directory of the cpufreq policies
	Root string `json:"root" yaml:"root" mapstructure:"root"`

	// Policies in the order batch operations apply them
	Policies []PolicyConfig `json:"policies" yaml:"policies" mapstructure:"policies"`
}

// DefaultConfiguration returns the Radxa Dragon Q6A layout: three clusters
// with the frequencies published in the vendor performance guide.
func DefaultConfiguration() CPUFreqConfiguration {
	return CPUFreqConfiguration{
		Root: DefaultCPUFreqRoot,
		Policies: []PolicyConfig{
			{Name: "policy0", PerformanceFrequency: 1958400},
			{Name: "policy4", PerformanceFrequency: 2400000},
			{Name: "policy7", PerformanceFrequency: 2707200},
		},
	}
}

func (config *CPUFreqConfiguration) Validate() error {
	if config.Root == "" {
		return fmt.Errorf("root must not be empty")
	}
	if !filepath.IsAbs(config.Root) {
		return fmt.Errorf("root must be an absolute path, got %q", config.Root)
	}
	if len(config.Policies) == 0 {
		return fmt.Errorf("at least one policy must be configured")
	}

	seen := sets.New[string]()
	for _, policy := range config.Policies {
		if !policyNamePattern.MatchString(policy.Name) {
			return fmt.Errorf("invalid policy name %q, expected policyN", policy.Name)
		}
		if seen.Has(policy.Name) {
			return fmt.Errorf("policy %s configured more than once", policy.Name)
		}
		seen.Insert(policy.Name)
		if policy.PerformanceFrequency == 0 {
			return fmt.Errorf("policy %s: performanceFrequency must be greater than 0", policy.Name)
		}
	}
	return nil
}

// PolicyNames returns the configured policy names in batch order.
func (config *CPUFreqConfiguration) PolicyNames() []string {
	names := make([]string, 0, len(config.Policies))
	for _, policy := range config.Policies {
		names = append(names, policy.Name)
	}
	return names
}
