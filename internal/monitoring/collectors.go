package monitoring

import (
	"fmt"
	"slices"

	"github.com/go-logr/logr"
	prom "github.com/prometheus/client_golang/prometheus"
	"golang.org/x/exp/constraints"

	"github.com/asurasoft/radxa-q6a-utils/internal/cpufreq"
)

// Helper constants for prom Collectors
const (
	promNamespace string = "cpufreq"

	LogTopName string = "monitoring"

	policyLabel   string = "policy"
	governorLabel string = "governor"
)

type collectorImpl struct {
	collectFunc  func(ch chan<- prom.Metric)
	describeFunc func(ch chan<- *prom.Desc)
}

func (c collectorImpl) Collect(ch chan<- prom.Metric) {
	c.collectFunc(ch)
}

func (c collectorImpl) Describe(ch chan<- *prom.Desc) {
	c.describeFunc(ch)
}

type number interface {
	constraints.Integer | constraints.Float
}

// policyMetric derives one sample from a policy snapshot. ok is false when the
// snapshot does not carry the value, e.g. an empty frequency table.
type policyMetric struct {
	desc  *prom.Desc
	value func(state *cpufreq.PolicyState) (val float64, ok bool)
}

func newPolicyMetric[T number](name, help string, read func(state *cpufreq.PolicyState) (T, bool)) policyMetric {
	return policyMetric{
		desc: prom.NewDesc(prom.BuildFQName(promNamespace, "", name), help, []string{policyLabel}, nil),
		value: func(state *cpufreq.PolicyState) (float64, bool) {
			val, ok := read(state)
			return float64(val), ok
		},
	}
}

// NewPolicyCollector is a prometheus Collector exposing the state of every policy
// managed by ctrl. Each Collect reads sysfs once per policy.
// log is Logger that should have all Names, KeysValues and other... already attached.
func NewPolicyCollector(ctrl cpufreq.FrequencyController, log logr.Logger) prom.Collector {
	upDesc := prom.NewDesc(
		prom.BuildFQName(promNamespace, "policy", "up"),
		"Whether the cpufreq policy files could be read (1) or not (0).",
		[]string{policyLabel},
		nil,
	)
	governorDesc := prom.NewDesc(
		prom.BuildFQName(promNamespace, "", "governor_info"),
		"Scaling governor in effect for the policy, value is always 1.",
		[]string{policyLabel, governorLabel},
		nil,
	)

	metrics := []policyMetric{
		newPolicyMetric("current_frequency_khz", "Current frequency of the policy in kHz.",
			func(state *cpufreq.PolicyState) (cpufreq.Frequency, bool) {
				return state.CurrentFrequency, true
			}),
		newPolicyMetric("min_frequency_khz", "Lowest available frequency step in kHz.",
			func(state *cpufreq.PolicyState) (cpufreq.Frequency, bool) {
				if len(state.AvailableFrequencies) == 0 {
					return 0, false
				}
				return slices.Min(state.AvailableFrequencies), true
			}),
		newPolicyMetric("max_frequency_khz", "Highest available frequency step in kHz.",
			func(state *cpufreq.PolicyState) (cpufreq.Frequency, bool) {
				if len(state.AvailableFrequencies) == 0 {
					return 0, false
				}
				return slices.Max(state.AvailableFrequencies), true
			}),
		newPolicyMetric("available_frequencies", "Number of available frequency steps.",
			func(state *cpufreq.PolicyState) (int, bool) {
				return len(state.AvailableFrequencies), true
			}),
	}
	log.V(4).Info("New policy prometheus Collector created", "policies", len(ctrl.Policies()))

	return collectorImpl{
		describeFunc: func(ch chan<- *prom.Desc) {
			ch <- upDesc
			ch <- governorDesc
			for _, metric := range metrics {
				ch <- metric.desc
			}
		},
		collectFunc: func(ch chan<- prom.Metric) {
			for _, policy := range ctrl.Policies() {
				log.V(5).Info("Collecting metrics for prometheus", policyLabel, policy)
				state, err := ctrl.GetState(policy)
				if err != nil {
					log.V(1).Info(fmt.Sprintf("error reading policy state, err: %v", err), policyLabel, policy)
					ch <- prom.MustNewConstMetric(upDesc, prom.GaugeValue, 0, string(policy))
					continue
				}

				ch <- prom.MustNewConstMetric(upDesc, prom.GaugeValue, 1, string(policy))
				ch <- prom.MustNewConstMetric(governorDesc, prom.GaugeValue, 1, string(policy), state.Governor)
				for _, metric := range metrics {
					if val, ok := metric.value(state); ok {
						ch <- prom.MustNewConstMetric(metric.desc, prom.GaugeValue, val, string(policy))
					}
				}
			}
		},
	}
}

// WriteTextfile gathers the collectors into path in the text exposition format
// read by the node exporter textfile collector. The file is replaced atomically.
func WriteTextfile(path string, collectors ...prom.Collector) error {
	registry := prom.NewPedanticRegistry()
	for _, collector := range collectors {
		if err := registry.Register(collector); err != nil {
			return fmt.Errorf("failed to register collector: %w", err)
		}
	}
	if err := prom.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("failed to write textfile %s: %w", path, err)
	}
	return nil
}
