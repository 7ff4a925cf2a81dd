package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/asurasoft/radxa-q6a-utils/internal/cpufreq"
	"github.com/asurasoft/radxa-q6a-utils/internal/monitoring"
	"github.com/asurasoft/radxa-q6a-utils/pkg/util"
)

const (
	outputText = "text"
	outputYAML = "yaml"
	outputJSON = "json"

	// number of available frequencies listed per policy in the text view
	statusPreviewLen = 5
)

var separator = strings.Repeat("=", 70)

type policyStatus struct {
	Policy               cpufreq.Policy      `json:"policy" yaml:"policy"`
	Governor             string              `json:"governor,omitempty" yaml:"governor,omitempty"`
	CurrentFrequency     cpufreq.Frequency   `json:"currentFrequency,omitempty" yaml:"currentFrequency,omitempty"`
	AvailableFrequencies []cpufreq.Frequency `json:"availableFrequencies,omitempty" yaml:"availableFrequencies,omitempty"`
	Error                string              `json:"error,omitempty" yaml:"error,omitempty"`
}

type statusReport struct {
	Policies []policyStatus `json:"policies" yaml:"policies"`
}

// collectStatus reads every policy. A policy that cannot be read is reported
// with its error instead of failing the whole report.
func (a *app) collectStatus() statusReport {
	report := statusReport{Policies: make([]policyStatus, 0, len(a.ctrl.Policies()))}
	for _, policy := range a.ctrl.Policies() {
		state, err := a.ctrl.GetState(policy)
		if err != nil {
			a.log.V(1).Info("policy unavailable", "policy", policy, "error", err.Error())
			report.Policies = append(report.Policies, policyStatus{Policy: policy, Error: err.Error()})
			continue
		}
		report.Policies = append(report.Policies, policyStatus{
			Policy:               policy,
			Governor:             state.Governor,
			CurrentFrequency:     state.CurrentFrequency,
			AvailableFrequencies: state.AvailableFrequencies,
		})
	}
	return report
}

func (a *app) printStatus(out io.Writer) {
	writeStatusText(out, a.collectStatus())
}

func writeStatusText(out io.Writer, report statusReport) {
	fmt.Fprintf(out, "\n%s\nCPU frequency status\n%s\n", separator, separator)
	for _, status := range report.Policies {
		if status.Error != "" {
			fmt.Fprintf(out, "\n%s: unavailable (%s)\n", status.Policy, status.Error)
			continue
		}
		fmt.Fprintf(out, "\n%s:\n", status.Policy)
		fmt.Fprintf(out, "   governor:  %s\n", status.Governor)
		fmt.Fprintf(out, "   current:   %s\n", util.FormatFrequency(status.CurrentFrequency))
		if len(status.AvailableFrequencies) > 0 {
			preview := status.AvailableFrequencies[:min(statusPreviewLen, len(status.AvailableFrequencies))]
			fmt.Fprintf(out, "   available: %s\n", strings.Join(util.FormatFrequencyList(preview), ", "))
			if len(status.AvailableFrequencies) > statusPreviewLen {
				fmt.Fprintf(out, "              ... %d frequencies in total\n", len(status.AvailableFrequencies))
			}
		}
	}
	fmt.Fprintf(out, "\n%s\n", separator)
}

func writeStatus(out io.Writer, report statusReport, format string) error {
	switch format {
	case outputText:
		writeStatusText(out, report)
	case outputYAML:
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(report); err != nil {
			return fmt.Errorf("failed to encode status as yaml: %w", err)
		}
		return encoder.Close()
	case outputJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode status as json: %w", err)
		}
		fmt.Fprintln(out, string(data))
	default:
		return fmt.Errorf("unsupported output format %q, expected one of %s, %s, %s", format, outputText, outputYAML, outputJSON)
	}
	return nil
}

func newStatusCommand(a *app) *cobra.Command {
	var (
		output   string
		textfile string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show governor, current and available frequencies of every policy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := writeStatus(cmd.OutOrStdout(), a.collectStatus(), output); err != nil {
				return err
			}
			if textfile == "" {
				return nil
			}
			collector := monitoring.NewPolicyCollector(a.ctrl, a.log.WithName(monitoring.LogTopName))
			if err := monitoring.WriteTextfile(textfile, collector); err != nil {
				return err
			}
			a.log.V(1).Info("textfile written", "path", textfile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, yaml or json")
	cmd.Flags().StringVar(&textfile, "textfile", "", "also write the state as prometheus metrics to this file")
	return cmd
}
