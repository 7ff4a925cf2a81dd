package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asurasoft/radxa-q6a-utils/internal/cpufreq"
	"github.com/asurasoft/radxa-q6a-utils/pkg/util"
)

func parseFrequency(arg string) (cpufreq.Frequency, error) {
	value, err := strconv.ParseUint(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		return 0, &cpufreq.Error{
			Kind: cpufreq.KindInvalidFrequency,
			Op:   "failed to parse frequency",
			Msg:  fmt.Sprintf("%q is not a whole number of kHz", arg),
		}
	}
	return cpufreq.Frequency(value), nil
}

// writeResults prints one line per policy of a batch operation.
func writeResults(out io.Writer, results []cpufreq.PolicyResult) {
	for _, result := range results {
		switch {
		case result.Err != nil:
			fmt.Fprintf(out, "%s: failed\n", result.Policy)
		case !result.Result.Verified():
			fmt.Fprintf(out, "%s -> %s: applied, warning: %s\n",
				result.Policy, util.FormatFrequency(result.Target), result.Result.Warning)
		default:
			fmt.Fprintf(out, "%s -> %s: ok\n", result.Policy, util.FormatFrequency(result.Target))
		}
	}
}

func (a *app) finishBatch(out io.Writer, results []cpufreq.PolicyResult, err error) error {
	if results == nil {
		return err
	}
	writeResults(out, results)
	a.printStatus(out)
	return err
}

func newSetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "set FREQ...",
		Short:       "Set one frequency per policy, in policy order",
		Example:     "  sudo cpufreqctl set 1958400 2400000 2707200",
		Annotations: map[string]string{requiresRootAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			freqs := make([]cpufreq.Frequency, 0, len(args))
			for _, arg := range args {
				freq, err := parseFrequency(arg)
				if err != nil {
					return err
				}
				freqs = append(freqs, freq)
			}
			results, err := a.ctrl.SetAllFrequencies(freqs...)
			return a.finishBatch(cmd.OutOrStdout(), results, err)
		},
	}
}

func newSetPolicyCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "set-policy POLICY FREQ",
		Short:       "Set the frequency of a single policy",
		Example:     "  sudo cpufreqctl set-policy policy0 1958400",
		Args:        cobra.ExactArgs(2),
		Annotations: map[string]string{requiresRootAnnotation: "true"},
		ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
			if len(args) != 0 || a.ctrl == nil {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			policies := make([]string, 0, len(a.ctrl.Policies()))
			for _, policy := range a.ctrl.Policies() {
				policies = append(policies, string(policy))
			}
			return policies, cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := cpufreq.Policy(args[0])
			freq, err := parseFrequency(args[1])
			if err != nil {
				return err
			}

			result, err := a.ctrl.SetFrequency(policy, freq)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			writeResults(out, []cpufreq.PolicyResult{{Policy: policy, Target: freq, Result: result}})
			a.printStatus(out)
			return nil
		},
	}
}

func newPresetCommand(a *app) *cobra.Command {
	names := make([]string, 0, len(cpufreq.Presets))
	for _, preset := range cpufreq.Presets {
		names = append(names, string(preset))
	}
	return &cobra.Command{
		Use:   "preset NAME",
		Short: "Apply a preset: " + strings.Join(names, ", "),
		Long: `Apply a preset to every policy.

performance  vendor recommended frequency of each policy
balanced     middle step of the available frequencies, counted from the highest
powersave    lowest available frequency`,
		Args:        cobra.ExactArgs(1),
		ValidArgs:   names,
		Annotations: map[string]string{requiresRootAnnotation: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.ctrl.ApplyPreset(args[0])
			return a.finishBatch(cmd.OutOrStdout(), results, err)
		},
	}
}
