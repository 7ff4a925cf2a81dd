package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/asurasoft/radxa-q6a-utils/internal/cpufreq"
	"github.com/asurasoft/radxa-q6a-utils/pkg/util"
)

// number of available frequencies offered per prompt
const menuListLen = 10

type menuAction int

const (
	actionSetAll menuAction = iota + 1
	actionSetPolicy
	actionPreset
	actionStatus
)

type presetChoice int

const (
	choicePerformance presetChoice = iota + 1
	choiceBalanced
	choicePowersave
	choiceCustom
)

type prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{scanner: bufio.NewScanner(in), out: out}
}

func (p *prompter) ask(question string) (string, error) {
	fmt.Fprint(p.out, question)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return "", fmt.Errorf("failed to read input: %w", io.ErrUnexpectedEOF)
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// choose reads a 1-based menu entry. ok is false for anything outside 1..n.
func (p *prompter) choose(question string, n int) (int, bool, error) {
	answer, err := p.ask(question)
	if err != nil {
		return 0, false, err
	}
	choice, err := strconv.Atoi(answer)
	if err != nil || choice < 1 || choice > n {
		fmt.Fprintln(p.out, "Invalid choice")
		return 0, false, nil
	}
	return choice, true, nil
}

func (p *prompter) confirm() (bool, error) {
	answer, err := p.ask("\nConfirm? (y/n): ")
	if err != nil {
		return false, err
	}
	if strings.ToLower(answer) != "y" {
		fmt.Fprintln(p.out, "Cancelled")
		return false, nil
	}
	return true, nil
}

// resolveFrequencyAnswer treats a number in 1..len(available) as an index into
// available and anything larger as a frequency in kHz.
func resolveFrequencyAnswer(answer string, available []cpufreq.Frequency) (cpufreq.Frequency, error) {
	freq, err := parseFrequency(answer)
	if err != nil {
		return 0, err
	}
	if freq >= 1 && uint64(freq) <= uint64(len(available)) {
		return available[freq-1], nil
	}
	return freq, nil
}

type interactiveSession struct {
	*app
	prompt *prompter
	out    io.Writer
}

func newInteractiveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:         "interactive",
		Short:       "Choose policies, frequencies and presets from a menu",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{requiresRootAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			session := &interactiveSession{
				app:    a,
				prompt: newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
				out:    cmd.OutOrStdout(),
			}
			return session.run()
		},
	}
}

func (s *interactiveSession) run() error {
	s.printStatus(s.out)

	fmt.Fprintln(s.out, "\nSelect an action:")
	fmt.Fprintln(s.out, "1. Set the frequency of every policy")
	fmt.Fprintln(s.out, "2. Set the frequency of a single policy")
	fmt.Fprintln(s.out, "3. Apply a preset")
	fmt.Fprintln(s.out, "4. Show status only")

	choice, ok, err := s.prompt.choose("\nChoice (1-4): ", int(actionStatus))
	if err != nil || !ok {
		return err
	}

	switch menuAction(choice) {
	case actionSetAll:
		return s.setAll()
	case actionSetPolicy:
		return s.setPolicy()
	case actionPreset:
		return s.preset()
	case actionStatus:
		s.printStatus(s.out)
	}
	return nil
}

// promptFrequency lists the first available steps of policy and reads one value.
func (s *interactiveSession) promptFrequency(policy cpufreq.Policy) (cpufreq.Frequency, error) {
	var available []cpufreq.Frequency
	state, err := s.ctrl.GetState(policy)
	switch {
	case err != nil:
		fmt.Fprintf(s.out, "\n%s: no frequency information (%v)\n", policy, err)
	case len(state.AvailableFrequencies) == 0:
		fmt.Fprintf(s.out, "\n%s: no available frequencies reported\n", policy)
	default:
		available = state.AvailableFrequencies
		fmt.Fprintf(s.out, "\n%s available frequencies:\n", policy)
		for i, freq := range available[:min(menuListLen, len(available))] {
			fmt.Fprintf(s.out, "  %d. %s\n", i+1, util.FormatFrequency(freq))
		}
	}

	question := fmt.Sprintf("Frequency for %s (kHz): ", policy)
	if len(available) > 0 {
		question = fmt.Sprintf("Frequency for %s (kHz) or list number: ", policy)
	}
	answer, err := s.prompt.ask(question)
	if err != nil {
		return 0, err
	}
	return resolveFrequencyAnswer(answer, available)
}

func (s *interactiveSession) confirmTargets(policies []cpufreq.Policy, freqs []cpufreq.Frequency) (bool, error) {
	fmt.Fprintln(s.out, "\nAbout to set:")
	for i, policy := range policies {
		fmt.Fprintf(s.out, "  %s: %s\n", policy, util.FormatFrequency(freqs[i]))
	}
	return s.prompt.confirm()
}

func (s *interactiveSession) setAll() error {
	policies := s.ctrl.Policies()
	freqs := make([]cpufreq.Frequency, 0, len(policies))
	for _, policy := range policies {
		freq, err := s.promptFrequency(policy)
		if err != nil {
			return err
		}
		freqs = append(freqs, freq)
	}

	confirmed, err := s.confirmTargets(policies, freqs)
	if err != nil || !confirmed {
		return err
	}
	results, err := s.ctrl.SetAllFrequencies(freqs...)
	return s.finishBatch(s.out, results, err)
}

func (s *interactiveSession) setPolicy() error {
	policies := s.ctrl.Policies()
	fmt.Fprintln(s.out, "\nSelect a policy:")
	for i, policy := range policies {
		fmt.Fprintf(s.out, "  %d. %s\n", i+1, policy)
	}
	choice, ok, err := s.prompt.choose(fmt.Sprintf("Choice (1-%d): ", len(policies)), len(policies))
	if err != nil || !ok {
		return err
	}

	policy := policies[choice-1]
	freq, err := s.promptFrequency(policy)
	if err != nil {
		return err
	}
	result, err := s.ctrl.SetFrequency(policy, freq)
	if err != nil {
		return err
	}
	writeResults(s.out, []cpufreq.PolicyResult{{Policy: policy, Target: freq, Result: result}})
	s.printStatus(s.out)
	return nil
}

func (s *interactiveSession) preset() error {
	policies := s.ctrl.Policies()
	performance := make([]string, 0, len(policies))
	for _, policy := range policies {
		freq, err := s.ctrl.ResolvePreset(policy, string(cpufreq.PresetPerformance))
		if err != nil {
			return err
		}
		performance = append(performance, fmt.Sprintf("%s: %d", policy, freq))
	}

	fmt.Fprintln(s.out, "\nPresets:")
	fmt.Fprintf(s.out, "1. performance (%s)\n", strings.Join(performance, ", "))
	fmt.Fprintln(s.out, "2. balanced (middle frequency)")
	fmt.Fprintln(s.out, "3. powersave (lowest frequency)")
	fmt.Fprintln(s.out, "4. custom")

	choice, ok, err := s.prompt.choose("Choice (1-4): ", int(choiceCustom))
	if err != nil || !ok {
		return err
	}

	var preset cpufreq.Preset
	switch presetChoice(choice) {
	case choicePerformance:
		preset = cpufreq.PresetPerformance
	case choiceBalanced:
		preset = cpufreq.PresetBalanced
	case choicePowersave:
		preset = cpufreq.PresetPowersave
	case choiceCustom:
		return s.setAll()
	}

	// a policy that cannot be resolved is listed and left to ApplyPreset to report
	fmt.Fprintln(s.out, "\nAbout to set:")
	for _, policy := range policies {
		freq, err := s.ctrl.ResolvePreset(policy, string(preset))
		if err != nil {
			fmt.Fprintf(s.out, "  %s: unavailable (%v)\n", policy, err)
			continue
		}
		fmt.Fprintf(s.out, "  %s: %s\n", policy, util.FormatFrequency(freq))
	}
	confirmed, err := s.prompt.confirm()
	if err != nil || !confirmed {
		return err
	}
	results, err := s.ctrl.ApplyPreset(string(preset))
	return s.finishBatch(s.out, results, err)
}
