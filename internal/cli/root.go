package cli

import (
	"flag"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sys/unix"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	cpufreqv1 "github.com/asurasoft/radxa-q6a-utils/api/v1"
	"github.com/asurasoft/radxa-q6a-utils/internal/cpufreq"
	"github.com/asurasoft/radxa-q6a-utils/internal/sysfs"
	"github.com/asurasoft/radxa-q6a-utils/pkg/util"
)

const (
	commandName = "cpufreqctl"
	envPrefix   = "CPUFREQ"

	rootFlag   = "root"
	configFlag = "config"

	// commands writing to sysfs carry this annotation and need root
	requiresRootAnnotation = "requires-root"
)

// overridden in tests
var geteuid = unix.Geteuid

// Options holds the process resources the commands run against.
type Options struct {
	FS  sysfs.FS
	In  io.Reader
	Out io.Writer
	Err io.Writer
}

type app struct {
	opts    Options
	config  *viper.Viper
	logOpts *zap.Options
	log     logr.Logger
	ctrl    cpufreq.FrequencyController
}

// NewRootCommand builds the command tree. The controller is created once flags
// are parsed, before any subcommand runs.
func NewRootCommand(opts Options) *cobra.Command {
	a := &app{
		opts:    opts,
		config:  viper.New(),
		logOpts: &zap.Options{
			Development: true,
			Level:       zapcore.InfoLevel,
			TimeEncoder: zapcore.ISO8601TimeEncoder,
		},
		log: logr.Discard(),
	}

	cmd := &cobra.Command{
		Use:   commandName,
		Short: "Inspect and set CPU frequencies on the Radxa Dragon Q6A",
		Long: `Inspect and set CPU frequencies on the Radxa Dragon Q6A.

The board exposes three cpufreq policies (policy0, policy4, policy7). Setting a
frequency switches the policy to the userspace governor first. Frequencies are
given in kHz as listed in scaling_available_frequencies.`,
		Example: `  cpufreqctl status
  sudo cpufreqctl set 1958400 2400000 2707200
  sudo cpufreqctl set-policy policy0 1958400
  sudo cpufreqctl preset performance
  sudo cpufreqctl interactive`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a.printStatus(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "\nRun '%s --help' to see the available commands.\n", commandName)
			return nil
		},
	}
	cmd.SetIn(opts.In)
	cmd.SetOut(opts.Out)
	cmd.SetErr(opts.Err)

	flags := cmd.PersistentFlags()
	flags.String(rootFlag, cpufreqv1.DefaultCPUFreqRoot, "cpufreq sysfs directory holding the policies")
	flags.String(configFlag, "", "optional YAML file describing root and policies")
	_ = a.config.BindPFlag(rootFlag, flags.Lookup(rootFlag))

	bindZapFlags(flags, a.logOpts)

	cmd.AddCommand(
		newStatusCommand(a),
		newSetCommand(a),
		newSetPolicyCommand(a),
		newPresetCommand(a),
		newInteractiveCommand(a),
	)
	return cmd
}

// bindZapFlags exposes the --zap-* logging flags on a cobra flag set.
func bindZapFlags(flags *pflag.FlagSet, opts *zap.Options) {
	zapFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	opts.BindFlags(zapFlags)
	flags.AddGoFlagSet(zapFlags)
}

// cobra's built-in commands, runnable on any host
var builtinCommands = sets.New("help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd)

func isBuiltinCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if builtinCommands.Has(c.Name()) {
			return true
		}
	}
	return false
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if isBuiltinCommand(cmd) {
		return nil
	}

	a.log = zap.New(
		zap.UseFlagOptions(a.logOpts),
		zap.WriteTo(cmd.ErrOrStderr()),
	).WithName(commandName)

	config, err := a.loadConfiguration(cmd)
	if err != nil {
		return err
	}
	a.log.V(4).Info("configuration loaded", "root", config.Root, "policies", config.PolicyNames())

	a.ctrl, err = cpufreq.NewFrequencyController(a.opts.FS, config, a.log.WithName("cpufreq"))
	if err != nil {
		return err
	}
	if err := a.ctrl.Discover(); err != nil {
		return err
	}

	if cmd.Annotations[requiresRootAnnotation] == "true" {
		return requireRoot()
	}
	return nil
}

// loadConfiguration layers flags over CPUFREQ_* environment variables over the
// config file over the built-in Q6A defaults.
func (a *app) loadConfiguration(cmd *cobra.Command) (cpufreqv1.CPUFreqConfiguration, error) {
	config := cpufreqv1.DefaultConfiguration()

	a.config.SetEnvPrefix(envPrefix)
	a.config.AutomaticEnv()
	if path, _ := cmd.Flags().GetString(configFlag); path != "" {
		a.config.SetConfigFile(path)
		a.config.SetConfigType("yaml")
		if err := a.config.ReadInConfig(); err != nil {
			return config, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}
	// a configured policy list replaces the default one instead of merging into it
	if a.config.IsSet("policies") {
		config.Policies = nil
	}
	if err := a.config.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func requireRoot() error {
	if geteuid() != 0 {
		return &cpufreq.Error{
			Kind: cpufreq.KindPermission,
			Op:   "this command writes to sysfs",
			Msg:  "root privileges are required",
		}
	}
	return nil
}

// Exit codes, one per error kind.
const (
	exitOK = iota
	exitFailure
	exitEnvironment
	exitPermission
	exitInvalidFrequency
	exitUnknownPreset
)

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	kind, _ := cpufreq.KindOf(err)
	switch kind {
	case cpufreq.KindEnvironment:
		return exitEnvironment
	case cpufreq.KindPermission:
		return exitPermission
	case cpufreq.KindInvalidFrequency:
		return exitInvalidFrequency
	case cpufreq.KindUnknownPreset:
		return exitUnknownPreset
	default:
		return exitFailure
	}
}

func hint(err error) string {
	kind, _ := cpufreq.KindOf(err)
	switch kind {
	case cpufreq.KindEnvironment:
		return "this tool only supports the Radxa Dragon Q6A with cpufreq enabled in the kernel"
	case cpufreq.KindPermission:
		return "re-run the command with sudo"
	case cpufreq.KindInvalidFrequency:
		return fmt.Sprintf("run '%s status' to list the available frequencies", commandName)
	}
	return ""
}

// Execute runs the command line and returns the process exit code.
func Execute(args []string, opts Options) int {
	cmd := NewRootCommand(opts)
	cmd.SetArgs(args)

	err := cmd.Execute()
	if err == nil {
		return exitOK
	}

	for _, msg := range *util.UnpackErrsToStrings(err) {
		fmt.Fprintf(opts.Err, "Error: %s\n", msg)
	}
	if h := hint(err); h != "" {
		fmt.Fprintf(opts.Err, "Hint: %s\n", h)
	}
	return exitCode(err)
}
