package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/asurasoft/radxa-q6a-utils/internal/cpufreq"
	"github.com/asurasoft/radxa-q6a-utils/pkg/testutils"
)

type runResult struct {
	code   int
	stdout string
	stderr string
}

func run(fake *testutils.FakeSysfs, input string, args ...string) runResult {
	var stdout, stderr bytes.Buffer
	code := Execute(args, Options{
		FS:  fake,
		In:  strings.NewReader(input),
		Out: &stdout,
		Err: &stderr,
	})
	return runResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func setspeedWrites(fake *testutils.FakeSysfs) []string {
	var writes []string
	for _, policy := range []string{"policy0", "policy4", "policy7"} {
		writes = append(writes, fake.Writes(policy, "scaling_setspeed")...)
	}
	return writes
}

var _ = Describe("cpufreqctl", func() {
	var fake *testutils.FakeSysfs

	BeforeEach(func() {
		fake = testutils.NewQ6ASysfs()
		original := geteuid
		geteuid = func() int { return 0 }
		DeferCleanup(func() {
			geteuid = original
		})
	})

	Context("status", func() {
		It("should print every policy", func() {
			result := run(fake, "", "status")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("CPU frequency status"))
			Expect(result.stdout).To(ContainSubstring("policy0:\n   governor:  schedutil\n   current:   1.80 GHz (1804800 kHz)"))
			Expect(result.stdout).To(ContainSubstring("available: 300.00 MHz (300000 kHz), 499.20 MHz (499200 kHz)"))
			Expect(result.stdout).To(ContainSubstring("... 15 frequencies in total"))
			Expect(result.stdout).To(ContainSubstring("policy7:"))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should report a missing policy without failing", func() {
			Expect(fake.Mem.RemoveAll(fake.Path("policy4", ""))).To(Succeed())

			result := run(fake, "", "status")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("policy4: unavailable ("))
			Expect(result.stdout).To(ContainSubstring("policy7:\n   governor:  schedutil"))
		})

		It("should encode yaml", func() {
			result := run(fake, "", "status", "-o", "yaml")
			Expect(result.code).To(Equal(exitOK))

			var report statusReport
			Expect(yaml.Unmarshal([]byte(result.stdout), &report)).To(Succeed())
			Expect(report.Policies).To(HaveLen(3))
			Expect(report.Policies[1].Policy).To(Equal(cpufreq.Policy4))
			Expect(report.Policies[1].CurrentFrequency).To(Equal(cpufreq.Frequency(2131200)))
			Expect(report.Policies[1].AvailableFrequencies).To(HaveLen(len(testutils.Policy4Frequencies)))
		})

		It("should encode json with the error of an unreadable policy", func() {
			fake.SetContent("policy0", "scaling_cur_freq", "garbage\n")

			result := run(fake, "", "status", "--output", "json")
			Expect(result.code).To(Equal(exitOK))

			var report statusReport
			Expect(json.Unmarshal([]byte(result.stdout), &report)).To(Succeed())
			Expect(report.Policies[0].Error).To(ContainSubstring("failed to parse"))
			Expect(report.Policies[0].Governor).To(BeEmpty())
			Expect(report.Policies[2].Governor).To(Equal("schedutil"))
		})

		It("should reject an unknown output format", func() {
			result := run(fake, "", "status", "-o", "xml")

			Expect(result.code).To(Equal(exitFailure))
			Expect(result.stderr).To(ContainSubstring(`unsupported output format "xml"`))
		})

		It("should write a prometheus textfile", func() {
			path := filepath.Join(GinkgoT().TempDir(), "cpufreq.prom")

			result := run(fake, "", "status", "--textfile", path)
			Expect(result.code).To(Equal(exitOK))

			content, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(content)).To(ContainSubstring(`cpufreq_governor_info{governor="schedutil",policy="policy0"} 1`))
		})

		It("should print status and a hint without a command", func() {
			result := run(fake, "")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("CPU frequency status"))
			Expect(result.stdout).To(ContainSubstring("Run 'cpufreqctl --help'"))
		})
	})

	Context("environment", func() {
		It("should fail when the cpufreq root is missing", func() {
			result := run(testutils.NewFakeSysfs("/somewhere/else"), "", "status")

			Expect(result.code).To(Equal(exitEnvironment))
			Expect(result.stderr).To(ContainSubstring("Radxa Dragon Q6A"))
		})

		It("should honor the root flag", func() {
			custom := testutils.NewFakeSysfs("/tmp/cpufreq").
				AddPolicy("policy0", "userspace", 300000, testutils.Policy0Frequencies...).
				AddPolicy("policy4", "userspace", 691200, testutils.Policy4Frequencies...).
				AddPolicy("policy7", "userspace", 806400, testutils.Policy7Frequencies...)

			result := run(custom, "", "--root", "/tmp/cpufreq", "status")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("current:   300.00 MHz (300000 kHz)"))
		})

		It("should read the root from the environment", func() {
			custom := testutils.NewFakeSysfs("/opt/cpufreq").
				AddPolicy("policy0", "userspace", 300000, testutils.Policy0Frequencies...).
				AddPolicy("policy4", "userspace", 691200, testutils.Policy4Frequencies...).
				AddPolicy("policy7", "userspace", 806400, testutils.Policy7Frequencies...)
			Expect(os.Setenv("CPUFREQ_ROOT", "/opt/cpufreq")).To(Succeed())
			DeferCleanup(os.Unsetenv, "CPUFREQ_ROOT")

			result := run(custom, "", "status")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("policy4:\n   governor:  userspace"))
		})

		It("should replace the policies from a config file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "cpufreq.yaml")
			config := "policies:\n  - name: policy0\n    performanceFrequency: 1804800\n  - name: policy7\n    performanceFrequency: 2515200\n"
			Expect(os.WriteFile(path, []byte(config), 0600)).To(Succeed())

			result := run(fake, "", "--config", path, "preset", "performance")

			Expect(result.code).To(Equal(exitOK))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1804800", "2515200"}))
			Expect(fake.Writes("policy4", "scaling_governor")).To(BeEmpty())
		})

		It("should fail on an invalid config file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "cpufreq.yaml")
			Expect(os.WriteFile(path, []byte("policies:\n  - name: cpu0\n    performanceFrequency: 1\n"), 0600)).To(Succeed())

			result := run(fake, "", "--config", path, "status")

			Expect(result.code).To(Equal(exitFailure))
			Expect(result.stderr).To(ContainSubstring(`invalid policy name "cpu0"`))
		})
	})

	Context("set", func() {
		It("should set every policy", func() {
			result := run(fake, "", "set", "1958400", "2400000", "2707200")

			Expect(result.code).To(Equal(exitOK))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1958400", "2400000", "2707200"}))
			Expect(fake.Content("policy4", "scaling_governor")).To(Equal("userspace"))
			Expect(result.stdout).To(ContainSubstring("policy0 -> 1.96 GHz (1958400 kHz): ok"))
			Expect(result.stdout).To(ContainSubstring("current:   2.71 GHz (2707200 kHz)"))
		})

		It("should require one frequency per policy", func() {
			result := run(fake, "", "set", "1958400", "2400000")

			Expect(result.code).To(Equal(exitInvalidFrequency))
			Expect(result.stderr).To(ContainSubstring("expected 3 frequencies"))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should reject a value that is not a number", func() {
			result := run(fake, "", "set", "1958400", "2.4GHz", "2707200")

			Expect(result.code).To(Equal(exitInvalidFrequency))
			Expect(result.stderr).To(ContainSubstring(`"2.4GHz" is not a whole number of kHz`))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should keep going when one policy rejects its frequency", func() {
			result := run(fake, "", "set", "1958400", "2500000", "2707200")

			Expect(result.code).To(Equal(exitInvalidFrequency))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1958400", "2707200"}))
			Expect(result.stdout).To(ContainSubstring("policy4: failed"))
			Expect(result.stderr).To(ContainSubstring("frequency 2500000 is not available for policy4"))
			Expect(result.stderr).To(ContainSubstring("Hint: run 'cpufreqctl status'"))
		})

		It("should require root", func() {
			geteuid = func() int { return 1000 }

			result := run(fake, "", "set", "1958400", "2400000", "2707200")

			Expect(result.code).To(Equal(exitPermission))
			Expect(result.stderr).To(ContainSubstring("root privileges are required"))
			Expect(result.stderr).To(ContainSubstring("Hint: re-run the command with sudo"))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should report a write denied by the kernel", func() {
			fake.DenyWrites("policy4")

			result := run(fake, "", "set", "1958400", "2400000", "2707200")

			Expect(result.code).To(Equal(exitPermission))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1958400", "2707200"}))
		})

		It("should print a warning when the driver ignores the write", func() {
			fake.IgnoreSetspeed()

			result := run(fake, "", "set", "1958400", "2400000", "2707200")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("policy0 -> 1.96 GHz (1958400 kHz): applied, warning: policy0: frequency reads 1804800 after requesting 1958400"))
		})
	})

	Context("set-policy", func() {
		It("should set a single policy", func() {
			result := run(fake, "", "set-policy", "policy7", "1996800")

			Expect(result.code).To(Equal(exitOK))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1996800"}))
			Expect(fake.Content("policy0", "scaling_governor")).To(Equal("schedutil"))
			Expect(result.stdout).To(ContainSubstring("policy7 -> 2.00 GHz (1996800 kHz): ok"))
		})

		It("should reject an unmanaged policy", func() {
			result := run(fake, "", "set-policy", "policy2", "1996800")

			Expect(result.code).To(Equal(exitFailure))
			Expect(result.stderr).To(ContainSubstring("policy is not managed"))
		})

		It("should require exactly two arguments", func() {
			result := run(fake, "", "set-policy", "policy7")

			Expect(result.code).To(Equal(exitFailure))
			Expect(fake.TotalWrites()).To(BeZero())
		})
	})

	Context("preset", func() {
		It("should apply powersave", func() {
			result := run(fake, "", "preset", "powersave")

			Expect(result.code).To(Equal(exitOK))
			Expect(setspeedWrites(fake)).To(Equal([]string{"300000", "691200", "806400"}))
		})

		It("should apply balanced", func() {
			result := run(fake, "", "preset", "balanced")

			Expect(result.code).To(Equal(exitOK))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1152000", "1516800", "1996800"}))
		})

		It("should reject an unknown preset", func() {
			result := run(fake, "", "preset", "turbo")

			Expect(result.code).To(Equal(exitUnknownPreset))
			Expect(result.stderr).To(ContainSubstring(`unknown preset "turbo"`))
			Expect(fake.TotalWrites()).To(BeZero())
		})
	})

	Context("interactive", func() {
		It("should only show status", func() {
			result := run(fake, "4\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(strings.Count(result.stdout, "CPU frequency status")).To(Equal(2))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should set every policy by list number", func() {
			result := run(fake, "1\n15\n10\n8\ny\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("Frequency for policy0 (kHz) or list number: "))
			Expect(result.stdout).To(ContainSubstring("  10. 1.34 GHz (1344000 kHz)"))
			Expect(result.stdout).NotTo(ContainSubstring("  11. "))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1958400", "2400000", "2707200"}))
		})

		It("should accept raw frequencies", func() {
			result := run(fake, "1\n1804800\n2131200\n2515200\ny\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1804800", "2131200", "2515200"}))
		})

		It("should not write without confirmation", func() {
			result := run(fake, "1\n1\n1\n1\nn\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("About to set:\n  policy0: 300.00 MHz (300000 kHz)"))
			Expect(result.stdout).To(ContainSubstring("Cancelled"))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should set a single policy", func() {
			result := run(fake, "2\n3\n1996800\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(fake.Writes("policy7", "scaling_setspeed")).To(Equal([]string{"1996800"}))
			Expect(fake.TotalWrites()).To(Equal(2))
		})

		It("should apply a preset after confirmation", func() {
			result := run(fake, "3\n2\ny\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("1. performance (policy0: 1958400, policy4: 2400000, policy7: 2707200)"))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1152000", "1516800", "1996800"}))
		})

		It("should fall through to a custom selection", func() {
			result := run(fake, "3\n4\n1\n1\n1\ny\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(setspeedWrites(fake)).To(Equal([]string{"300000", "691200", "806400"}))
		})

		It("should ignore an invalid menu choice", func() {
			result := run(fake, "9\n", "interactive")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("Invalid choice"))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should reject an invalid frequency value", func() {
			result := run(fake, "1\nfast\n", "interactive")

			Expect(result.code).To(Equal(exitInvalidFrequency))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should fail when input ends early", func() {
			result := run(fake, "1\n15\n", "interactive")

			Expect(result.code).To(Equal(exitFailure))
			Expect(result.stderr).To(ContainSubstring("failed to read input"))
			Expect(fake.TotalWrites()).To(BeZero())
		})

		It("should require root before prompting", func() {
			geteuid = func() int { return 1000 }

			result := run(fake, "4\n", "interactive")

			Expect(result.code).To(Equal(exitPermission))
			Expect(result.stdout).NotTo(ContainSubstring("Select an action"))
		})

		It("should apply a preset to the policies that resolve", func() {
			fake.SetContent("policy4", "scaling_available_frequencies", "\n")

			result := run(fake, "3\n2\ny\n", "interactive")

			Expect(result.code).To(Equal(exitFailure))
			Expect(result.stdout).To(ContainSubstring("  policy4: unavailable (failed to resolve preset balanced for policy4"))
			Expect(result.stdout).To(ContainSubstring("policy4: failed"))
			Expect(setspeedWrites(fake)).To(Equal([]string{"1152000", "1996800"}))
			Expect(result.stderr).To(ContainSubstring("no available frequencies reported"))
		})
	})

	Context("builtin commands", func() {
		var elsewhere *testutils.FakeSysfs

		BeforeEach(func() {
			elsewhere = testutils.NewFakeSysfs("/somewhere/else")
		})

		It("should print help without a cpufreq root", func() {
			result := run(elsewhere, "", "help")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("set-policy"))
		})

		It("should generate completion without a cpufreq root", func() {
			result := run(elsewhere, "", "completion", "bash")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("cpufreqctl"))
		})

		It("should complete commands without a cpufreq root", func() {
			result := run(elsewhere, "", "__complete", "set-")

			Expect(result.code).To(Equal(exitOK))
			Expect(result.stdout).To(ContainSubstring("set-policy"))
		})
	})
})

var _ = DescribeTable("exitCode",
	func(err error, expected int) {
		Expect(exitCode(err)).To(Equal(expected))
	},
	Entry("success", nil, exitOK),
	Entry("plain error", errors.New("boom"), exitFailure),
	Entry("io", &cpufreq.Error{Kind: cpufreq.KindIO}, exitFailure),
	Entry("environment", &cpufreq.Error{Kind: cpufreq.KindEnvironment}, exitEnvironment),
	Entry("permission", &cpufreq.Error{Kind: cpufreq.KindPermission}, exitPermission),
	Entry("invalid frequency", &cpufreq.InvalidFrequencyError{Policy: cpufreq.Policy0}, exitInvalidFrequency),
	Entry("unknown preset", &cpufreq.UnknownPresetError{Name: "turbo"}, exitUnknownPreset),
	Entry("combined prefers permission",
		multierr.Combine(&cpufreq.InvalidFrequencyError{}, &cpufreq.Error{Kind: cpufreq.KindPermission}), exitPermission),
)

var _ = DescribeTable("resolveFrequencyAnswer",
	func(answer string, expected cpufreq.Frequency) {
		freq, err := resolveFrequencyAnswer(answer, []cpufreq.Frequency{300000, 499200, 595200})
		Expect(err).NotTo(HaveOccurred())
		Expect(freq).To(Equal(expected))
	},
	Entry("first index", "1", cpufreq.Frequency(300000)),
	Entry("last index", "3", cpufreq.Frequency(595200)),
	Entry("past the list is a raw value", "4", cpufreq.Frequency(4)),
	Entry("raw frequency", "499200", cpufreq.Frequency(499200)),
	Entry("surrounding space", " 2 ", cpufreq.Frequency(499200)),
)
