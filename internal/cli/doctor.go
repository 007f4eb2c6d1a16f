package cli

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/spf13/cobra"

	"github.com/agusx1211/swarmix/internal/config"
	"github.com/agusx1211/swarmix/internal/detect"
	"github.com/agusx1211/swarmix/internal/pushover"
	"github.com/agusx1211/swarmix/internal/worker"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that this environment can run a round",
	Long: `Verify the pieces a round depends on: git on PATH, a valid repository,
and at least one installed worker CLI. Optional integrations are reported
but never fail the check.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var critical []string

	printHeader("Environment")

	gitPath, err := exec.LookPath("git")
	if err != nil {
		printCheck(false, "git", "not found on PATH")
		critical = append(critical, "git is not installed")
	} else {
		printCheck(true, "git", fmt.Sprintf("%s (%s)", gitPath, gitVersion(gitPath)))
	}

	repoRoot, repoErr := resolveRepoRoot()
	switch {
	case repoErr != nil:
		printCheck(false, "repository", repoErr.Error())
		critical = append(critical, "no git repository")
	case gitPath != "":
		if out, err := exec.Command(gitPath, "-C", repoRoot, "rev-parse", "--git-dir").CombinedOutput(); err != nil {
			printCheck(false, "repository", fmt.Sprintf("%s: %s", repoRoot, strings.TrimSpace(string(out))))
			critical = append(critical, "repository is not usable")
		} else {
			printCheck(true, "repository", repoRoot)
		}
	default:
		printCheck(true, "repository", repoRoot)
	}

	var cfg *config.Config
	if repoErr == nil {
		cfg, err = config.Load(repoRoot)
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		printCheck(false, "config", err.Error())
		critical = append(critical, "configuration does not parse")
		cfg = config.Default()
	} else {
		printCheck(true, "config", fmt.Sprintf("model=%s sandbox=%s", cfg.Worker.Model, cfg.Worker.Sandbox))
	}

	printHeader("Workers")
	tools := detect.Scan(cfg.Worker.Bin)
	if len(tools) == 0 {
		printCheck(false, "workers", fmt.Sprintf("none of the known CLIs found (%s)", strings.Join(worker.Names(), ", ")))
		critical = append(critical, "no worker CLI installed")
	}
	for _, tool := range tools {
		detail := tool.Path
		if tool.Version != "" {
			detail += " (v" + tool.Version + ")"
		}
		if tool.Source == "config" {
			detail += " [configured]"
		}
		printCheck(true, tool.Name, detail)
		if len(tool.SupportedModels) > 0 {
			fmt.Printf("      %smodels: %s%s\n", ansiDim, strings.Join(tool.SupportedModels, ", "), ansiReset)
		}
	}

	printHeader("Integrations")
	if pushover.Configured(&cfg.Pushover) {
		printCheck(true, "pushover", "round notifications enabled")
	} else {
		fmt.Printf("  %s-%s %-12s %s\n", ansiDim, ansiReset, "pushover", ansiDim+"not configured"+ansiReset)
	}

	fmt.Println()
	if len(critical) > 0 {
		return fmt.Errorf("doctor found problems: %s", strings.Join(critical, "; "))
	}
	fmt.Println(ansiBoldGreen + "  Ready to run." + ansiReset)
	fmt.Println()
	return nil
}

func printCheck(ok bool, name, detail string) {
	badge := ansiBoldGreen + "✓" + ansiReset
	if !ok {
		badge = ansiBoldRed + "✗" + ansiReset
	}
	fmt.Printf("  %s %-12s %s\n", badge, name, detail)
}

func gitVersion(gitPath string) string {
	out, err := exec.Command(gitPath, "version").Output()
	if err != nil {
		return "version unknown"
	}
	return strings.TrimSpace(string(out))
}
