// Package cli provides the command-line interface for Ember
package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ember-build/ember/pkg/types"
)

var (
	verbosity   string
	jobs        int
	loadLimit   float64
	quiet       bool
	versionInfo string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ember",
	Short: "A declarative build orchestrator for compiled-language projects",
	Long: `Ember runs your build subcommands under bounded, load-aware parallelism,
captures their combined output into a per-build log, and keeps the effective
build configuration in a signed local cache so the declaration files are not
re-parsed on every invocation.`,

	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("ember v%s\n", versionInfo)
			return
		}
		_ = cmd.Help()
	},
}

// Execute runs the CLI
func Execute(version string) error {
	versionInfo = version

	if err := checkRuntimeSupport(); err != nil {
		return err
	}

	initializeRootCommand()
	return rootCmd.Execute()
}

// initializeRootCommand sets up the root command and its flags explicitly
// instead of relying on init().
func initializeRootCommand() {
	rootCmd.PersistentFlags().StringVarP(&verbosity, "verbosity", "v", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVarP(&jobs, "jobs", "j", 0, "parallel build jobs (default: logical core count)")
	rootCmd.PersistentFlags().Float64VarP(&loadLimit, "load-average", "l", 0, "1-minute load average above which ember throttles to one job")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "do not echo subcommand invocations to the terminal")

	rootCmd.Flags().Bool("version", false, "Print version information and quit")

	rootCmd.AddCommand(newBuildCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newCacheCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// checkRuntimeSupport gates startup on the platforms the scheduler's
// descriptor redirection actually works on.
func checkRuntimeSupport() error {
	switch runtime.GOOS {
	case "linux", "darwin", "windows":
		return nil
	default:
		return types.Exitf(types.ExitUnsupportedRuntime,
			"ember does not support %s/%s", runtime.GOOS, runtime.GOARCH)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("ember v%s (%s/%s)\n", versionInfo, runtime.GOOS, runtime.GOARCH)
		},
	}
}
