package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ember-build/ember/pkg/logger"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective build configuration",
		Long: `Config renders the merged result of all declaration sources: the project
manifest, the patch override, the user preferences and the system
environment, in that precedence order.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(verbosity)
			settings, err := loadSettings(cmd.Context(), log)
			if err != nil {
				return err
			}
			rendered, err := yaml.Marshal(settings)
			if err != nil {
				return fmt.Errorf("failed to render settings: %w", err)
			}
			_, err = os.Stdout.Write(rendered)
			return err
		},
	}
}
