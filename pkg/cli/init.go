package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ember-build/ember/pkg/project"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <name>",
		Short: "Create a new Ember project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			if err := project.Init(name); err != nil {
				return err
			}
			cwd, _ := os.Getwd()
			fmt.Printf("%s created %s at %s\n", color.GreenString("ok:"), name, cwd)
			return nil
		},
	}
}
