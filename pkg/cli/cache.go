package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ember-build/ember/pkg/cache"
	"github.com/ember-build/ember/pkg/destinations"
	"github.com/ember-build/ember/pkg/logger"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the signed configuration cache",
	}
	cmd.AddCommand(newCacheStatusCmd())
	cmd.AddCommand(newCacheClearCmd())
	cmd.AddCommand(newCachePathCmd())
	return cmd
}

func newCacheStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report whether a valid signed cache exists for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logger.New(verbosity)
			c := cache.New(cache.Options{Logger: log})
			// A missing manifest must surface with its exit code, not
			// vanish into a "stale" report.
			if err := c.Open(cmd.Context()); err != nil {
				return err
			}
			if c.IsCached(cmd.Context()) {
				fmt.Printf("%s cache is valid (%d bytes) at %s\n",
					color.GreenString("ok:"), c.Size(), c.Path())
			} else {
				fmt.Printf("%s no valid cache; the next build will regenerate it\n",
					color.YellowString("stale:"))
			}
			return c.Close()
		},
	}
}

func newCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the cached configuration for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}
			path := destinations.CachePath(projectDir)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove cache file: %w", err)
			}
			fmt.Println("cache cleared")
			return nil
		},
	}
}

func newCachePathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the cache file location for this project",
		RunE: func(cmd *cobra.Command, args []string) error {
			projectDir, err := os.Getwd()
			if err != nil {
				return err
			}
			fmt.Println(destinations.CachePath(projectDir))
			return nil
		},
	}
}
