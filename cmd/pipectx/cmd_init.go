package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/pipectx/internal/config"
)

var initCmd = &cobra.Command{
	Use:         "init",
	Short:       "Create .pipectx with a default config in the project root",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{"skipConfig": "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := resolveRoot()
		if err != nil {
			return err
		}
		if err := config.InitDir(root); err != nil {
			return err
		}
		c, err := config.Load(root)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "initialized %s\n", c.ConfigPath())
		return nil
	},
}

var engineCmd = &cobra.Command{
	Use:   "engine",
	Short: "Show or change the engine name exported to launched commands",
}

var engineShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configured engine",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), cfg.Project.Engine)
		return err
	},
}

var engineSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Persist a new engine name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.SetEngine(args[0]); err != nil {
			return err
		}
		logger.Infow("engine changed", "engine", cfg.Project.Engine)
		fmt.Fprintf(cmd.OutOrStdout(), "engine set to %s\n", cfg.Project.Engine)
		return nil
	},
}

func init() {
	engineCmd.AddCommand(engineShowCmd, engineSetCmd)
}
