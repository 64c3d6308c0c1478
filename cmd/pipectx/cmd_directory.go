package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/pipectx/internal/directory"
)

var directoryCmd = &cobra.Command{
	Use:   "directory",
	Short: "Manage the local task directory",
}

var directoryImportCmd = &cobra.Command{
	Use:   "import <fixtures.yaml>",
	Short: "Load users and tasks from a YAML file into the directory database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fx, err := directory.LoadFixtures(args[0])
		if err != nil {
			return err
		}
		store, err := directory.Open(cfg.DirectoryPath())
		if err != nil {
			return err
		}
		defer store.Close()
		users, tasks, err := store.Import(cmd.Context(), fx)
		if err != nil {
			return err
		}
		logger.Infow("directory imported", "file", args[0], "users", users, "tasks", tasks)
		fmt.Fprintf(cmd.OutOrStdout(), "imported %d users and %d tasks into %s\n", users, tasks, cfg.DirectoryPath())
		return nil
	},
}

func init() {
	directoryCmd.AddCommand(directoryImportCmd)
}
