package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	launchTask  int
	launchLogin string
)

var launchCmd = &cobra.Command{
	Use:   "launch <scene-path> <command>",
	Short: "Run a session command for a scene",
	Long: `Resolves <scene-path>, builds the session and runs <command> from it.
Commands receive PIPECTX_ENGINE and PIPECTX_CONTEXT in their environment.`,
	Args: cobra.ExactArgs(2),
	RunE: runLaunch,
}

func init() {
	launchCmd.Flags().IntVar(&launchTask, "task", 0, "answer the task chooser with this task id")
	launchCmd.Flags().StringVar(&launchLogin, "as", "", "match assignees against this login instead of the OS account")
}

func runLaunch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger, appOptions{taskID: launchTask, login: launchLogin})
	if err != nil {
		return err
	}
	defer a.Close()

	snap, err := a.openScene(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := a.sessions.Launch(cmd.Context(), args[1]); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "commands available for %s:\n", snap.Context)
		for _, spec := range snap.Commands {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", spec.Name)
		}
		return err
	}
	return nil
}
