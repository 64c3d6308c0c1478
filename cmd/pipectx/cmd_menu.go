package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/pipectx/internal/menu"
)

var (
	menuTask  int
	menuLogin string
	menuJSON  bool
)

var menuCmd = &cobra.Command{
	Use:   "menu <scene-path>",
	Short: "Print the host menu for a scene",
	Args:  cobra.ExactArgs(1),
	RunE:  runMenu,
}

func init() {
	menuCmd.Flags().IntVar(&menuTask, "task", 0, "answer the task chooser with this task id")
	menuCmd.Flags().StringVar(&menuLogin, "as", "", "match assignees against this login instead of the OS account")
	menuCmd.Flags().BoolVar(&menuJSON, "json", false, "print the menu as JSON")
}

func runMenu(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger, appOptions{taskID: menuTask, login: menuLogin})
	if err != nil {
		return err
	}
	defer a.Close()

	a.listener.HandleScene(cmd.Context(), args[0])
	a.listener.HandleStartupComplete()
	current := a.menu.Current()
	w := cmd.OutOrStdout()
	if menuJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(current)
	}
	_, err = fmt.Fprintln(w, menu.Render(current))
	return err
}
