// cmd/pipectx/main.go
//
// Entry point for the pipectx CLI. `pipectx serve` runs next to a host
// application and keeps its pipeline context in sync with the open scene;
// the other commands are one-shot helpers around the same wiring.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kingrea/pipectx/internal/config"
	"github.com/kingrea/pipectx/internal/logging"
)

var (
	// Global flags
	rootDir string
	verbose bool

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pipectx",
	Short: "Keep a host application's pipeline context in sync with its open scene",
	Long: `pipectx derives the project, entity and task a scene file belongs to and
maintains a session of commands for that context.

Run "pipectx init" once in the project root, then "pipectx serve" next to
the host application.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations["skipConfig"] == "true" {
			return nil
		}
		root, err := resolveRoot()
		if err != nil {
			return err
		}
		cfg, err = config.Load(root)
		if err != nil {
			return err
		}
		logger, err = logging.New(root, verbose || cfg.Project.DebugLogging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
			logger = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root holding .pipectx (defaults to cwd)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "write debug lines to the log")

	rootCmd.AddCommand(initCmd, engineCmd, serveCmd, watchCmd, resolveCmd, menuCmd, launchCmd, directoryCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveRoot() (string, error) {
	root := rootDir
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("determine working directory: %w", err)
		}
		root = cwd
	}
	return filepath.Abs(root)
}
