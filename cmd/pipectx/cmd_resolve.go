package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kingrea/pipectx/internal/pipeline"
	"github.com/kingrea/pipectx/internal/resolver"
)

var (
	resolveLogin string
	resolveJSON  bool
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <scene-path>",
	Short: "Show the context a scene path resolves to",
	Long: `Runs the resolver against <scene-path> without starting a session or
prompting. Paths that need a human choice are reported as needs-choice.`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveLogin, "as", "", "match assignees against this login instead of the OS account")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", false, "print the outcome as JSON")
}

type resolveOutput struct {
	Kind    resolver.Kind    `json:"kind"`
	Title   string           `json:"title"`
	Context pipeline.Context `json:"context"`
	Reason  string           `json:"reason,omitempty"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context(), cfg, logger, appOptions{login: resolveLogin, noPrompt: true})
	if err != nil {
		return err
	}
	defer a.Close()

	out, err := a.resolver.Derive(cmd.Context(), args[0], pipeline.Context{})
	if err != nil {
		return err
	}
	a.metrics.ObserveResolution(string(out.Kind))
	result := resolveOutput{Kind: out.Kind, Title: out.Context.String(), Context: out.Context}
	if out.Reason != nil {
		result.Reason = out.Reason.Error()
	}
	w := cmd.OutOrStdout()
	if resolveJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	fmt.Fprintf(w, "%s: %s\n", result.Kind, result.Title)
	if result.Reason != "" {
		fmt.Fprintf(w, "  reason: %s\n", result.Reason)
	}
	if out.Kind == resolver.KindResolved {
		for _, location := range a.resolver.Locations(out.Context, cfg.FileRoot()) {
			fmt.Fprintf(w, "  location: %s\n", location)
		}
	}
	return nil
}
