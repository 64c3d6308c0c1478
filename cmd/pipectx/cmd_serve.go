package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kingrea/pipectx/internal/eventbridge"
	"github.com/kingrea/pipectx/internal/session"
)

var (
	serveTask     int
	serveLogin    string
	serveNoPrompt bool
	serveWatchDir string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the integration and accept host events over HTTP",
	Long: `Starts the event bridge. The host posts scene_load, scene_save and
startup_complete events to /events; the current menu and session state are
served on /menu and /state, counters on /metrics.

When PIPECTX_ENGINE and PIPECTX_CONTEXT are set the session starts from that
context before the first event arrives.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveTask, "task", 0, "answer the task chooser with this task id")
	serveCmd.Flags().StringVar(&serveLogin, "as", "", "match assignees against this login instead of the OS account")
	serveCmd.Flags().BoolVar(&serveNoPrompt, "no-prompt", false, "treat every chooser request as cancelled")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch", "", "also turn scene writes under this directory into save events")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := eventbridge.SettingsFromConfig(cfg)
	if err != nil {
		return err
	}
	if !settings.Enabled {
		return fmt.Errorf("event bridge is disabled in %s", cfg.ConfigPath())
	}
	a, err := newApp(ctx, cfg, logger, appOptions{taskID: serveTask, login: serveLogin, noPrompt: serveNoPrompt})
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher := eventbridge.NewDispatcher(settings.QueueCapacity, logger)
	defer dispatcher.Close()
	router := eventbridge.NewRouter(dispatcher, eventbridge.RouterWithLogger(logger))
	a.listener.Register(router)

	if err := bootstrap(ctx, a); err != nil {
		logger.Errorw("bootstrap failed", "error", err)
	}

	if serveWatchDir != "" {
		stopWatch, err := startWatcher(ctx, serveWatchDir, router)
		if err != nil {
			return err
		}
		defer stopWatch()
	}

	srv := eventbridge.NewServer(settings,
		eventbridge.WithProcessor(router),
		eventbridge.WithLogger(logger),
		eventbridge.WithMenu(a.menu.Current),
		eventbridge.WithState(a.sessions.Snapshot),
		eventbridge.WithMetrics(a.metrics.Handler()),
		eventbridge.WithEventCounter(a.metrics.ObserveEvent))
	if err := srv.Start(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pipectx listening on %s\n", srv.BaseURL())
	logger.Infow("serving", "url", srv.BaseURL(), "engine", cfg.Project.Engine)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Printf("pipectx: shutdown: %v", err)
	}
	dispatcher.Flush()
	return nil
}

// bootstrap starts a session from a context handed down by a parent process.
func bootstrap(ctx context.Context, a *app) error {
	env, err := session.LoadEnvironment()
	if err != nil {
		return err
	}
	requested, err := session.Bootstrap(ctx, a.sessions, env, logger)
	if requested && err == nil {
		logger.Infow("session bootstrapped", "context", a.sessions.Context().String())
	}
	return err
}

func startWatcher(ctx context.Context, dir string, processor eventbridge.EventProcessor) (func(), error) {
	w, err := eventbridge.NewWatcher(dir, processor, eventbridge.WatcherWithLogger(logger))
	if err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(watchCtx)
	}()
	return func() {
		cancel()
		<-done
		_ = w.Close()
	}, nil
}
