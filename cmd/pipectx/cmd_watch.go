package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kingrea/pipectx/internal/eventbridge"
	"github.com/kingrea/pipectx/internal/menu"
	"github.com/kingrea/pipectx/internal/session"
)

var (
	watchTask  int
	watchLogin string
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Follow scene saves under a directory without the HTTP bridge",
	Long: `Watches <dir> recursively and treats every write to a scene file as a
scene save. The menu is printed each time the session changes.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().IntVar(&watchTask, "task", 0, "answer the task chooser with this task id")
	watchCmd.Flags().StringVar(&watchLogin, "as", "", "match assignees against this login instead of the OS account")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, appOptions{taskID: watchTask, login: watchLogin})
	if err != nil {
		return err
	}
	defer a.Close()
	out := cmd.OutOrStdout()
	a.sessions.Subscribe(session.ObserverFunc(func(snap session.Snapshot) {
		if snap.State == session.StateUninitialized {
			return
		}
		fmt.Fprintln(out, menu.Render(a.menuFor(snap)))
	}))

	dispatcher := eventbridge.NewDispatcher(eventbridge.DefaultQueueCapacity, logger)
	defer dispatcher.Close()
	router := eventbridge.NewRouter(dispatcher, eventbridge.RouterWithLogger(logger))
	a.listener.Register(router)
	a.listener.HandleStartupComplete()

	stopWatch, err := startWatcher(ctx, args[0], router)
	if err != nil {
		return err
	}
	defer stopWatch()
	fmt.Fprintf(out, "watching %s\n", args[0])
	<-ctx.Done()
	return nil
}
