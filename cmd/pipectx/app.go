// cmd/pipectx/app.go
//
// Wires the packages into one running integration: directory, resolver,
// chooser, session manager, menu projection and scene listener.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/kingrea/pipectx/internal/chooser"
	"github.com/kingrea/pipectx/internal/config"
	"github.com/kingrea/pipectx/internal/directory"
	"github.com/kingrea/pipectx/internal/listener"
	"github.com/kingrea/pipectx/internal/logging"
	"github.com/kingrea/pipectx/internal/menu"
	"github.com/kingrea/pipectx/internal/metrics"
	"github.com/kingrea/pipectx/internal/pipeline"
	"github.com/kingrea/pipectx/internal/resolver"
	"github.com/kingrea/pipectx/internal/session"
)

type appOptions struct {
	// taskID answers the chooser without prompting when positive.
	taskID int
	// login overrides the OS account used to match assignees.
	login string
	// noPrompt makes every chooser request behave like a cancel.
	noPrompt bool
}

type app struct {
	cfg        *config.Config
	logger     *logging.Logger
	store      *directory.Store
	dir        directory.Client
	resolver   *resolver.Resolver
	sessions   *session.Manager
	favourites []menu.Favourite
	menu       *menu.Projection
	listener   *listener.Listener
	metrics    *metrics.Metrics
}

func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts appOptions) (*app, error) {
	store, err := directory.Open(cfg.DirectoryPath())
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, store: store, metrics: metrics.New()}
	a.dir = directory.NewRetrying(store, directory.RetryPolicy{
		Timeout:     cfg.Project.Directory.Timeout,
		MaxAttempts: cfg.Project.Directory.MaxAttempts,
	}, logger)

	identity := resolver.CurrentLogin
	if opts.login != "" {
		identity = resolver.StaticLogin(opts.login)
	}
	disambiguator, err := resolver.NewDisambiguator(a.dir, cfg.Project.StepMap, identity)
	if err != nil {
		a.Close()
		return nil, err
	}
	templates := make([]string, 0, len(cfg.Project.Templates))
	for _, tpl := range cfg.Project.Templates {
		templates = append(templates, tpl.Pattern)
	}
	a.resolver, err = resolver.New(resolver.Settings{Templates: templates, Projects: cfg.Project.Projects}, disambiguator)
	if err != nil {
		a.Close()
		return nil, err
	}

	builder, err := session.NewConfigBuilder(cfg, session.WithLocator(func(c pipeline.Context) []string {
		return a.resolver.Locations(c, cfg.FileRoot())
	}))
	if err != nil {
		a.Close()
		return nil, err
	}
	for _, fav := range cfg.Project.Menu.Favourites {
		a.favourites = append(a.favourites, menu.Favourite{App: fav.App, Name: fav.Name})
	}
	a.menu = menu.NewProjection(cfg.MenuName(),
		menu.WithFavourites(a.favourites),
		menu.WithPublisher(func(m menu.Menu) {
			logger.Debugf("menu: published %q with %d items", m.Title, len(m.Items))
		}))
	a.sessions, err = session.NewManager(builder,
		session.WithLogger(logger),
		session.WithObserver(a.menu),
		session.WithRecorder(a.metrics))
	if err != nil {
		a.Close()
		return nil, err
	}

	listenerOpts := []listener.Option{
		listener.WithLogger(logger),
		listener.WithContext(ctx),
		listener.WithReadiness(a.menu),
		listener.WithRecorder(a.metrics),
	}
	if steps := cfg.Project.Chooser.Steps; len(steps) > 0 {
		listenerOpts = append(listenerOpts, listener.WithSteps(steps))
	}
	if cfg.ExitOnCancel() {
		listenerOpts = append(listenerOpts, listener.WithExitOnCancel(func(code int) {
			logger.Printf("pipectx: task selection cancelled, exiting")
			_ = logger.Close()
			os.Exit(code)
		}))
	}
	a.listener, err = listener.New(a.resolver, a.chooser(opts), a.sessions, listenerOpts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) chooser(opts appOptions) chooser.Chooser {
	switch {
	case opts.taskID > 0:
		return chooser.Preselected{Directory: a.dir, TaskID: opts.taskID}
	case opts.noPrompt:
		return chooser.Func(func(context.Context, chooser.Request) (pipeline.TaskRef, error) {
			return pipeline.TaskRef{}, pipeline.ErrUserCancelled
		})
	default:
		return chooser.NewTUI(a.dir)
	}
}

// menuFor builds the menu for snap with the configured title and favourites,
// without waiting for host readiness.
func (a *app) menuFor(snap session.Snapshot) menu.Menu {
	return menu.Build(a.cfg.MenuName(), a.favourites, snap)
}

// openScene runs the same path a host scene load takes and reports the
// resulting session state.
func (a *app) openScene(ctx context.Context, path string) (session.Snapshot, error) {
	a.listener.HandleScene(ctx, path)
	snap := a.sessions.Snapshot()
	if snap.State != session.StateActive {
		if snap.Reason != nil {
			return snap, fmt.Errorf("pipectx: %s: %w", snap.State, snap.Reason)
		}
		return snap, fmt.Errorf("pipectx: session is %s", snap.State)
	}
	return snap, nil
}

// Close tears down the session and releases the directory.
func (a *app) Close() {
	if a.sessions != nil {
		a.sessions.Shutdown()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Printf("pipectx: close directory: %v", err)
		}
	}
}
