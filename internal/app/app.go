// Package app assembles the daemon: it builds the control loop, operator
// panel, page actuator and HTTP server from configuration and connects them
// with message channels.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ayusman/camscroll/internal/actuator"
	"github.com/ayusman/camscroll/internal/capture"
	"github.com/ayusman/camscroll/internal/config"
	"github.com/ayusman/camscroll/internal/control"
	"github.com/ayusman/camscroll/internal/embedding"
	"github.com/ayusman/camscroll/internal/msgbus"
	"github.com/ayusman/camscroll/internal/panel"
	"github.com/ayusman/camscroll/internal/plugin"
	"github.com/ayusman/camscroll/internal/protocol"
	"github.com/ayusman/camscroll/internal/server"
	"github.com/ayusman/camscroll/internal/store"
)

// Config holds the application's dependencies. Source, Embedder and Page
// are built from Settings when nil.
type Config struct {
	Settings *config.Config
	Store    *store.Store
	Source   capture.Source
	Embedder embedding.Embedder
	Page     actuator.Page
	Logger   *zap.Logger
}

// App is the assembled daemon.
type App struct {
	logger     *zap.Logger
	commands   *msgbus.Channel[protocol.Command]
	actuations *msgbus.Channel[protocol.Actuation]
	embedder   embedding.Embedder
	source     capture.Source

	loop     *control.Loop
	panel    *panel.Panel
	actuator *actuator.Actuator
	pages    *server.PageHub
	server   *server.Server

	closeOnce sync.Once
}

// New builds the application and restores persisted state. ctx bounds
// background work started on behalf of API requests, such as training.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.Settings == nil {
		cfg.Settings = config.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	settings := cfg.Settings
	log := cfg.Logger

	a := &App{
		logger:     log,
		commands:   msgbus.New[protocol.Command](msgbus.DefaultCapacity),
		actuations: msgbus.New[protocol.Actuation](msgbus.DefaultCapacity),
		source:     cfg.Source,
		embedder:   cfg.Embedder,
	}

	if a.source == nil {
		camera := capture.NewCamera(settings.Camera.Device)
		camera.SetFPS(settings.Camera.FPS)
		a.source = camera
	}

	if a.embedder == nil {
		e, err := NewEmbedder(settings, log)
		if err != nil {
			return nil, err
		}
		a.embedder = e
	}

	a.loop = control.New(control.Config{
		Source:     a.source,
		Classifier: control.NewModel(a.embedder, settings.Classifier.K),
		Store:      cfg.Store,
		Downstream: a.actuations,
		Logger:     log,
		Tick:       settings.LoopPeriod(),
	})
	if err := a.loop.Restore(ctx); err != nil {
		a.embedder.Close()
		return nil, err
	}

	a.panel = panel.New(panel.Config{
		Commands:     a.commands,
		Store:        cfg.Store,
		Logger:       log,
		PrepareDelay: settings.PrepareDelay(),
		RecordDelay:  settings.RecordDelay(),
	})

	a.pages = server.NewPageHub(log)
	page := cfg.Page
	if page == nil {
		p, err := NewPage(settings, a.pages, log)
		if err != nil {
			a.embedder.Close()
			return nil, err
		}
		page = p
	}
	a.actuator = actuator.New(actuator.Config{
		Page:   page,
		StepPx: settings.Actuator.StepPx,
		Period: settings.ScrollPeriod(),
		Logger: log,
	})

	a.server = server.New(server.Config{
		StaticDir: settings.HTTP.StaticDir,
		Store:     cfg.Store,
		Camera:    a.source,
		Commands:  a.commands,
		Loop:      a.loop,
		Panel:     a.panel,
		Pages:     a.pages,
		Logger:    log,
		Context:   ctx,
	})

	return a, nil
}

// Run drives the control loop and the actuator until ctx is done. Pending
// training scripts are waited for before Run returns.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	errs := make([]error, 2)

	wg.Add(2)
	go func() {
		defer wg.Done()
		errs[0] = a.loop.Run(ctx, a.commands)
	}()
	go func() {
		defer wg.Done()
		errs[1] = a.actuator.Run(ctx, a.actuations)
	}()

	wg.Wait()
	a.panel.Wait()

	for _, err := range errs {
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

// ApplyConfig applies the settings that can change while running.
func (a *App) ApplyConfig(next *config.Config) {
	a.actuator.SetStep(next.Actuator.StepPx)
}

// Close releases the embedder and closes the message channels.
func (a *App) Close() error {
	var err error
	a.closeOnce.Do(func() {
		a.commands.Close()
		a.actuations.Close()
		err = a.embedder.Close()
	})
	return err
}

// Loop returns the control loop.
func (a *App) Loop() *control.Loop { return a.loop }

// Panel returns the operator panel.
func (a *App) Panel() *panel.Panel { return a.panel }

// Actuator returns the page actuator.
func (a *App) Actuator() *actuator.Actuator { return a.actuator }

// Pages returns the browser page hub.
func (a *App) Pages() *server.PageHub { return a.pages }

// Server returns the HTTP server.
func (a *App) Server() *server.Server { return a.server }

// Embedder returns the frame embedder in use.
func (a *App) Embedder() embedding.Embedder { return a.embedder }

// NewEmbedder builds the DNN embedder when a model is configured and the
// pixel embedder otherwise, wrapped in an LRU cache when enabled.
func NewEmbedder(settings *config.Config, log *zap.Logger) (embedding.Embedder, error) {
	var inner embedding.Embedder
	if settings.Classifier.ModelPath != "" {
		dnn, err := embedding.NewDNN(embedding.DefaultDNNConfig(settings.Classifier.ModelPath))
		if err != nil {
			return nil, err
		}
		log.Info("using DNN embedder", zap.String("model", settings.Classifier.ModelPath))
		inner = dnn
	} else {
		log.Info("no model configured, using pixel embedder")
		inner = embedding.NewPixels()
	}

	if settings.Classifier.CacheSize <= 0 {
		return inner, nil
	}
	cached, err := embedding.NewCached(inner, settings.Classifier.CacheSize)
	if err != nil {
		inner.Close()
		return nil, err
	}
	return cached, nil
}

// NewPage returns the page backend named by the configuration: the
// WebSocket hub, or a scroll plugin.
func NewPage(settings *config.Config, hub *server.PageHub, log *zap.Logger) (actuator.Page, error) {
	if settings.Actuator.Backend != config.BackendPlugin {
		return hub, nil
	}

	mgr := plugin.NewManager(settings.Actuator.PluginDir, log)
	if err := mgr.Discover(); err != nil {
		return nil, fmt.Errorf("discover plugins: %w", err)
	}
	page, err := plugin.NewPage(mgr, settings.Actuator.Plugin, plugin.NewExecutor(plugin.DefaultTimeout))
	if err != nil {
		return nil, err
	}
	log.Info("using plugin page", zap.String("plugin", settings.Actuator.Plugin))
	return page, nil
}
