// Package app wires the chat core together from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/do/v2"

	"github.com/nfrund/gobychat/internal/auth"
	"github.com/nfrund/gobychat/internal/chat"
	"github.com/nfrund/gobychat/internal/config"
	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/handlers"
	"github.com/nfrund/gobychat/internal/metrics"
	"github.com/nfrund/gobychat/internal/presence"
	"github.com/nfrund/gobychat/internal/pubsub"
	"github.com/nfrund/gobychat/internal/websocket"
)

// App holds the long-lived services of one process.
type App struct {
	Config      *config.Config
	Prometheus  *prometheus.Registry
	Metrics     *metrics.Metrics
	Users       domain.UserRepository
	Messages    domain.MessageRepository
	Accounts    *auth.Service
	Registry    *websocket.Registry
	Directory   *chat.Directory
	Dispatcher  *chat.Dispatcher
	Broadcaster *presence.Broadcaster
	// Mirror is nil unless REDIS_ADDR is set.
	Mirror *presence.RedisMirror
	Bus    *pubsub.WatermillBridge
	Bridge *websocket.Bridge
	Health map[string]handlers.HealthCheck

	lifecycle *lifecycle
	runWG     sync.WaitGroup
}

// lifecycle collects shutdown hooks as providers open resources.
type lifecycle struct {
	mu      sync.Mutex
	closers []closer
	health  map[string]handlers.HealthCheck
}

type closer struct {
	name string
	fn   func(context.Context) error
}

func (l *lifecycle) onClose(name string, fn func(context.Context) error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closers = append(l.closers, closer{name: name, fn: fn})
}

func (l *lifecycle) addHealth(name string, check handlers.HealthCheck) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.health[name] = check
}

// Build opens every backing service the configuration asks for and wires the
// chat core on top. On error, whatever was already opened is closed again.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	lc := &lifecycle{health: make(map[string]handlers.HealthCheck)}

	injector := do.New()
	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, lc)
	do.Provide(injector, providePrometheus)
	do.Provide(injector, provideMetrics)
	do.Provide(injector, func(i do.Injector) (*stores, error) { return provideStores(ctx, i) })
	do.Provide(injector, func(i do.Injector) (*pubsub.WatermillBridge, error) { return provideBus(ctx, i) })
	do.Provide(injector, provideTokens)
	do.Provide(injector, provideAccounts)
	do.Provide(injector, provideRegistry)
	do.Provide(injector, provideDirectory)
	do.Provide(injector, provideDispatcher)
	do.Provide(injector, provideBroadcaster)
	do.Provide(injector, func(i do.Injector) (*mirror, error) { return provideMirror(ctx, i) })
	do.Provide(injector, provideBridge)

	a, err := assemble(injector, lc)
	if err != nil {
		closeAll(context.WithoutCancel(ctx), lc)
		return nil, err
	}
	return a, nil
}

func assemble(i do.Injector, lc *lifecycle) (*App, error) {
	cfg := do.MustInvoke[*config.Config](i)

	st, err := do.Invoke[*stores](i)
	if err != nil {
		return nil, err
	}
	bus, err := do.Invoke[*pubsub.WatermillBridge](i)
	if err != nil {
		return nil, err
	}
	m, err := do.Invoke[*mirror](i)
	if err != nil {
		return nil, err
	}
	bridge, err := do.Invoke[*websocket.Bridge](i)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:      cfg,
		Prometheus:  do.MustInvoke[*prometheus.Registry](i),
		Metrics:     do.MustInvoke[*metrics.Metrics](i),
		Users:       st.users,
		Messages:    st.messages,
		Accounts:    do.MustInvoke[*auth.Service](i),
		Registry:    do.MustInvoke[*websocket.Registry](i),
		Directory:   do.MustInvoke[*chat.Directory](i),
		Dispatcher:  do.MustInvoke[*chat.Dispatcher](i),
		Broadcaster: do.MustInvoke[*presence.Broadcaster](i),
		Mirror:      m.RedisMirror,
		Bus:         bus,
		Bridge:      bridge,
		Health:      lc.health,
		lifecycle:   lc,
	}, nil
}

// Run starts the background workers. They stop when ctx is canceled; Close
// waits for them.
func (a *App) Run(ctx context.Context) error {
	a.runWG.Add(1)
	go func() {
		defer a.runWG.Done()
		a.Broadcaster.Run(ctx)
	}()

	if a.Mirror != nil {
		if err := a.Mirror.Start(ctx, a.Bus); err != nil {
			return err
		}
	}
	return nil
}

// Close drops live connections, then stops the workers and closes backing
// services in reverse order of opening.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if err := a.Bridge.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close connections: %w", err))
	}

	done := make(chan struct{})
	go func() {
		a.runWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for workers: %w", ctx.Err()))
	}

	if err := closeAll(ctx, a.lifecycle); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func closeAll(ctx context.Context, lc *lifecycle) error {
	lc.mu.Lock()
	closers := lc.closers
	lc.closers = nil
	lc.mu.Unlock()

	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		c := closers[i]
		if err := c.fn(ctx); err != nil {
			slog.Error("Failed to close resource", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			continue
		}
		slog.Debug("Closed resource", "resource", c.name)
	}
	return errors.Join(errs...)
}
