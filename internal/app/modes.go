package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/domain"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/engine"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/feed"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/notify"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/oracle"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/server"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/server/handler"
	"github.com/Mulberry-markets/mulberry-sol-vs-eth/internal/server/ws"
)

// shutdownGrace bounds how long in-flight HTTP requests may drain.
const shutdownGrace = 10 * time.Second

// buildEngine constructs the settlement engine over the wired dependencies
// and bootstraps the singleton market state from the config seed values.
func (a *App) buildEngine(ctx context.Context, deps *Dependencies) (*engine.Engine, error) {
	gateway := oracle.NewGateway(deps.PriceCache, []string{
		a.cfg.Oracle.SolFeedID,
		a.cfg.Oracle.EthFeedID,
	}).WithStaleness(a.cfg.Oracle.Staleness.Duration)

	eng := engine.New(deps.UOW, gateway, engine.Config{
		SolFeedID: a.cfg.Oracle.SolFeedID,
		EthFeedID: a.cfg.Oracle.EthFeedID,
	}, a.logger).
		WithSignalBus(deps.SignalBus).
		WithRateLimiter(deps.RateLimiter).
		WithLockManager(deps.LockManager)
	if deps.Archiver != nil {
		eng = eng.WithArchiver(deps.Archiver)
	}

	initial := domain.MarketState{
		Params:       a.cfg.Market.Params(),
		Owner:        a.cfg.Market.Owner,
		HouseAccount: a.cfg.Market.HouseAccount,
	}
	if err := eng.Bootstrap(ctx, initial); err != nil {
		return nil, fmt.Errorf("bootstrap market state: %w", err)
	}
	return eng, nil
}

// startPriceFeed adds the Hermes websocket feed goroutine; it streams SOL and
// ETH observations into the shared price cache.
func (a *App) startPriceFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	hermes := feed.NewHermesFeed(
		a.cfg.Oracle.HermesWsURL,
		[]string{a.cfg.Oracle.SolFeedID, a.cfg.Oracle.EthFeedID},
		deps.PriceCache,
		a.logger,
	)
	g.Go(func() error {
		return hermes.Run(ctx)
	})
}

// startRoundWatcher adds the notification watcher goroutine when at least one
// notification channel is configured.
func (a *App) startRoundWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Notifier == nil {
		return
	}
	watcher := notify.NewRoundWatcher(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})
}

// startHTTPServer adds the HTTP API and the websocket hub to the given
// errgroup. The server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine) {
	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Rounds: handler.NewRoundHandler(eng, deps.RoundCache, a.logger),
		State:  handler.NewStateHandler(eng),
	}
	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		RequestsPerSecond: a.cfg.Server.RequestsPerSecond,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// ServeMode runs the price feed, the HTTP API, and the websocket hub. Phase
// transitions are left to a crank replica.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return fmt.Errorf("serve mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startPriceFeed(ctx, g, deps)

	if !a.cfg.Server.Enabled {
		a.logger.WarnContext(ctx, "server.enabled is false, but serve mode runs the server by design")
	}
	a.startHTTPServer(ctx, g, deps, eng)

	return g.Wait()
}

// CrankMode runs the price feed and the phase-transition crank without the
// HTTP surface. Lifecycle notifications run here so they fire exactly once
// across a serve/crank split.
func (a *App) CrankMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting crank mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return fmt.Errorf("crank mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startPriceFeed(ctx, g, deps)
	a.startRoundWatcher(ctx, g, deps)

	if !a.cfg.Crank.Enabled {
		a.logger.WarnContext(ctx, "crank.enabled is false, but crank mode runs the crank by design")
	}
	crank := engine.NewCrank(eng, a.cfg.Market.CrankAdmin, a.cfg.Crank.Interval.Duration, a.logger)
	g.Go(func() error {
		return crank.Run(ctx)
	})

	return g.Wait()
}

// FullMode runs everything in one process: price feed, crank, notifications,
// HTTP API, and websocket hub.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	eng, err := a.buildEngine(ctx, deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	a.startPriceFeed(ctx, g, deps)
	a.startRoundWatcher(ctx, g, deps)

	if a.cfg.Crank.Enabled {
		crank := engine.NewCrank(eng, a.cfg.Market.CrankAdmin, a.cfg.Crank.Interval.Duration, a.logger)
		g.Go(func() error {
			return crank.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, eng)
	}

	return g.Wait()
}
