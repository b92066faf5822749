package app

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OneAIgency/carbondesk/internal/server"
	"github.com/OneAIgency/carbondesk/internal/server/handler"
	"github.com/OneAIgency/carbondesk/internal/server/ws"
)

// SyncMode runs the market-data and price-feed loops headless: state is
// mirrored into the cache and fanned out on the bus, but no HTTP surface is
// exposed.
func (a *App) SyncMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting sync mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSyncLoops(ctx, g, deps)

	return g.Wait()
}

// ServerMode runs the sync loops together with the browser-facing HTTP and
// WebSocket server.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSyncLoops(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// FullMode runs everything: sync loops, the HTTP server, and the compliance
// archiver.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startSyncLoops(ctx, g, deps)
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx)
		})
	} else {
		a.logger.WarnContext(ctx, "full mode without s3.enabled, archiver disabled")
	}

	return g.Wait()
}

// startSyncLoops adds the market-data and price-feed goroutines to the
// group.
func (a *App) startSyncLoops(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.MarketSync.Run(ctx)
	})
	g.Go(func() error {
		return deps.PriceFeed.Run(ctx)
	})
}

// startHTTPServer adds the HTTP server and, when the signal bus is wired,
// the WebSocket hub to the group. The server is shut down gracefully when
// the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			return hub.Run(ctx)
		})
	} else {
		a.logger.InfoContext(ctx, "redis disabled, event streaming unavailable")
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(a.logger),
			Market: handler.NewMarketHandler(deps.MarketSync, deps.TradeStore, a.logger),
			Orders: handler.NewOrderHandler(deps.Coordinator, deps.Previews, deps.MarketSync, deps.ExecutionStore, a.logger),
		},
		hub,
		a.logger,
	)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
