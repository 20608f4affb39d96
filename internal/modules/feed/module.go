package feed

import (
	"context"

	"linear_bot/internal/exchange"
	"linear_bot/internal/modules/config"
	"linear_bot/internal/modules/feed/service"
	healthsvc "linear_bot/internal/modules/health/service"
	signalsvc "linear_bot/internal/modules/signal/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("feed",
		fx.Provide(
			service.NewBook,
			func(
				cfg *config.Config,
				book *service.Book,
				engine *signalsvc.Engine,
				exch *exchange.Client,
				state *healthsvc.State,
			) *service.Client {
				return service.NewClient(cfg, book, engine, exch, state)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, client *service.Client, ctx context.Context) {
			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go client.Run(ctx)
					return nil
				},
			})
		}),
	)
}
