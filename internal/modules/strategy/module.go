package strategy

import (
	"linear_bot/internal/exchange"
	"linear_bot/internal/modules/config"
	feedsvc "linear_bot/internal/modules/feed/service"
	"linear_bot/internal/modules/strategy/service"
	"linear_bot/internal/notify"
	"linear_bot/internal/position"
	"linear_bot/internal/storage"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("strategy",
		fx.Provide(
			func(
				cfg *config.Config,
				mgr *position.Manager,
				exch *exchange.Client,
				book *feedsvc.Book,
				store *storage.Store,
				n notify.Notifier,
			) *service.Engine {
				return service.NewEngine(cfg, mgr, exch, book, store, n)
			},
		),
	)
}
