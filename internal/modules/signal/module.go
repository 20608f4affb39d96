package signal

import (
	"linear_bot/internal/modules/config"
	feedsvc "linear_bot/internal/modules/feed/service"
	"linear_bot/internal/modules/signal/service"

	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("signal",
		fx.Provide(
			func(cfg *config.Config, book *feedsvc.Book) *service.Engine {
				return service.NewEngine(cfg, book)
			},
		),
	)
}
