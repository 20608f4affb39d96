package runner

import (
	"context"

	"github.com/opentracing/opentracing-go"
	"go.uber.org/fx"

	"linear_bot/internal/exchange"
	"linear_bot/internal/modules/config"
	healthsvc "linear_bot/internal/modules/health/service"
	stratsvc "linear_bot/internal/modules/strategy/service"
	"linear_bot/internal/notify"
	"linear_bot/internal/position"
	"linear_bot/internal/storage"
	"linear_bot/pkg/db"
	"linear_bot/pkg/logger"
	"linear_bot/pkg/tracing"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			exchange.NewClient,
			func(exch *exchange.Client, cfg *config.Config) *position.Manager {
				return position.NewManager(exch, cfg)
			},
			func(txm *db.PgTxManager) *storage.Store {
				return storage.NewStore(txm)
			},
			notify.New,
			NewRunner,
		),
		fx.Invoke(func(
			lc fx.Lifecycle,
			ctx context.Context,
			cfg *config.Config,
			txm *db.PgTxManager,
			store *storage.Store,
			strat *stratsvc.Engine,
			state *healthsvc.State,
			r *Runner,
		) error {
			// уровень из конфига становится известен только сейчас
			if err := logger.Init(cfg.LogLevel); err != nil {
				return err
			}

			tracing.SetServiceName("linear_bot")
			tracer, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				// трейсинг не критичен для торговли
				logger.Error("[Runner] tracer init: %v", err)
			} else {
				opentracing.SetGlobalTracer(tracer)
			}

			lc.Append(fx.Hook{
				OnStart: func(startCtx context.Context) error {
					if err := store.EnsureSchema(startCtx); err != nil {
						return err
					}

					// без балансов торговать нельзя, это класс ошибок «стоп всему»
					r.Bootstrap(startCtx)

					r.Start(ctx)
					return nil
				},
				OnStop: func(_ context.Context) error {
					strat.Wait()
					if closeTracer != nil {
						closeTracer()
					}
					txm.Close()
					return nil
				},
			})
			return nil
		}),
	)
}
