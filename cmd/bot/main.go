package main

import (
	"context"
	"log"

	"go.uber.org/fx"

	"linear_bot/internal/modules/config"
	"linear_bot/internal/modules/feed"
	"linear_bot/internal/modules/health"
	"linear_bot/internal/modules/postgres"
	"linear_bot/internal/modules/signal"
	"linear_bot/internal/modules/strategy"
	"linear_bot/internal/runner"
	"linear_bot/pkg/logger"
)

func main() {
	logger.SetServiceName("linear_bot")
	if err := logger.Init("info"); err != nil {
		log.Fatal(err)
	}

	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		health.Module(),
		feed.Module(),
		signal.Module(),
		strategy.Module(),
		runner.Module(),
	)
	app.Run()
}
