package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-bakery/cmd/bakeryctl/cli"
	"github.com/odyssey-erp/odyssey-bakery/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfg, err := app.LoadConfig()
	if err != nil {
		stop()
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	jobsCLI := cli.NewJobsCLI(asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	code := cli.Run(ctx, jobsCLI, os.Args[1:], os.Stdout, os.Stderr)
	if err := jobsCLI.Close(); err != nil {
		slog.Default().Warn("close jobs cli", slog.Any("error", err))
	}
	stop()
	os.Exit(code)
}
