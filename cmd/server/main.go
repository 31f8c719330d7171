package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BioHazard786/warpcode/internal/config"
	"github.com/BioHazard786/warpcode/internal/logging"
	"github.com/BioHazard786/warpcode/internal/server"
)

func main() {
	log := logging.Init(zapcore.InfoLevel)
	defer log.Sync()

	cfg, err := config.LoadServer(config.ServerOptions{})
	if err != nil {
		log.Fatal("Invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx, cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
}
