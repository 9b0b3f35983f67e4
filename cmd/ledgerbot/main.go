package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ledgerbot/app"
	"ledgerbot/core/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}

	cfg, err := app.LoadConfig(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.New(cfg)
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := a.Run(ctx)
	if err := logger.Shutdown(); err != nil {
		log.Printf("logger shutdown: %v", err)
	}
	if runErr != nil {
		log.Fatalf("run: %v", runErr)
	}
}
