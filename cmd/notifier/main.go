package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"portal_server/server/portal/app"
)

func main() {
	cfg := app.LoadConfig()
	n, err := app.NewNotifier(cfg)
	if err != nil {
		log.Fatalf("initialize notifier: %v", err)
	}
	defer n.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("start notifier worker")
	if err := n.Run(ctx); err != nil {
		log.Printf("run notifier: %v", err)
	}
}
