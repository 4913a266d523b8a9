package app

import (
	"context"
	"time"

	commonlog "portal_server/server/common/log"
	"portal_server/server/notifier"
)

// Notifier runs the delivery worker as its own process.
type Notifier struct {
	worker *notifier.Worker
	infra  *infra
}

func NewNotifier(cfg Config) (*Notifier, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in, err := openInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.UseMQ {
		commonlog.Warnf("event=notifier action=configure status=degraded detail=sweep_only_without_mq")
	}
	return &Notifier{worker: in.newWorker(cfg), infra: in}, nil
}

// Run blocks until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	return n.worker.Run(ctx, n.infra.queue)
}

func (n *Notifier) Close() {
	n.infra.close()
}
