package notifier

import (
	"context"
	"errors"
	"strings"
	"time"

	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

// Publisher receives a change after a delivery attempt is recorded.
type Publisher interface {
	Publish(ctx context.Context, change domain.Change)
}

// Claimer keeps two workers from sending the same row at once. cache.KV
// satisfies it.
type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Config struct {
	MaxAttempts   int
	RetryInterval time.Duration
	// StaleAfter is how long a pending row may wait before the sweep sends
	// it without a queue message.
	StaleAfter time.Duration
	BatchSize  int
}

type Worker struct {
	store   repository.Store
	sender  Sender
	cfg     Config
	feed    Publisher
	claimer Claimer
	now     func() time.Time
}

func NewWorker(store repository.Store, sender Sender, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.RetryInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Worker{
		store:  store,
		sender: sender,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (w *Worker) WithFeed(feed Publisher) *Worker {
	w.feed = feed
	return w
}

func (w *Worker) WithClaimer(claimer Claimer) *Worker {
	w.claimer = claimer
	return w
}

// Deliver sends one notification and records the outcome. Rows that were
// deleted, already sent or out of attempts are skipped. The send happens
// between two short transactions so a slow bot API never holds a lock.
func (w *Worker) Deliver(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	if w.claimer != nil {
		key := "notify:" + id
		ok, err := w.claimer.Claim(ctx, key, time.Minute)
		if err != nil {
			commonlog.Warnf("event=notification action=claim status=failed notification_id=%s error=%v", id, err)
		} else if !ok {
			return nil
		} else {
			defer func() { _ = w.claimer.Release(context.WithoutCancel(ctx), key) }()
		}
	}

	var n domain.Notification
	err := w.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		n, err = tx.GetNotification(ctx, id)
		return err
	})
	if errors.Is(err, domain.ErrNotFound) {
		commonlog.Debugf("event=notification action=deliver status=skipped reason=deleted notification_id=%s", id)
		return nil
	}
	if err != nil {
		return err
	}
	if n.Status == domain.NotificationSent || n.Attempts >= w.cfg.MaxAttempts {
		return nil
	}

	startedAt := time.Now()
	sendErr := w.sender.Send(ctx, n.Message)

	var recorded domain.Notification
	err = w.store.InTx(ctx, func(tx repository.Tx) error {
		cur, err := tx.GetNotification(ctx, id)
		if err != nil {
			return err
		}
		now := w.now()
		cur.Attempts++
		cur.UpdatedAt = now
		if sendErr == nil {
			cur.Status = domain.NotificationSent
			cur.SentAt = &now
			cur.LastError = nil
		} else {
			msg := sendErr.Error()
			cur.Status = domain.NotificationFailed
			cur.LastError = &msg
		}
		recorded = cur
		return tx.UpdateNotification(ctx, cur)
	})
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	latency := time.Since(startedAt).Milliseconds()
	if sendErr != nil {
		commonlog.Warnf("event=notification action=deliver status=failed notification_id=%s attempts=%d latency_ms=%d error=%v", id, recorded.Attempts, latency, sendErr)
	} else {
		commonlog.Infof("event=notification action=deliver status=ok notification_id=%s attempts=%d latency_ms=%d", id, recorded.Attempts, latency)
	}
	if w.feed != nil {
		projectID := ""
		if recorded.ProjectID != nil {
			projectID = *recorded.ProjectID
		}
		w.feed.Publish(ctx, domain.Change{Kind: domain.ChangeNotifications, ProjectID: projectID, EntityID: id, At: w.now()})
	}
	return nil
}

// Sweep delivers failed rows that still have attempts left and pending rows
// whose queue message was lost. It returns how many rows it tried.
func (w *Worker) Sweep(ctx context.Context) (int, error) {
	var due []domain.Notification
	err := w.store.InTx(ctx, func(tx repository.Tx) error {
		failed, err := tx.ListNotifications(ctx, repository.NotificationFilter{Status: domain.NotificationFailed, MaxAttempts: w.cfg.MaxAttempts, Limit: w.cfg.BatchSize})
		if err != nil {
			return err
		}
		pending, err := tx.ListNotifications(ctx, repository.NotificationFilter{Status: domain.NotificationPending, Limit: w.cfg.BatchSize})
		if err != nil {
			return err
		}
		cutoff := w.now().Add(-w.cfg.StaleAfter)
		due = append(due, failed...)
		for _, n := range pending {
			if n.UpdatedAt.Before(cutoff) {
				due = append(due, n)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	for _, n := range due {
		if err := w.Deliver(ctx, n.ID); err != nil {
			commonlog.Errorf("event=notification action=sweep status=failed notification_id=%s error=%v", n.ID, err)
		}
	}
	if len(due) > 0 {
		commonlog.Infof("event=notification action=sweep status=ok tried=%d", len(due))
	}
	return len(due), nil
}

// Run consumes the queue and sweeps on an interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, queue Queue) error {
	go func() {
		ticker := time.NewTicker(w.cfg.RetryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := w.Sweep(ctx); err != nil && ctx.Err() == nil {
					commonlog.Errorf("event=notification action=sweep status=failed error=%v", err)
				}
			}
		}
	}()

	commonlog.Infof("event=notification_worker action=start status=ok max_attempts=%d retry_interval=%s", w.cfg.MaxAttempts, w.cfg.RetryInterval)
	err := queue.Consume(ctx, func(ctx context.Context, body []byte) error {
		return w.Deliver(ctx, string(body))
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
