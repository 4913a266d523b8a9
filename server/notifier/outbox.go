package notifier

import (
	"context"
	"time"

	commonlog "portal_server/server/common/log"
	"portal_server/server/portal/domain"
	"portal_server/server/portal/repository"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, ids ...string)
}

// Outbox is the read and retry surface over notification rows.
type Outbox struct {
	store    repository.Store
	enqueuer Enqueuer
	now      func() time.Time
}

func NewOutbox(store repository.Store, enqueuer Enqueuer) *Outbox {
	return &Outbox{store: store, enqueuer: enqueuer, now: func() time.Time { return time.Now().UTC() }}
}

func (o *Outbox) List(ctx context.Context, status domain.NotificationStatus, limit int) ([]domain.Notification, error) {
	var items []domain.Notification
	err := o.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		items, err = tx.ListNotifications(ctx, repository.NotificationFilter{Status: status, Limit: limit})
		return err
	})
	return items, err
}

// Retry resets the given rows, or every failed row when ids is empty, to
// pending with a fresh attempt budget and queues them again.
func (o *Outbox) Retry(ctx context.Context, ids []string) (int, error) {
	var reset []string
	err := o.store.InTx(ctx, func(tx repository.Tx) error {
		var rows []domain.Notification
		if len(ids) == 0 {
			var err error
			rows, err = tx.ListNotifications(ctx, repository.NotificationFilter{Status: domain.NotificationFailed, Limit: 500})
			if err != nil {
				return err
			}
		} else {
			for _, id := range ids {
				n, err := tx.GetNotification(ctx, id)
				if err != nil {
					return err
				}
				rows = append(rows, n)
			}
		}
		now := o.now()
		for _, n := range rows {
			if n.Status == domain.NotificationSent {
				continue
			}
			n.Status = domain.NotificationPending
			n.Attempts = 0
			n.UpdatedAt = now
			if err := tx.UpdateNotification(ctx, n); err != nil {
				return err
			}
			reset = append(reset, n.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if o.enqueuer != nil {
		o.enqueuer.Enqueue(ctx, reset...)
	}
	commonlog.Infof("event=notification action=retry status=ok count=%d", len(reset))
	return len(reset), nil
}
