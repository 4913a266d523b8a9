package notifier

import (
	"context"
	"errors"
	"strings"

	commonlog "portal_server/server/common/log"
)

// Queue carries notification ids from the API process to a worker. The
// AMQP queue in server/common/infra/mq satisfies it.
type Queue interface {
	Publish(ctx context.Context, body []byte) error
	Consume(ctx context.Context, handle func(ctx context.Context, body []byte) error) error
}

var ErrQueueFull = errors.New("notification queue is full")

// LocalQueue is the in-process queue used when the broker is disabled. A
// full buffer rejects the id; the retry sweep picks the row up later.
type LocalQueue struct {
	ch chan []byte
}

func NewLocalQueue(size int) *LocalQueue {
	if size <= 0 {
		size = 256
	}
	return &LocalQueue{ch: make(chan []byte, size)}
}

func (q *LocalQueue) Publish(ctx context.Context, body []byte) error {
	select {
	case q.ch <- body:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

func (q *LocalQueue) Consume(ctx context.Context, handle func(ctx context.Context, body []byte) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case body := <-q.ch:
			if err := handle(ctx, body); err != nil {
				commonlog.Warnf("event=local_queue action=handle status=failed error=%v", err)
			}
		}
	}
}

// Dispatcher publishes committed notification ids. Publish failures are
// logged only: the row stays pending and the sweep retries it.
type Dispatcher struct {
	queue Queue
}

func NewDispatcher(queue Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

func (d *Dispatcher) Enqueue(ctx context.Context, ids ...string) {
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if err := d.queue.Publish(context.WithoutCancel(ctx), []byte(id)); err != nil {
			commonlog.Warnf("event=notification action=enqueue status=failed notification_id=%s error=%v", id, err)
			continue
		}
		commonlog.Debugf("event=notification action=enqueue status=ok notification_id=%s", id)
	}
}
