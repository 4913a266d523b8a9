package mq

import (
	"context"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	commonlog "portal_server/server/common/log"
)

func NewConnection(url string) (*amqp.Connection, error) {
	return amqp.Dial(url)
}

// Queue is a durable work queue behind a direct exchange of the same name.
type Queue struct {
	channel *amqp.Channel
	name    string
}

func NewQueue(conn *amqp.Connection, name string) (*Queue, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.ExchangeDeclare(name, "direct", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.QueueBind(name, name, name, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Queue{channel: ch, name: name}, nil
}

func (q *Queue) Publish(ctx context.Context, body []byte) error {
	return q.channel.PublishWithContext(ctx, q.name, q.name, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Timestamp:    time.Now(),
	})
}

// Consume hands each delivery to handle until ctx is cancelled. Failed
// deliveries are dropped from the queue; the caller keeps its own retry state.
func (q *Queue) Consume(ctx context.Context, handle func(ctx context.Context, body []byte) error) error {
	if err := q.channel.Qos(8, 0, false); err != nil {
		return err
	}
	deliveries, err := q.channel.ConsumeWithContext(ctx, q.name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			if err := handle(ctx, d.Body); err != nil {
				commonlog.Warnf("event=mq_consume action=handle status=failed queue=%s error=%v", q.name, err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (q *Queue) Close() error {
	return q.channel.Close()
}
