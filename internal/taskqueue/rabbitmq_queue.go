package taskqueue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQQueue is a Queue backed by a RabbitMQ queue. The queue is
// declared durable on construction; tasks are published persistent with
// their priority mapped onto AMQP message priority.
type RabbitMQQueue struct {
	ch       *amqp.Channel
	name     string
	delivery <-chan amqp.Delivery
}

var _ Queue = (*RabbitMQQueue)(nil)

// NewRabbitMQQueue declares the named queue on the given channel and
// starts consuming from it. The caller owns the connection and channel.
func NewRabbitMQQueue(ch *amqp.Channel, name string) (*RabbitMQQueue, error) {
	if name == "" {
		name = "flowgraph.tasks"
	}
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		amqp.Table{"x-max-priority": int32(10)},
	)
	if err != nil {
		return nil, fmt.Errorf("declare queue %q: %w", name, err)
	}
	delivery, err := ch.Consume(
		name,
		"",    // consumer tag
		false, // autoAck; we ack after decoding
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume queue %q: %w", name, err)
	}
	return &RabbitMQQueue{ch: ch, name: name, delivery: delivery}, nil
}

func (q *RabbitMQQueue) Enqueue(ctx context.Context, t Task) error {
	data, err := encodeTask(t)
	if err != nil {
		return err
	}
	return q.ch.PublishWithContext(ctx,
		"",     // default exchange
		q.name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/octet-stream",
			DeliveryMode: amqp.Persistent,
			Priority:     uint8(t.Priority),
			Body:         data,
		},
	)
}

func (q *RabbitMQQueue) Dequeue(ctx context.Context) (*Task, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-q.delivery:
		if !ok {
			return nil, fmt.Errorf("queue %q: consumer channel closed", q.name)
		}
		t, err := decodeTask(d.Body)
		if err != nil {
			// Undecodable payload; reject without requeue so it does not
			// poison the queue.
			_ = d.Nack(false, false)
			return nil, err
		}
		if err := d.Ack(false); err != nil {
			return nil, err
		}
		return t, nil
	}
}

// Len returns the queue depth reported by a passive declare, or 0 when
// the broker cannot be asked.
func (q *RabbitMQQueue) Len() int {
	state, err := q.ch.QueueDeclarePassive(q.name, true, false, false, false, nil)
	if err != nil {
		return 0
	}
	return state.Messages
}
