package feed

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/petrijr/flowgraph/pkg/api"
)

// AMQPSink publishes protocol messages as JSON to a RabbitMQ queue, for
// out-of-process monitors that consume the message protocol (task lifecycle,
// heartbeats, capability announcements).
type AMQPSink struct {
	ch   *amqp.Channel
	name string
}

var _ api.MessageSink = (*AMQPSink)(nil)

// amqpMessage is the wire shape; api.Message carries an untyped payload, so
// the sink serializes it as-is and leaves interpretation to the consumer.
type amqpMessage struct {
	Type      api.MessageType `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to,omitempty"`
	RunID     string          `json:"run_id,omitempty"`
	Payload   any             `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewAMQPSink declares a durable queue with the given name and returns a
// sink publishing to it. An empty name defaults to "flowgraph:messages".
func NewAMQPSink(ch *amqp.Channel, name string) (*AMQPSink, error) {
	if name == "" {
		name = "flowgraph:messages"
	}
	_, err := ch.QueueDeclare(name, true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &AMQPSink{ch: ch, name: name}, nil
}

func (s *AMQPSink) Publish(ctx context.Context, msg api.Message) error {
	body, err := json.Marshal(amqpMessage{
		Type:      msg.Type,
		From:      msg.From,
		To:        msg.To,
		RunID:     msg.RunID,
		Payload:   msg.Payload,
		Timestamp: msg.Timestamp,
	})
	if err != nil {
		return err
	}
	return s.ch.PublishWithContext(ctx, "", s.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}
