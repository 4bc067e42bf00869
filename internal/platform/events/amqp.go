package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

// confirmation is the broker's answer to one publishing.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type confirmingChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// AMQPPublisher publishes events to a durable topic exchange and waits for
// the broker to confirm each message. Each publish waits on the confirmation
// for its own delivery tag, so concurrent publishes do not share acks.
type AMQPPublisher struct {
	ch       confirmingChannel
	exchange string
	publish  func(ctx context.Context, key string, msg amqp.Publishing) (confirmation, error)
}

// NewAMQPPublisher opens a channel on conn, declares exchange and enables
// publisher confirms.
func NewAMQPPublisher(conn *amqp.Connection, exchange string) (*AMQPPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // kind
		true,     // durable
		false,    // autoDelete
		false,    // internal
		false,    // noWait
		nil,      // args
	); err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	return newAMQPPublisher(ch, exchange), nil
}

func newAMQPPublisher(ch confirmingChannel, exchange string) *AMQPPublisher {
	p := &AMQPPublisher{ch: ch, exchange: exchange}
	p.publish = func(ctx context.Context, key string, msg amqp.Publishing) (confirmation, error) {
		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
		if err != nil || dc == nil {
			// nil without error means the channel is not in confirm mode.
			return nil, err
		}
		return dc, nil
	}
	return p
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	msg, err := publishing(e)
	if err != nil {
		return err
	}

	conf, err := p.publish(ctx, e.Type, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	if conf == nil {
		return fmt.Errorf("publish %s: %w", e.Type, errNotConfirming)
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish %s: %w", e.Type, err)
	}
	if !acked {
		return fmt.Errorf("publish %s: %w", e.Type, ErrNacked)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	return p.ch.Close()
}

var (
	// ErrNacked is returned when the broker rejects a publishing or the
	// channel closes before confirming it.
	ErrNacked        = errors.New("broker did not confirm delivery")
	errNotConfirming = errors.New("amqp channel is not in confirm mode")
)

func publishing(e Event) (amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		MessageId:    e.ID,
		Type:         e.Type,
		Timestamp:    e.OccurredAt,
		DeliveryMode: amqp.Persistent,
		Body:         body,
		Headers: amqp.Table{
			"resource_type": e.ResourceType,
			"resource_id":   e.ResourceID,
		},
	}, nil
}
