// Package events connects the engine to the message brokers: inventory
// notifications go out, payment status reports come in.
package events

import (
	"context"
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

// HandlerFunc processes one message body. A retryable error puts the
// message back on the queue; any other error drops it.
type HandlerFunc func(ctx context.Context, body []byte) error

func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// StartConsumer binds this service's queue for routingKey to the events
// exchange and feeds deliveries to handler until ctx is done or the channel
// closes. done is closed when the loop exits.
func StartConsumer(ctx context.Context, ch Channel, routingKey string, handler HandlerFunc, logger *log.Logger) (done <-chan struct{}, err error) {
	if err := declareEventsExchange(ch); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	queue := serviceQueue(ServiceName, routingKey)
	if _, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routingKey, EventsExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue %s: %w", queue, err)
	}

	msgs, err := ch.Consume(
		queue,
		ServiceName, // consumer tag
		false,       // autoAck
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for {
			select {
			case <-ctx.Done():
				logger.Printf("stopping %s consumer", queue)
				return
			case msg, ok := <-msgs:
				if !ok {
					logger.Printf("%s: messages channel closed", queue)
					return
				}
				dispatch(ctx, msg, handler, logger)
			}
		}
	}()

	return finished, nil
}

func dispatch(ctx context.Context, msg amqp.Delivery, handler HandlerFunc, logger *log.Logger) {
	if err := handler(ctx, msg.Body); err != nil {
		requeue := apperr.IsRetryable(err)
		logger.Printf("handle message %s error (requeue=%t): %v", msg.MessageId, requeue, err)
		_ = msg.Nack(false, requeue)
		return
	}
	_ = msg.Ack(false)
}
