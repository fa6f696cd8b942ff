package mq

import (
	"context"
	"errors"
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "events.dlq"
)

// ErrPoisonMessage marks a delivery that can never be processed; the consumer dead-letters it
// and acknowledges instead of requeueing.
var ErrPoisonMessage = errors.New("poison message")

// DeclareDLQExchange declares the dead letter exchange.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares a dead letter queue named "<queue>.dlq" bound with the given pattern.
func DeclareDLQQueue(ch *amqp091.Channel, queueName, bindingKey string) (amqp091.Queue, error) {
	q, err := ch.QueueDeclare(
		queueName+".dlq",
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	// Bind queue to DLQ exchange
	err = ch.QueueBind(
		q.Name,
		bindingKey,
		DLQExchangeName,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// publishToDLQ 原样转发消息体，错误信息放在 header 里
func publishToDLQ(ctx context.Context, ch *amqp091.Channel, msg amqp091.Delivery, queue, reason string) error {
	headers := amqp091.Table{
		"x-original-error":       reason,
		"x-failed-queue":         queue,
		"x-original-routing-key": msg.RoutingKey,
	}
	for k, v := range msg.Headers {
		if _, exists := headers[k]; !exists {
			headers[k] = v
		}
	}

	return ch.PublishWithContext(
		ctx,
		DLQExchangeName,
		msg.RoutingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.MessageId,
			Headers:      headers,
		},
	)
}
