package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/libranet/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Events are published to a topic exchange named after the channel and
// routed by event type. Each channel has one durable worker queue bound to
// every routing key, plus a dead-letter queue for messages that fail twice.
const (
	workerQueueSuffix  = ".worker"
	deadLetterSuffix   = ".dead-letter"
	defaultRoutingKey  = "event"
	exchangeKindTopic  = "topic"
	bindAllRoutingKeys = "#"
)

// amqpChannel is the subset of *amqp.Channel the client uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
	publishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error)
}

// confirmation resolves to the broker's ack or nack for one delivery tag.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

type confirmChannel struct {
	*amqp.Channel
}

func (c confirmChannel) publishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	dc, err := c.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, msg)
	if err != nil {
		return nil, err
	}
	if dc == nil {
		return nil, errors.New("rabbitmq channel is not in confirm mode")
	}
	return dc, nil
}

// RabbitMQClient publishes and consumes events over one AMQP channel.
type RabbitMQClient struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  amqpChannel
	durable  bool
	autoDel  bool
	declared map[string]bool
}

// NewRabbitMQClient dials the broker and puts the channel in confirm mode
// so Publish only returns after the broker accepted the message.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	client := newRabbitMQClient(confirmChannel{Channel: ch}, cfg)
	client.conn = conn
	return client, nil
}

func newRabbitMQClient(ch amqpChannel, cfg config.RabbitMQConfig) *RabbitMQClient {
	return &RabbitMQClient{
		channel:  ch,
		durable:  cfg.QueueDurable,
		autoDel:  cfg.QueueAutoDelete,
		declared: make(map[string]bool),
	}
}

// Publish sends a persistent message to the channel's exchange, routed by
// its event type attribute, and waits for the broker's confirm of that
// delivery. A confirm abandoned on ctx is discarded by the library.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}
	routingKey := attrs[AttrEventType]
	if routingKey == "" {
		routingKey = defaultRoutingKey
	}
	messageID := uuid.NewString()

	r.mu.Lock()
	if err := r.declareTopology(channel); err != nil {
		r.mu.Unlock()
		return "", err
	}
	confirm, err := r.channel.publishConfirmed(ctx, channel, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Type:         routingKey,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
		Body:         data,
	})
	r.mu.Unlock()
	if err != nil {
		return "", err
	}

	ack, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", err
	}
	if !ack {
		return "", fmt.Errorf("rabbitmq rejected message %s", messageID)
	}
	return messageID, nil
}

// Subscribe consumes the channel's worker queue until ctx is done. A
// failing message is requeued once and dead-lettered on the second failure.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	err := r.declareTopology(channel)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	consumerTag := fmt.Sprintf("libranet-%s", uuid.NewString())
	deliveries, err := r.channel.Consume(channel+workerQueueSuffix, consumerTag, false, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			message := Message{
				ID:         delivery.MessageId,
				Data:       delivery.Body,
				Attributes: headersToAttributes(delivery.Headers),
			}
			if err := handler(ctx, message); err != nil {
				_ = delivery.Nack(false, !delivery.Redelivered)
				continue
			}
			_ = delivery.Ack(false)
		}
	}
}

// Close closes the underlying channel and connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// declareTopology declares the exchanges and queues of channel. The caller
// holds r.mu.
func (r *RabbitMQClient) declareTopology(channel string) error {
	if r.declared[channel] {
		return nil
	}

	deadLetter := channel + deadLetterSuffix
	if err := r.channel.ExchangeDeclare(deadLetter, "fanout", r.durable, r.autoDel, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", deadLetter, err)
	}
	if _, err := r.channel.QueueDeclare(deadLetter, r.durable, r.autoDel, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", deadLetter, err)
	}
	if err := r.channel.QueueBind(deadLetter, "", deadLetter, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", deadLetter, err)
	}

	if err := r.channel.ExchangeDeclare(channel, exchangeKindTopic, r.durable, r.autoDel, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", channel, err)
	}
	queue := channel + workerQueueSuffix
	args := amqp.Table{"x-dead-letter-exchange": deadLetter}
	if _, err := r.channel.QueueDeclare(queue, r.durable, r.autoDel, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	if err := r.channel.QueueBind(queue, bindAllRoutingKeys, channel, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}

	r.declared[channel] = true
	return nil
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
