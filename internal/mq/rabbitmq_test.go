package mq

import (
	"context"
	"sync"
	"testing"

	"github.com/libranet/apiserver/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConfirm resolves when its delivery is acked or nacked. A pending
// confirm never resolves, like a broker that has not answered yet.
type fakeConfirm struct {
	pending bool
	ack     bool
}

func (c fakeConfirm) WaitContext(ctx context.Context) (bool, error) {
	if c.pending {
		<-ctx.Done()
		return false, ctx.Err()
	}
	return c.ack, nil
}

type fakeChannel struct {
	mu        sync.Mutex
	confirms  []fakeConfirm
	published []amqp.Publishing
	keys      []string
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  []string
}

func newFakeChannel(confirms ...fakeConfirm) *fakeChannel {
	return &fakeChannel{
		confirms:  confirms,
		exchanges: make(map[string]string),
		queues:    make(map[string]amqp.Table),
	}
}

func (f *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	f.exchanges[name] = kind
	return nil
}

func (f *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	f.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (f *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	f.bindings = append(f.bindings, name+"<-"+exchange+":"+key)
	return nil
}

func (f *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	return make(chan amqp.Delivery), nil
}

func (f *fakeChannel) Cancel(consumer string, noWait bool) error { return nil }

func (f *fakeChannel) Close() error { return nil }

func (f *fakeChannel) publishConfirmed(ctx context.Context, exchange, key string, msg amqp.Publishing) (confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	next := f.confirms[0]
	f.confirms = f.confirms[1:]
	return next, nil
}

func TestRabbitMQPublishUsesOwnConfirm(t *testing.T) {
	ch := newFakeChannel(
		fakeConfirm{pending: true},
		fakeConfirm{ack: false},
		fakeConfirm{ack: true},
	)
	client := newRabbitMQClient(ch, config.RabbitMQConfig{QueueDurable: true})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Publish(ctx, "book-requests", []byte(`{}`), map[string]string{AttrEventType: "created"})
	require.ErrorIs(t, err, context.Canceled)

	// The abandoned confirm above must not be read as this message's ack.
	_, err = client.Publish(context.Background(), "book-requests", []byte(`{}`), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")

	id, err := client.Publish(context.Background(), "book-requests", []byte(`{}`), map[string]string{AttrEventType: "processed"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.Len(t, ch.published, 3)
	assert.Equal(t, []string{"created", defaultRoutingKey, "processed"}, ch.keys)
	assert.Equal(t, id, ch.published[2].MessageId)
	assert.Equal(t, amqp.Persistent, ch.published[2].DeliveryMode)
}

func TestRabbitMQDeclaresTopologyOnce(t *testing.T) {
	ch := newFakeChannel(fakeConfirm{ack: true}, fakeConfirm{ack: true})
	client := newRabbitMQClient(ch, config.RabbitMQConfig{QueueDurable: true})

	for i := 0; i < 2; i++ {
		_, err := client.Publish(context.Background(), "book-requests", []byte(`{}`), nil)
		require.NoError(t, err)
	}

	assert.Equal(t, "topic", ch.exchanges["book-requests"])
	assert.Equal(t, "fanout", ch.exchanges["book-requests.dead-letter"])
	assert.Equal(t, "book-requests.dead-letter", ch.queues["book-requests.worker"]["x-dead-letter-exchange"])
	assert.Equal(t, []string{
		"book-requests.dead-letter<-book-requests.dead-letter:",
		"book-requests.worker<-book-requests:#",
	}, ch.bindings)
}

func TestRabbitMQPublishRequiresChannel(t *testing.T) {
	client := newRabbitMQClient(newFakeChannel(), config.RabbitMQConfig{})
	_, err := client.Publish(context.Background(), " ", nil, nil)
	assert.Error(t, err)
}
