package mq

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestPubSub(t *testing.T) *PubSubClient {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "libranet-test", option.WithGRPCConn(conn))
	require.NoError(t, err)

	p := &PubSubClient{
		client:             client,
		subscriptionSuffix: "-sub",
		topics:             make(map[string]*pubsub.Topic),
		subs:               make(map[string]*pubsub.Subscription),
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestPubSubPublishBeforeWorkerIsRetained(t *testing.T) {
	ctx := context.Background()
	p := newTestPubSub(t)

	_, err := p.Publish(ctx, "book-requests", []byte(`{"request_id":7}`), map[string]string{
		AttrEventType: "created",
		AttrRequestID: "7",
	})
	require.NoError(t, err)

	exists, err := p.client.Subscription("book-requests-sub").Exists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)

	recvCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	received := make(chan Message, 1)
	err = p.Subscribe(recvCtx, "book-requests", func(ctx context.Context, msg Message) error {
		select {
		case received <- msg:
		default:
		}
		cancel()
		return nil
	})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"request_id":7}`, string(msg.Data))
		assert.Equal(t, "created", msg.Attributes[AttrEventType])
	default:
		t.Fatal("event published before the worker started was not delivered")
	}
}

func TestPubSubSubscriptionHasDeadLetterPolicy(t *testing.T) {
	ctx := context.Background()
	p := newTestPubSub(t)

	_, sub, err := p.prepare(ctx, "book-requests")
	require.NoError(t, err)

	cfg, err := sub.Config(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg.DeadLetterPolicy)
	assert.Equal(t, pubsubMaxDeliveryAttempts, cfg.DeadLetterPolicy.MaxDeliveryAttempts)
	assert.True(t, cfg.EnableMessageOrdering)

	// A second client sharing the project finds the existing resources.
	q := &PubSubClient{
		client:             p.client,
		subscriptionSuffix: "-sub",
		topics:             make(map[string]*pubsub.Topic),
		subs:               make(map[string]*pubsub.Subscription),
	}
	_, again, err := q.prepare(ctx, "book-requests")
	require.NoError(t, err)
	assert.Equal(t, sub.ID(), again.ID())
}
