//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/aiox-platform/bookingbot/internal/config"
	"github.com/aiox-platform/bookingbot/internal/events"
	"github.com/aiox-platform/bookingbot/internal/messagelog"
	"github.com/aiox-platform/bookingbot/internal/orchestrator"
	"github.com/aiox-platform/bookingbot/internal/pipeline"
)

func setupNATSContainer(t *testing.T) *events.Client {
	t.Helper()
	ctx := context.Background()

	natsContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "nats:2-alpine",
			ExposedPorts: []string{"4222/tcp"},
			Cmd:          []string{"--jetstream", "--store_dir", "/data"},
			WaitingFor:   wait.ForLog("Server is ready").WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { natsContainer.Terminate(ctx) })

	host, _ := natsContainer.Host(ctx)
	port, _ := natsContainer.MappedPort(ctx, "4222")

	client, err := events.NewClient(ctx, config.NATSConfig{
		URL: fmt.Sprintf("nats://%s:%s", host, port.Port()),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client
}

func TestNATS_ExchangeReachesMessageLog(t *testing.T) {
	in := SetupInfra(t)
	client := setupNATSContainer(t)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	consumer := messagelog.NewConsumer(in.Messages, events.NewConsumerManager(client.JetStream()))
	go consumer.Start(ctx)

	publisher := events.NewPublisher(client.JetStream())
	thread := "nats-" + uuid.NewString()
	ex := events.Exchange{
		ID:        uuid.NewString(),
		UserID:    thread,
		Message:   "any PG near Powai?",
		Response:  "I found two PGs near Powai.",
		Agent:     "broker",
		Channel:   orchestrator.ChannelQueue,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, publisher.RecordExchange(ctx, ex))
	// A redelivered exchange must not duplicate rows.
	require.NoError(t, publisher.PublishExchange(ctx, ex))

	assert.Eventually(t, func() bool {
		msgs, err := in.Messages.ListThread(ctx, thread, 10)
		return err == nil && len(msgs) == 2
	}, 15*time.Second, 200*time.Millisecond)

	msgs, err := in.Messages.ListThread(ctx, thread, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, orchestrator.ChannelQueue, msgs[0].Platform)
}

type echoTurns struct{}

func (echoTurns) Handle(_ context.Context, req pipeline.Request) (*pipeline.Result, error) {
	return &pipeline.Result{Response: "echo: " + req.Message, Agent: "default"}, nil
}

func TestNATS_InboundMessageGetsReply(t *testing.T) {
	client := setupNATSContainer(t)
	js := client.JetStream()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	publisher := events.NewPublisher(js)
	orch := orchestrator.NewOrchestrator(echoTurns{}, publisher, events.NewConsumerManager(js), orchestrator.NewValidator(0))
	go orch.Start(ctx)

	in := events.InboundMessage{
		ID:         uuid.NewString(),
		UserID:     "919812345678",
		Message:    "hi",
		ReceivedAt: time.Now().UTC(),
	}
	require.NoError(t, publisher.PublishInbound(ctx, in))

	outbound, err := events.NewConsumerManager(js).EnsureConsumer(ctx, events.StreamMessages, "test-gateway", events.SubjectOutboundMessage)
	require.NoError(t, err)

	var got events.OutboundMessage
	assert.Eventually(t, func() bool {
		batch, err := outbound.Fetch(1, jetstream.FetchMaxWait(time.Second))
		if err != nil {
			return false
		}
		for msg := range batch.Messages() {
			_ = msg.Ack()
			if json.Unmarshal(msg.Data(), &got) == nil {
				return true
			}
		}
		return false
	}, 15*time.Second, 100*time.Millisecond)

	assert.Equal(t, in.UserID, got.UserID)
	assert.Equal(t, "echo: hi", got.Body)
	assert.Equal(t, events.KindReply, got.Kind)
	assert.Equal(t, in.ID, got.InReplyTo)
}
