//go:build integration
// +build integration

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/databot/youtube-tracker/internal/config"
)

func setupTestRabbitMQ(t *testing.T) (*config.RabbitMQConfig, func()) {
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx,
		"rabbitmq:3.13-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5672/tcp")
	require.NoError(t, err)

	cfg := &config.RabbitMQConfig{
		Host:       host,
		Port:       port.Int(),
		User:       "guest",
		Password:   "guest",
		Exchange:   "tracker.events.test",
		Queue:      "tracker.events.test.out",
		RoutingKey: "tracker.notify",
	}

	cleanup := func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	}

	return cfg, cleanup
}

func TestAMQPPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}

	cfg, cleanup := setupTestRabbitMQ(t)
	defer cleanup()

	publisher, err := NewAMQPPublisher(cfg)
	require.NoError(t, err)
	defer publisher.Close()

	assert.True(t, publisher.IsHealthy())

	ctx := context.Background()

	err = publisher.PublishVerificationResult(ctx, VerificationResult{
		DiscordUserID: "discord-1",
		ChannelID:     "UCabc",
		ChannelName:   "Some Creator",
		Verified:      true,
		State:         "verified",
	})
	require.NoError(t, err)

	err = publisher.PublishReportReady(ctx, ReportReady{
		DiscordUserID: "discord-1",
		Year:          2026,
		Month:         8,
		Videos:        3,
		TotalViews:    1300,
		TotalChange:   300,
	})
	require.NoError(t, err)

	// Consume from the bound queue and check routing plus envelope shape.
	connURL := fmt.Sprintf("amqp://guest:guest@%s:%d/", cfg.Host, cfg.Port)
	conn, err := amqp.Dial(connURL)
	require.NoError(t, err)
	defer conn.Close()

	ch, err := conn.Channel()
	require.NoError(t, err)
	defer ch.Close()

	deliveries, err := ch.Consume(cfg.Queue, "", true, false, false, false, nil)
	require.NoError(t, err)

	types := map[string]Envelope{}
	timeout := time.After(10 * time.Second)
	for len(types) < 2 {
		select {
		case d := <-deliveries:
			var env Envelope
			require.NoError(t, json.Unmarshal(d.Body, &env))
			types[env.Type] = env
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(types))
		}
	}

	require.Contains(t, types, EventVerificationResult)
	require.Contains(t, types, EventReportReady)

	var result VerificationResult
	require.NoError(t, json.Unmarshal(types[EventVerificationResult].Payload, &result))
	assert.Equal(t, "UCabc", result.ChannelID)
	assert.True(t, result.Verified)

	var report ReportReady
	require.NoError(t, json.Unmarshal(types[EventReportReady].Payload, &report))
	assert.Equal(t, int64(300), report.TotalChange)
}
