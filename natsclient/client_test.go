package natsclient

import (
	"context"
	"crypto/tls"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/flowdiff/errors"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusReconnecting, "reconnecting"},
		{StatusClosed, "closed"},
		{ConnectionStatus(99), "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.status.String())
	}
}

func TestNewClient(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithTimeout(time.Second),
		WithMaxReconnects(3),
		WithClientName("test"),
		WithCredentials("user", "pass"))
	require.NoError(t, err)

	assert.Equal(t, "nats://localhost:4222", client.URL())
	assert.Equal(t, StatusDisconnected, client.Status())
	assert.False(t, client.IsHealthy())
	assert.Equal(t, 3, client.maxReconnects)
	assert.Equal(t, "test", client.clientName)
	assert.Len(t, client.buildConnectionOptions(), 10)

	secured, err := NewClient("tls://localhost:4222", WithTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	require.NoError(t, err)
	assert.Len(t, secured.buildConnectionOptions(), 10)
}

func TestNewClient_PingAndDrain(t *testing.T) {
	client, err := NewClient("nats://localhost:4222",
		WithPingInterval(5*time.Second),
		WithDrainTimeout(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, client.pingInterval)
	assert.Equal(t, time.Second, client.drainTimeout)

	// zero keeps the defaults
	defaults, err := NewClient("nats://localhost:4222", WithPingInterval(0), WithDrainTimeout(0))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, defaults.pingInterval)
	assert.Equal(t, 30*time.Second, defaults.drainTimeout)
}

func TestNewClient_InvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opt  ClientOption
	}{
		{"empty url", "", WithTimeout(time.Second)},
		{"zero timeout", "nats://localhost:4222", WithTimeout(0)},
		{"negative reconnect wait", "nats://localhost:4222", WithReconnectWait(-time.Second)},
		{"negative ping interval", "nats://localhost:4222", WithPingInterval(-time.Second)},
		{"negative drain timeout", "nats://localhost:4222", WithDrainTimeout(-time.Second)},
		{"partial credentials", "nats://localhost:4222", WithCredentials("user", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(tt.url, tt.opt)
			assert.Nil(t, client)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestClient_NotConnected(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	_, err = client.JetStream()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.RTT()
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = client.CreateKeyValueBucket(context.Background(), jetstreamConfig("flows"))
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestClient_ConnectFailure(t *testing.T) {
	client, err := NewClient("nats://127.0.0.1:1", WithTimeout(200*time.Millisecond), WithMaxReconnects(0))
	require.NoError(t, err)

	err = client.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, int32(1), client.Failures())
	assert.Equal(t, StatusDisconnected, client.Status())
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	client, err := NewClient("nats://localhost:4222")
	require.NoError(t, err)

	var health []bool
	client.OnHealthChange(func(healthy bool) { health = append(health, healthy) })

	require.NoError(t, client.Close(context.Background()))
	require.NoError(t, client.Close(context.Background()))
	assert.Equal(t, StatusClosed, client.Status())
	assert.Empty(t, health, "never connected, so health never changed")

	err = client.Connect(context.Background())
	assert.True(t, stderrors.Is(err, ErrClosed))
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.True(t, isAlreadyExistsError(stderrors.New("nats: stream name already in use")))
	assert.False(t, isAlreadyExistsError(stderrors.New("timeout")))
}
