package channel

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/todobridge/internal/runtime/metadata"
	"github.com/drblury/todobridge/transport"
)

type mockConfig struct{}

func (m *mockConfig) GetBridgeTransport() string { return TransportName }
func (m *mockConfig) GetBroker() string          { return "" }
func (m *mockConfig) GetBrokerPort() int         { return 0 }
func (m *mockConfig) GetClientID() string        { return "" }
func (m *mockConfig) GetBrokerUsername() string  { return "" }
func (m *mockConfig) GetBrokerPassword() string  { return "" }
func (m *mockConfig) GetNATSURL() string         { return "" }
func (m *mockConfig) GetRabbitMQURL() string     { return "" }

func TestRegister(t *testing.T) {
	original := transport.DefaultRegistry
	defer func() { transport.DefaultRegistry = original }()
	transport.DefaultRegistry = transport.NewRegistry()
	Register()

	caps := transport.GetCapabilities(TransportName)
	assert.Equal(t, "channel", caps.Name)
	assert.True(t, caps.SupportsOrdering)
	assert.True(t, caps.SupportsAck)
	assert.True(t, transport.DefaultRegistry.Has("gochannel"))
}

func TestCapabilities(t *testing.T) {
	assert.Equal(t, transport.ChannelCapabilities, Capabilities())
}

func TestBuild(t *testing.T) {
	tr, err := Build(context.Background(), &mockConfig{}, watermill.NopLogger{})
	require.NoError(t, err)
	assert.IsType(t, &PubSub{}, tr.Publisher)
	assert.Same(t, tr.Publisher, tr.Subscriber)
	require.NoError(t, tr.Publisher.Close())
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return nil
	}
}

func TestWildcardFanOut(t *testing.T) {
	ps := New(gochannel.Config{OutputChannelBuffer: 8}, nil)
	defer ps.Close()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := ps.Subscribe(ctx, "app/#")
	require.NoError(t, err)
	exact, err := ps.Subscribe(ctx, "app/response/c1")
	require.NoError(t, err)

	require.NoError(t, ps.Publish("app/response/c1", message.NewMessage(watermill.NewUUID(), []byte(`{"success":true}`))))

	for _, ch := range []<-chan *message.Message{all, exact} {
		msg := receive(t, ch)
		assert.Equal(t, "app/response/c1", msg.Metadata.Get(metadata.KeyTopic))
		assert.JSONEq(t, `{"success":true}`, string(msg.Payload))
	}

	require.NoError(t, ps.Publish("other/topic", message.NewMessage(watermill.NewUUID(), nil)))
	select {
	case <-all:
		t.Fatal("non-matching topic must not be delivered")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFiltersReleasedOnCancel(t *testing.T) {
	ps := New(gochannel.Config{}, nil)
	defer ps.Close()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := ps.Subscribe(ctx, "x/#")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		ps.mu.RLock()
		defer ps.mu.RUnlock()
		return len(ps.filters) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestNotifyConnection(t *testing.T) {
	ps := New(gochannel.Config{}, nil)
	defer ps.Close()

	var got []bool
	var observer transport.ConnectionObserver = ps
	observer.NotifyConnection(func(connected bool) { got = append(got, connected) })
	assert.Equal(t, []bool{true}, got)
}

func TestCloseIsIdempotent(t *testing.T) {
	ps := New(gochannel.Config{}, nil)
	require.NoError(t, ps.Close())
	require.NoError(t, ps.Close())
}
