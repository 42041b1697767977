package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/todobridge/internal/bridge"
	"github.com/drblury/todobridge/internal/record"
	configpkg "github.com/drblury/todobridge/internal/runtime/config"
	errspkg "github.com/drblury/todobridge/internal/runtime/errors"
	"github.com/drblury/todobridge/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/todobridge/internal/runtime/logging"
	"github.com/drblury/todobridge/internal/runtime/metadata"
	transportpkg "github.com/drblury/todobridge/internal/runtime/transport"
	"github.com/drblury/todobridge/internal/store/memory"
	pubtransport "github.com/drblury/todobridge/transport"
	"github.com/drblury/todobridge/transport/channel"
)

const waitFor = 3 * time.Second

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

func testConfig() *configpkg.Config {
	cfg := configpkg.Defaults()
	cfg.HTTPAddress = "127.0.0.1:0"
	cfg.BridgeEnabled = true
	cfg.BridgeTransport = "channel"
	return &cfg
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(context.Background(), nil, newTestLogger(), ServiceDependencies{})
	assert.Error(t, err)

	_, err = NewService(context.Background(), testConfig(), nil, ServiceDependencies{})
	assert.ErrorIs(t, err, errspkg.ErrLoggerRequired)

	cfg := testConfig()
	cfg.StoreDriver = "mongodb"
	_, err = NewService(context.Background(), cfg, newTestLogger(), ServiceDependencies{})
	var cfgErr *errspkg.ConfigValidationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "unknown driver")
}

func TestNewServiceSeedsMemoryStore(t *testing.T) {
	cfg := testConfig()
	cfg.StoreSeed = true
	svc, err := NewService(context.Background(), cfg, newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)

	items, err := svc.Store().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, bridge.StateStopped, svc.Status().Bridge.State)
	assert.Equal(t, "memory", svc.Status().Store)
}

type running struct {
	svc    *Service
	pubsub *channel.PubSub
	base   string
	cancel context.CancelFunc
	done   chan error
}

func startService(t *testing.T, cfg *configpkg.Config) *running {
	t.Helper()

	ps := channel.New(gochannel.Config{OutputChannelBuffer: 16}, watermill.NopLogger{})
	factory := transportpkg.FactoryFunc(func(context.Context, pubtransport.Config, watermill.LoggerAdapter) (transportpkg.Transport, error) {
		return transportpkg.Transport{Publisher: ps, Subscriber: ps}, nil
	})

	svc, err := NewService(context.Background(), cfg, newTestLogger(), ServiceDependencies{
		Store:            memory.New(),
		TransportFactory: factory,
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", cfg.HTTPAddress)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx, ln) }()

	r := &running{svc: svc, pubsub: ps, base: "http://" + ln.Addr().String(), cancel: cancel, done: done}
	t.Cleanup(func() { r.stop(t) })
	return r
}

func (r *running) stop(t *testing.T) {
	t.Helper()
	if r.cancel == nil {
		return
	}
	r.cancel()
	r.cancel = nil
	select {
	case err := <-r.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("service did not stop")
	}
}

func TestServiceEndToEnd(t *testing.T) {
	r := startService(t, testConfig())

	require.Eventually(t, func() bool {
		return r.svc.Bridge().State() == bridge.StateSubscribed
	}, waitFor, 10*time.Millisecond)

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.base, "http")+"/ws/todos", nil)
	require.NoError(t, err)
	defer ws.Close()
	require.Eventually(t, func() bool { return r.svc.Status().ConnectedClients == 1 }, waitFor, 10*time.Millisecond)

	subCtx, cancelSub := context.WithCancel(context.Background())
	defer cancelSub()
	todoEvents, err := r.pubsub.Subscribe(subCtx, "blazor-net-app/todo/#")
	require.NoError(t, err)

	resp, err := http.Post(r.base+"/api/todoitems", "application/json", strings.NewReader(`{"title":"From HTTP"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	select {
	case msg := <-todoEvents:
		msg.Ack()
		assert.Equal(t, "blazor-net-app/todo/created", msg.Metadata.Get(metadata.KeyTopic))
	case <-time.After(waitFor):
		t.Fatal("no topic event for HTTP create")
	}

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitFor)))
	_, frame, err := ws.ReadMessage()
	require.NoError(t, err)
	var push struct {
		Action string        `json:"action"`
		Data   record.Record `json:"data"`
	}
	require.NoError(t, jsoncodec.Unmarshal(frame, &push))
	assert.Equal(t, "created", push.Action)
	assert.Equal(t, "From HTTP", push.Data.Title)

	// A bridge command reaches the hub as well.
	responses, err := r.pubsub.Subscribe(subCtx, "blazor-net-app/response/c9")
	require.NoError(t, err)
	cmd := message.NewMessage(watermill.NewUUID(), []byte(`{"id":1,"isCompleted":true,"correlationId":"c9"}`))
	require.NoError(t, r.pubsub.Publish("blazor-net-app/command/updatepartial", cmd))

	select {
	case msg := <-responses:
		msg.Ack()
		assert.Contains(t, string(msg.Payload), `"success":true`)
	case <-time.After(waitFor):
		t.Fatal("no response for updatepartial")
	}

	_, frame, err = ws.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, jsoncodec.Unmarshal(frame, &push))
	assert.Equal(t, "updatepartial", push.Action)
	assert.True(t, push.Data.IsCompleted)

	statusResp, err := http.Get(r.base + "/api/status")
	require.NoError(t, err)
	defer statusResp.Body.Close()
	var status Status
	require.NoError(t, jsoncodec.Decode(statusResp.Body, &status))
	assert.Equal(t, bridge.StateSubscribed, status.Bridge.State)
	assert.Equal(t, "blazor-net-app", status.Bridge.Prefix)
	assert.Equal(t, 1, status.ConnectedClients)

	assert.Eventually(t, func() bool {
		body := scrape(t, r.base+"/metrics")
		return strings.Contains(body, "todobridge_hub_broadcasts_total") &&
			strings.Contains(body, "todobridge_bridge_commands_total")
	}, waitFor, 20*time.Millisecond)

	r.stop(t)
	assert.Equal(t, bridge.StateStopped, r.svc.Bridge().State())
	assert.Zero(t, r.svc.Status().ConnectedClients)
}

func scrape(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestServiceWithoutMetrics(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	cfg.BridgeEnabled = false
	r := startService(t, cfg)

	require.Eventually(t, func() bool { return r.svc.Addr() != nil }, waitFor, 10*time.Millisecond)
	assert.Nil(t, r.svc.Metrics())

	resp, err := http.Get(r.base + "/metrics")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Get(r.base + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStartReportsListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig()
	cfg.BridgeEnabled = false
	cfg.HTTPAddress = ln.Addr().String()
	svc, err := NewService(context.Background(), cfg, newTestLogger(), ServiceDependencies{})
	require.NoError(t, err)

	err = svc.Start(context.Background())
	require.Error(t, err)
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr))
}
