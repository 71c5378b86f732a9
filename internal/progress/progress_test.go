package progress

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zishang520/engine.io/v2/transports"
	"github.com/zishang520/engine.io/v2/types"
	server "github.com/zishang520/socket.io/v2/socket"
)

func TestRecorder_ConcurrentPublish(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	rec := &Recorder{}
	var wg sync.WaitGroup

	// --- Act ---
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = rec.Publish(context.Background(), Event{Kind: KindUnit, Config: i})
		}(i)
	}
	wg.Wait()

	// --- Assert ---
	require.Len(t, rec.Events(), 50)
	require.NoError(t, rec.Close())
}

func TestNop(t *testing.T) {
	t.Parallel()

	var p Publisher = Nop{}
	require.NoError(t, p.Publish(context.Background(), Event{}))
	require.NoError(t, p.Close())
}

func TestPayload(t *testing.T) {
	t.Parallel()

	got := payload(Event{
		Kind:      KindFinished,
		RunID:     "run-1",
		Completed: 6,
		Total:     6,
		Valid:     true,
		Elapsed:   1500 * time.Millisecond,
		Best:      "{n_estimators: 50}",
		BestScore: 0.9,
	})

	assert.Equal(t, "search.finished", got["kind"])
	assert.Equal(t, int64(1500), got["elapsed_ms"])
	assert.Equal(t, 0.9, got["best_score"])
	assert.NotContains(t, got, "error")

	failed := payload(Event{Kind: KindUnit, Error: "timeout"})
	assert.Equal(t, "timeout", failed["error"])
	assert.NotContains(t, failed, "best")
}

func TestDialSocketIO_RejectsRelativeURL(t *testing.T) {
	t.Parallel()

	_, err := DialSocketIO(context.Background(), SocketIOConfig{URL: "/progress"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a scheme and a host")
}

// startSocketIOServer serves socket.io from an httptest server and forwards
// every payload received under event.
func startSocketIOServer(t *testing.T, event string) (string, <-chan map[string]any) {
	t.Helper()
	received := make(chan map[string]any, 16)

	opts := server.DefaultServerOptions()
	opts.SetTransports(types.NewSet(transports.POLLING, transports.WEBSOCKET))
	httpServer := types.NewWebServer(nil)
	io := server.NewServer(httpServer, opts)
	io.On("connection", func(clients ...any) {
		client := clients[0].(*server.Socket)
		client.On(event, func(args ...any) {
			if len(args) == 0 {
				return
			}
			if m, ok := args[0].(map[string]any); ok {
				select {
				case received <- m:
				default:
				}
			}
		})
	})

	ts := httptest.NewServer(httpServer)
	t.Cleanup(func() {
		io.Close(nil)
		ts.Close()
	})
	return ts.URL + "/socket.io/", received
}

func TestSocketIO_PublishReachesServer(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	url, received := startSocketIOServer(t, DefaultEvent)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pub, err := DialSocketIO(ctx, SocketIOConfig{URL: url, ConnectTimeout: 5 * time.Second})
	require.NoError(t, err)
	defer pub.Close()

	ev := Event{
		Kind:      KindFinished,
		RunID:     "run-7",
		Completed: 4,
		Total:     4,
		Valid:     true,
		Elapsed:   250 * time.Millisecond,
		Best:      "{max_depth: 3}",
		BestScore: 0.8,
	}

	// --- Act ---
	// The server registers its listener on connection; publish until it is in place.
	var got map[string]any
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for got == nil {
		require.NoError(t, pub.Publish(ctx, ev))
		select {
		case got = <-received:
		case <-ticker.C:
		case <-ctx.Done():
			t.Fatal("no progress event reached the server")
		}
	}

	// --- Assert ---
	assert.Equal(t, "search.finished", got["kind"])
	assert.Equal(t, "run-7", got["run_id"])
	assert.EqualValues(t, 4, got["completed"])
	assert.EqualValues(t, 250, got["elapsed_ms"])
	assert.Equal(t, "{max_depth: 3}", got["best"])
	assert.EqualValues(t, 0.8, got["best_score"])
	assert.Equal(t, true, got["valid"])
	require.NoError(t, pub.Close())
}

func TestDialSocketIO_HonoursCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := DialSocketIO(ctx, SocketIOConfig{URL: "http://127.0.0.1:1/socket.io/", ConnectTimeout: time.Minute})
	require.Error(t, err)
}

func TestConnectError(t *testing.T) {
	t.Parallel()

	cause := errors.New("refused")
	testCases := []struct {
		name string
		args []any
		want string
	}{
		{name: "no reason", args: nil, want: "connect_error without a reason"},
		{name: "error", args: []any{cause}, want: "refused"},
		{name: "value", args: []any{"unauthorized"}, want: "unauthorized"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := connectError(tc.args)
			require.Error(t, err)
			assert.Equal(t, tc.want, err.Error())
		})
	}
	assert.ErrorIs(t, connectError([]any{cause}), cause)
}
