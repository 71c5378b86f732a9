package progress

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/specialistvlad/segmentgridgo/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// DefaultEvent is the socket.io event name progress is emitted under.
const DefaultEvent = "segmentgrid:progress"

// SocketIOConfig configures a SocketIO publisher.
type SocketIOConfig struct {
	URL                string
	Namespace          string
	Event              string
	InsecureSkipVerify bool
	ConnectTimeout     time.Duration
}

// SocketIO emits events to a socket.io server over websocket.
type SocketIO struct {
	io    *socket.Socket
	event string
}

// DialSocketIO connects to the server and waits for the connect handshake.
func DialSocketIO(ctx context.Context, cfg SocketIOConfig) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("publisher", "socketio", "url", cfg.URL)

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("progress URL %q needs a scheme and a host", cfg.URL)
	}
	if cfg.Event == "" {
		cfg.Event = DefaultEvent
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}

	opts := socket.DefaultOptions()
	opts.SetPath(parsedURL.Path)
	if cfg.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(cfg.Namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected progress publisher", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(args ...any) {
		connectChan <- connectError(args)
	})

	io.Connect()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIO{io: io, event: cfg.Event}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(cfg.ConnectTimeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", cfg.ConnectTimeout)
	}
}

// Publish emits ev as a JSON-like map.
func (s *SocketIO) Publish(_ context.Context, ev Event) error {
	return s.io.Emit(s.event, payload(ev))
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.io.Disconnect()
	return nil
}

// connectError turns the arguments of a connect_error event into an error.
func connectError(args []any) error {
	if len(args) == 0 {
		return errors.New("connect_error without a reason")
	}
	if err, ok := args[0].(error); ok && err != nil {
		return err
	}
	return fmt.Errorf("%v", args[0])
}

func payload(ev Event) map[string]any {
	m := map[string]any{
		"kind":       ev.Kind,
		"run_id":     ev.RunID,
		"config":     ev.Config,
		"fold":       ev.Fold,
		"completed":  ev.Completed,
		"total":      ev.Total,
		"valid":      ev.Valid,
		"elapsed_ms": ev.Elapsed.Milliseconds(),
	}
	if ev.Error != "" {
		m["error"] = ev.Error
	}
	if ev.Best != "" {
		m["best"] = ev.Best
		m["best_score"] = ev.BestScore
	}
	return m
}
