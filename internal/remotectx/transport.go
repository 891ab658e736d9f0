package remotectx

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// ErrDisconnected is returned when emitting on a closed connection.
var ErrDisconnected = errors.New("socket.io connection is not established")

// Transport is the event channel to a runtime.
type Transport interface {
	Emit(event string, args ...any) error
	On(event string, fn func(args ...any))
	Close() error
}

// Config describes how to reach a runtime.
type Config struct {
	// Name is the language the runtime registers under.
	Name               string
	URL                string
	Namespace          string
	InsecureSkipVerify bool
	// Timeout bounds connecting and each request. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// DefaultTimeout applies when a Config leaves Timeout unset.
const DefaultTimeout = 15 * time.Second

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

type socketTransport struct {
	io *socket.Socket
}

func (t *socketTransport) Emit(event string, args ...any) error {
	if !t.io.Connected() {
		return ErrDisconnected
	}
	t.io.Emit(event, args...)
	return nil
}

func (t *socketTransport) On(event string, fn func(args ...any)) {
	t.io.On(types.EventName(event), fn)
}

func (t *socketTransport) Close() error {
	t.io.Disconnect()
	return nil
}

// Dial opens a websocket socket.io connection and waits until it is
// established.
func Dial(ctx context.Context, cfg Config) (Transport, error) {
	logger := ctxlog.FromContext(ctx).With("context", cfg.Name, "url", cfg.URL)
	logger.Info("Connecting to runtime...")

	parsedURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
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
	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "/"
	}
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to runtime", "sid", io.Id())
		select {
		case connectChan <- nil:
		default:
		}
	})

	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err := fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		logger.Debug("Connection attempt failed", "error", err)
		select {
		case connectChan <- err:
		default:
		}
	})

	io.Connect()

	timeout := cfg.timeout()
	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &socketTransport{io: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for socket.io connection", timeout)
	}
}
