package remotectx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vk/cellgrid/internal/ctxlog"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/value"
)

// Event names of the runtime protocol.
const (
	EventRequest   = "request"
	EventResponse  = "response"
	EventFunctions = "functions"
)

// Operations a request can carry.
const (
	OpCall      = "call"
	OpRun       = "run"
	OpFunction  = "function"
	OpDepends   = "depends"
	OpFunctions = "functions"
)

// ErrClosed is returned for requests still pending when the context closes.
var ErrClosed = errors.New("remote context closed")

// response is a decoded "response" event.
type response struct {
	ID     string
	Errors map[int]string
	Output any
	Names  []string
}

// Context is an execution context served by a remote runtime.
type Context struct {
	name      string
	transport Transport
	timeout   time.Duration
	logger    *slog.Logger

	mu        sync.Mutex
	pending   map[string]chan response
	closed    bool
	functions map[string]struct{}
}

var _ execctx.Context = (*Context)(nil)

// New wraps an established transport. The logger of ctx is kept for events
// arriving outside of any request.
func New(ctx context.Context, name string, transport Transport, timeout time.Duration) *Context {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Context{
		name:      name,
		transport: transport,
		timeout:   timeout,
		logger:    ctxlog.FromContext(ctx).With("context", name),
		pending:   make(map[string]chan response),
		functions: make(map[string]struct{}),
	}
	transport.On(EventResponse, c.onResponse)
	transport.On(EventFunctions, c.onFunctions)
	return c
}

// Connect dials the runtime described by cfg and fetches its function list.
func Connect(ctx context.Context, cfg Config) (*Context, error) {
	transport, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c := New(ctx, cfg.Name, transport, cfg.timeout())
	if err := c.Refresh(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Name implements execctx.Context.
func (c *Context) Name() string { return c.name }

// HasFunction reports whether the runtime announced name.
func (c *Context) HasFunction(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.functions[name]
	return ok
}

// Functions returns the sorted names the runtime provides.
func (c *Context) Functions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.functions))
	for name := range c.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Refresh asks the runtime for its function list.
func (c *Context) Refresh(ctx context.Context) error {
	res, err := c.roundTrip(ctx, map[string]any{"op": OpFunctions})
	if err != nil {
		return err
	}
	c.setFunctions(res.Names)
	return nil
}

// Call implements execctx.Context.
func (c *Context) Call(ctx context.Context, source string, args map[string]any, opts execctx.Options) (*execctx.Result, error) {
	wireArgs := make(map[string]any, len(args))
	for name, arg := range args {
		fields, err := toWire(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", name, err)
		}
		wireArgs[name] = fields
	}
	res, err := c.roundTrip(ctx, map[string]any{"op": OpCall, "source": source, "args": wireArgs})
	if err != nil {
		return nil, err
	}
	return result(res, opts.Pack)
}

// Run implements execctx.Context.
func (c *Context) Run(ctx context.Context, source string) (*execctx.Result, error) {
	res, err := c.roundTrip(ctx, map[string]any{"op": OpRun, "source": source})
	if err != nil {
		return nil, err
	}
	return result(res, true)
}

// CallFunction implements execctx.Context.
func (c *Context) CallFunction(ctx context.Context, name string, args []any, opts execctx.Options) (*execctx.Result, error) {
	wireArgs := make([]any, len(args))
	for i, arg := range args {
		fields, err := toWire(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		wireArgs[i] = fields
	}
	res, err := c.roundTrip(ctx, map[string]any{"op": OpFunction, "name": name, "args": wireArgs})
	if err != nil {
		return nil, err
	}
	return result(res, opts.Pack)
}

// Depends implements execctx.Context.
func (c *Context) Depends(ctx context.Context, source string) ([]string, error) {
	res, err := c.roundTrip(ctx, map[string]any{"op": OpDepends, "source": source})
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, &execctx.EvalError{Errors: res.Errors}
	}
	return res.Names, nil
}

// Close disconnects and fails every pending request. It is safe to call
// more than once.
func (c *Context) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	pending := c.pending
	c.pending = make(map[string]chan response)
	c.mu.Unlock()

	for _, ch := range pending {
		close(ch)
	}
	return c.transport.Close()
}

func (c *Context) roundTrip(ctx context.Context, req map[string]any) (response, error) {
	id := uuid.New().String()
	req["id"] = id
	ch := make(chan response, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return response{}, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	ctxlog.FromContext(ctx).Debug("Sending request.", "context", c.name, "op", req["op"], "id", id)
	if err := c.transport.Emit(EventRequest, req); err != nil {
		return response{}, fmt.Errorf("failed to send %s request: %w", req["op"], err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case res, ok := <-ch:
		if !ok {
			return response{}, ErrClosed
		}
		return res, nil
	case <-ctx.Done():
		return response{}, ctx.Err()
	case <-timer.C:
		return response{}, fmt.Errorf("timed out after %v waiting for %s response", c.timeout, req["op"])
	}
}

func (c *Context) onResponse(args ...any) {
	if len(args) == 0 {
		return
	}
	res, err := decodeResponse(args[0])
	if err != nil {
		c.logger.Warn("Dropping malformed response.", "error", err)
		return
	}

	c.mu.Lock()
	ch, ok := c.pending[res.ID]
	if ok {
		delete(c.pending, res.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Dropping response for unknown request.", "id", res.ID)
		return
	}
	ch <- res
}

func (c *Context) onFunctions(args ...any) {
	if len(args) == 0 {
		return
	}
	names, err := stringList(args[0])
	if err != nil {
		c.logger.Warn("Dropping malformed function list.", "error", err)
		return
	}
	c.setFunctions(names)
	c.logger.Debug("Function list updated.", "count", len(names))
}

func (c *Context) setFunctions(names []string) {
	functions := make(map[string]struct{}, len(names))
	for _, name := range names {
		functions[name] = struct{}{}
	}
	c.mu.Lock()
	c.functions = functions
	c.mu.Unlock()
}

// toWire converts an argument into the generic package map sent over the
// socket. Arguments that are not packages yet are packed first.
func toWire(arg any) (map[string]any, error) {
	switch p := arg.(type) {
	case value.Package:
		return p.Fields(), nil
	case *value.Package:
		if p != nil {
			return p.Fields(), nil
		}
	}
	pkg, err := value.Pack(arg)
	if err != nil {
		return nil, err
	}
	return pkg.Fields(), nil
}

// result converts a response into a context result. Outputs stay packed
// when the caller asked for packages and are unpacked otherwise.
func result(res response, pack bool) (*execctx.Result, error) {
	if len(res.Errors) > 0 {
		return &execctx.Result{Errors: res.Errors}, nil
	}
	if pack || res.Output == nil {
		return &execctx.Result{Output: res.Output}, nil
	}
	out, err := value.Unpack(res.Output)
	if err != nil {
		return nil, err
	}
	return &execctx.Result{Output: out}, nil
}

func decodeResponse(payload any) (response, error) {
	fields, err := asMap(payload)
	if err != nil {
		return response{}, err
	}
	id, ok := fields["id"].(string)
	if !ok || id == "" {
		return response{}, fmt.Errorf("response has no id")
	}
	res := response{ID: id, Output: fields["output"]}

	if raw, ok := fields["errors"].(map[string]any); ok && len(raw) > 0 {
		res.Errors = make(map[int]string, len(raw))
		for key, msg := range raw {
			line, err := strconv.Atoi(key)
			if err != nil {
				line = 0
			}
			res.Errors[line] = fmt.Sprint(msg)
		}
	}
	if raw, ok := fields["names"]; ok && raw != nil {
		if res.Names, err = stringList(raw); err != nil {
			return response{}, err
		}
	}
	return res, nil
}

func asMap(payload any) (map[string]any, error) {
	switch p := payload.(type) {
	case map[string]any:
		return p, nil
	case string:
		return unmarshalMap([]byte(p))
	case []byte:
		return unmarshalMap(p)
	}
	return nil, fmt.Errorf("unexpected payload type %T", payload)
}

func unmarshalMap(data []byte) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("payload is not a json object: %w", err)
	}
	return out, nil
}

func stringList(raw any) ([]string, error) {
	items, ok := raw.([]any)
	if !ok {
		if names, ok := raw.([]string); ok {
			return names, nil
		}
		return nil, fmt.Errorf("expected a list of names, got %T", raw)
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected a name, got %T", item)
		}
		names = append(names, name)
	}
	return names, nil
}
