package remotectx

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cellgrid/internal/execctx"
	"github.com/vk/cellgrid/internal/value"
)

// fakeRuntime plays the remote side of the protocol in-process. Payloads
// go through JSON so handlers see the same loosely typed values a socket
// would deliver.
type fakeRuntime struct {
	mu       sync.Mutex
	handlers map[string]func(args ...any)
	requests []map[string]any
	closed   bool
	// answer builds the response for a request; nil means never answer.
	answer func(req map[string]any) map[string]any
}

func newFakeRuntime(answer func(req map[string]any) map[string]any) *fakeRuntime {
	return &fakeRuntime{handlers: make(map[string]func(args ...any)), answer: answer}
}

func (f *fakeRuntime) Emit(event string, args ...any) error {
	data, err := json.Marshal(args[0])
	if err != nil {
		return err
	}
	var req map[string]any
	if err := json.Unmarshal(data, &req); err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrDisconnected
	}
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.answer == nil {
		return nil
	}
	res := f.answer(req)
	if res == nil {
		return nil
	}
	res["id"] = req["id"]
	go f.push(EventResponse, res)
	return nil
}

func (f *fakeRuntime) push(event string, payload any) {
	data, _ := json.Marshal(payload)
	var decoded any
	_ = json.Unmarshal(data, &decoded)

	f.mu.Lock()
	handler := f.handlers[event]
	f.mu.Unlock()
	if handler != nil {
		handler(decoded)
	}
}

func (f *fakeRuntime) On(event string, fn func(args ...any)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = fn
}

func (f *fakeRuntime) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeRuntime) lastRequest() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func intPackage(n string) map[string]any {
	return map[string]any{"type": "int", "format": "text", "content": n}
}

func TestRefreshAndHasFunction(t *testing.T) {
	rt := newFakeRuntime(func(req map[string]any) map[string]any {
		return map[string]any{"errors": nil, "output": nil, "names": []string{"plot", "fit"}}
	})
	c := New(context.Background(), "py", rt, time.Second)

	require.NoError(t, c.Refresh(context.Background()))
	assert.True(t, c.HasFunction("fit"))
	assert.False(t, c.HasFunction("sum"))
	assert.Equal(t, []string{"fit", "plot"}, c.Functions())
	assert.Equal(t, OpFunctions, rt.lastRequest()["op"])
}

func TestFunctionsEvent(t *testing.T) {
	rt := newFakeRuntime(nil)
	c := New(context.Background(), "py", rt, time.Second)

	rt.push(EventFunctions, []string{"mean"})
	assert.True(t, c.HasFunction("mean"))

	rt.push(EventFunctions, "garbage")
	assert.True(t, c.HasFunction("mean"), "malformed lists are ignored")
}

func TestCall(t *testing.T) {
	rt := newFakeRuntime(func(req map[string]any) map[string]any {
		return map[string]any{"errors": nil, "output": intPackage("2")}
	})
	c := New(context.Background(), "py", rt, time.Second)

	arg, err := value.Pack(int64(1))
	require.NoError(t, err)

	res, err := c.Call(context.Background(), "a + 1", map[string]any{"a": arg}, execctx.Options{Pack: true})
	require.NoError(t, err)
	require.False(t, res.Failed())

	out, err := value.Unpack(res.Output)
	require.NoError(t, err)
	assert.Equal(t, int64(2), out)

	req := rt.lastRequest()
	assert.Equal(t, OpCall, req["op"])
	assert.Equal(t, "a + 1", req["source"])
	assert.Equal(t, map[string]any{"a": intPackage("1")}, req["args"])
	assert.NotEmpty(t, req["id"])
}

func TestCallFunction_UnpackedWhenNotPacking(t *testing.T) {
	rt := newFakeRuntime(func(req map[string]any) map[string]any {
		return map[string]any{"output": map[string]any{"type": "arr", "format": "json", "content": "[1,2]"}}
	})
	c := New(context.Background(), "py", rt, time.Second)

	res, err := c.CallFunction(context.Background(), "pair", []any{"x"}, execctx.Options{Pack: false})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), int64(2)}, res.Output)

	req := rt.lastRequest()
	assert.Equal(t, OpFunction, req["op"])
	assert.Equal(t, "pair", req["name"])
	assert.Equal(t, []any{map[string]any{"type": "str", "format": "text", "content": "x"}}, req["args"])
}

func TestCall_Errors(t *testing.T) {
	rt := newFakeRuntime(func(req map[string]any) map[string]any {
		return map[string]any{"errors": map[string]any{"0": "SyntaxError", "3": "NameError"}, "output": nil}
	})
	c := New(context.Background(), "py", rt, time.Second)

	res, err := c.Run(context.Background(), "x = (")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "SyntaxError", 3: "NameError"}, res.Errors)
}

func TestDepends(t *testing.T) {
	rt := newFakeRuntime(func(req map[string]any) map[string]any {
		return map[string]any{"names": []string{"x", "y"}}
	})
	c := New(context.Background(), "py", rt, time.Second)

	names, err := c.Depends(context.Background(), "x + y")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, names)
}

func TestTimeout(t *testing.T) {
	c := New(context.Background(), "py", newFakeRuntime(nil), 20*time.Millisecond)

	_, err := c.Run(context.Background(), "1")
	assert.ErrorContains(t, err, "timed out")
}

func TestContextCancellation(t *testing.T) {
	c := New(context.Background(), "py", newFakeRuntime(nil), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Run(ctx, "1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClose_FailsPending(t *testing.T) {
	rt := newFakeRuntime(nil)
	c := New(context.Background(), "py", rt, time.Minute)

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background(), "1")
		done <- err
	}()

	require.Eventually(t, func() bool {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		return len(rt.requests) == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("pending request was not released")
	}

	_, err := c.Run(context.Background(), "1")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestUnknownResponsesAreDropped(t *testing.T) {
	rt := newFakeRuntime(nil)
	New(context.Background(), "py", rt, time.Second)

	assert.NotPanics(t, func() {
		rt.push(EventResponse, map[string]any{"id": "nobody", "output": nil})
		rt.push(EventResponse, map[string]any{"output": nil})
		rt.push(EventResponse, "not json")
	})
}
