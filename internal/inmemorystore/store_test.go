package inmemorystore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/cellgrid/internal/node"
	"github.com/vk/cellgrid/internal/nodestore"
)

func TestPutAndGet(t *testing.T) {
	s := New()
	ctx := context.Background()

	// Unknown cells are reported as missing.
	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	err = s.Put(ctx, "a", nodestore.Entry{State: node.Evaluated, Value: int64(1)})
	require.NoError(t, err)

	entry, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, node.Evaluated, entry.State)
	assert.Equal(t, int64(1), entry.Value)
}

func TestPut_CopiesErrors(t *testing.T) {
	s := New()
	ctx := context.Background()
	errs := map[int]string{1: "boom"}

	require.NoError(t, s.Put(ctx, "a", nodestore.Entry{State: node.Errored, Errors: errs}))
	errs[2] = "later"

	entry, _, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{1: "boom"}, entry.Errors)
}

func TestDeleteAndSnapshot(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "a", nodestore.Entry{Value: "x"}))
	require.NoError(t, s.Put(ctx, "b", nodestore.Entry{Value: "y"}))
	require.NoError(t, s.Delete(ctx, "a"))

	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]nodestore.Entry{"b": {Value: "y"}}, snapshot)
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	ctx := context.Background()
	numGoroutines := 100
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("cell_%d", i)
			assert.NoError(t, s.Put(ctx, id, nodestore.Entry{Value: i}))
			_, _, err := s.Get(ctx, id)
			assert.NoError(t, err)
			_, err = s.Snapshot(ctx)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	snapshot, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, snapshot, numGoroutines)
}
