package runlock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Exclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.lock")
	ctx := context.Background()

	first, err := Acquire(ctx, path, time.Second)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = Acquire(ctx, path, 0)
	assert.ErrorIs(t, err, ErrLocked)

	_, err = Acquire(ctx, path, 250*time.Millisecond)
	assert.ErrorIs(t, err, ErrLocked)
	assert.Contains(t, err.Error(), "waited 250ms")

	require.NoError(t, first.Release())

	second, err := Acquire(ctx, path, 0)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquire_WaitsForRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")
	ctx := context.Background()

	first, err := Acquire(ctx, path, 0)
	require.NoError(t, err)

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = first.Release()
	}()

	second, err := Acquire(ctx, path, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestAcquire_ParentCancelled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.lock")

	first, err := Acquire(context.Background(), path, 0)
	require.NoError(t, err)
	defer first.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Acquire(ctx, path, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultPath(t *testing.T) {
	assert.Equal(t, "labrunner.lock", filepath.Base(DefaultPath()))
}
