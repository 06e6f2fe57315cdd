package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, at time.Time) {
	t.Helper()
	require.NoError(t, os.Chtimes(path, at, at))
}

func TestWatcherChanged(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("images: 1\n"), 0o644))
	touch(t, path, time.Now().Add(-time.Hour))

	w, err := NewWatcher(path, time.Millisecond)
	require.NoError(t, err)
	assert.False(t, w.Changed())

	touch(t, path, time.Now())
	assert.True(t, w.Changed())
	assert.False(t, w.Changed(), "baseline moved")

	_, err = NewWatcher(filepath.Join(t.TempDir(), "missing.yaml"), time.Millisecond)
	assert.Error(t, err)
}

func TestWatcherWatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("images: 1\n"), 0o644))
	touch(t, path, time.Now().Add(-time.Hour))

	w, err := NewWatcher(path, 10*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	go func() {
		// keep writing until the watcher has picked a change up
		tick := time.NewTicker(50 * time.Millisecond)
		defer tick.Stop()
		for i := 2; ; i++ {
			select {
			case <-ctx.Done():
				return
			case <-tick.C:
				_ = os.WriteFile(path, []byte("images: "+string(rune('0'+i%10))+"\n"), 0o644)
			}
		}
	}()

	calls := 0
	err = w.Watch(ctx, func(context.Context) error {
		calls++
		cancel()
		return errors.New("keeps watching")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
