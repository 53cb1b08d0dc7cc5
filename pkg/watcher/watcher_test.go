package watcher_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/forgekit/assetpipe/pkg/watcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherRefreshesOnChange(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "rock.png")
	require.NoError(t, os.WriteFile(file, []byte("v1"), 0o644))

	var mu sync.Mutex
	seen := map[string]bool{}

	cfg := watcher.DefaultConfig()
	cfg.DebounceMs = 20
	w, err := watcher.New(cfg, func(path string) {
		mu.Lock()
		seen[path] = true
		mu.Unlock()
	})
	require.NoError(t, err)
	require.NoError(t, w.AddRoot(dir))
	w.Start()
	defer w.Stop()

	require.NoError(t, os.WriteFile(file, []byte("v2"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen[file]
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDefaultConfigSkipsVCSDirs(t *testing.T) {
	cfg := watcher.DefaultConfig()
	assert.Contains(t, cfg.SkipDirs, ".git")
	assert.Greater(t, cfg.DebounceMs, 0)
}
