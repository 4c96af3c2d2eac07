package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters(t *testing.T) {
	tests := []struct {
		path   string
		yaml   bool
		hidden bool
	}{
		{"content/pages/home.yaml", true, true},
		{"content/site.yml", true, true},
		{"content/pages/.home.yaml.swp", false, false},
		{"content/pages/home.yaml~", false, false},
		{"content/pages/.hidden.yaml", true, false},
		{"content/readme.md", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.yaml, YAMLFilter(tt.path))
			assert.Equal(t, tt.hidden, NoHiddenFilter(tt.path))
		})
	}
}

func TestDebouncer_CollapsesBurst(t *testing.T) {
	d := newDebouncer(20 * time.Millisecond)
	defer d.stop()

	d.add(ChangeEvent{Type: EventTypeCreated, Path: "b.yaml"})
	d.add(ChangeEvent{Type: EventTypeModified, Path: "a.yaml"})
	d.add(ChangeEvent{Type: EventTypeModified, Path: "b.yaml"})

	select {
	case events := <-d.output:
		require.Len(t, events, 2)
		assert.Equal(t, "a.yaml", events[0].Path)
		assert.Equal(t, "b.yaml", events[1].Path)
		assert.Equal(t, EventTypeModified, events[1].Type)
	case <-time.After(time.Second):
		t.Fatal("debouncer never flushed")
	}
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "deleted", EventTypeDeleted.String())
	assert.Equal(t, "unknown", EventType(42).String())
}

func TestContentWatcher_DeliversYAMLChanges(t *testing.T) {
	dir := t.TempDir()
	pages := filepath.Join(dir, "pages")
	require.NoError(t, os.MkdirAll(pages, 0o755))

	cw, err := New(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer cw.Stop()

	cw.AddFilter(YAMLFilter)
	cw.AddFilter(NoHiddenFilter)

	var (
		mu  sync.Mutex
		got []ChangeEvent
	)
	batches := make(chan struct{}, 4)
	cw.AddHandler(func(ctx context.Context, events []ChangeEvent) error {
		mu.Lock()
		got = append(got, events...)
		mu.Unlock()
		batches <- struct{}{}
		return nil
	})

	require.NoError(t, cw.AddRecursive(dir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cw.Start(ctx)

	require.NoError(t, os.WriteFile(filepath.Join(pages, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pages, "about.yaml"), []byte("title: About\n"), 0o644))

	select {
	case <-batches:
	case <-time.After(3 * time.Second):
		t.Fatal("no change batch delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, got)
	for _, e := range got {
		assert.Equal(t, "about.yaml", filepath.Base(e.Path))
	}
}

func TestContentWatcher_StopIsIdempotent(t *testing.T) {
	cw, err := New(10*time.Millisecond, nil)
	require.NoError(t, err)

	require.NoError(t, cw.Stop())
	assert.NoError(t, cw.Stop())
}

func TestAddRecursive_MissingDir(t *testing.T) {
	cw, err := New(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer cw.Stop()

	assert.Error(t, cw.AddRecursive(filepath.Join(t.TempDir(), "nope")))
}
