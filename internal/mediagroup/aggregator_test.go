package mediagroup

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu     sync.Mutex
	groups []Group
	ch     chan Group
}

func newFlushRecorder() *flushRecorder {
	return &flushRecorder{ch: make(chan Group, 10)}
}

func (r *flushRecorder) record(g Group) {
	r.mu.Lock()
	r.groups = append(r.groups, g)
	r.mu.Unlock()
	r.ch <- g
}

func (r *flushRecorder) wait(t *testing.T) Group {
	t.Helper()
	select {
	case g := <-r.ch:
		return g
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
		return Group{}
	}
}

func TestAggregatorCollapsesAlbumToFirstPhoto(t *testing.T) {
	rec := newFlushRecorder()
	ag := New(Options{Debounce: 30 * time.Millisecond, OnFlush: rec.record})

	ag.Add(Item{ChatID: 1, UserID: 10, MediaGroupID: "album-1", FileID: "file-a"})
	ag.Add(Item{ChatID: 1, UserID: 10, MediaGroupID: "album-1", FileID: "file-b"})
	ag.Add(Item{ChatID: 1, UserID: 10, MediaGroupID: "album-1", FileID: "file-c"})

	group := rec.wait(t)
	assert.Equal(t, int64(1), group.ChatID)
	assert.Equal(t, "file-a", group.FirstFileID)
	assert.Equal(t, 3, group.PhotoCount)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.groups, 1, "one album must flush exactly once")
}

func TestAggregatorKeepsAlbumsSeparate(t *testing.T) {
	rec := newFlushRecorder()
	ag := New(Options{Debounce: 30 * time.Millisecond, OnFlush: rec.record})

	ag.Add(Item{ChatID: 1, MediaGroupID: "album-1", FileID: "file-a"})
	ag.Add(Item{ChatID: 2, MediaGroupID: "album-1", FileID: "file-b"})

	seen := map[int64]Group{}
	for i := 0; i < 2; i++ {
		g := rec.wait(t)
		seen[g.ChatID] = g
	}

	assert.Equal(t, "file-a", seen[1].FirstFileID)
	assert.Equal(t, "file-b", seen[2].FirstFileID)
	assert.Equal(t, 1, seen[1].PhotoCount)
}

func TestAggregatorDebounceExtendsOnNewItems(t *testing.T) {
	rec := newFlushRecorder()
	ag := New(Options{Debounce: 80 * time.Millisecond, OnFlush: rec.record})

	ag.Add(Item{ChatID: 1, MediaGroupID: "album-1", FileID: "file-a"})
	time.Sleep(40 * time.Millisecond)
	ag.Add(Item{ChatID: 1, MediaGroupID: "album-1", FileID: "file-b"})

	// The first item alone would have flushed by now; the second
	// extended the window.
	time.Sleep(50 * time.Millisecond)
	rec.mu.Lock()
	flushed := len(rec.groups)
	rec.mu.Unlock()
	assert.Zero(t, flushed)

	group := rec.wait(t)
	assert.Equal(t, 2, group.PhotoCount)
}

func TestAggregatorIgnoresIncompleteItems(t *testing.T) {
	rec := newFlushRecorder()
	ag := New(Options{Debounce: 20 * time.Millisecond, OnFlush: rec.record})

	ag.Add(Item{ChatID: 1, MediaGroupID: "", FileID: "file-a"})
	ag.Add(Item{ChatID: 1, MediaGroupID: "album-1", FileID: ""})

	time.Sleep(60 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Empty(t, rec.groups)
}
