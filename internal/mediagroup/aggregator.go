// Package mediagroup debounces Telegram album uploads. The pipeline
// consumes exactly one source photo per run, so an album is collapsed
// into a single flush instead of triggering one run per photo.
package mediagroup

import (
	"fmt"
	"sync"
	"time"
)

type Item struct {
	ChatID       int64
	UserID       int64
	MediaGroupID string
	FileID       string
}

// Group is one flushed album. FirstFileID is the photo the pipeline
// ingests; the rest of the album is dropped.
type Group struct {
	ChatID      int64
	UserID      int64
	FirstFileID string
	PhotoCount  int
}

type Options struct {
	Debounce time.Duration
	OnFlush  func(Group)
}

type Aggregator struct {
	mu       sync.Mutex
	debounce time.Duration
	onFlush  func(Group)
	groups   map[string]*pendingGroup
}

type pendingGroup struct {
	group Group
	timer *time.Timer
}

func New(opts Options) *Aggregator {
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 1200 * time.Millisecond
	}

	return &Aggregator{
		debounce: debounce,
		onFlush:  opts.OnFlush,
		groups:   make(map[string]*pendingGroup),
	}
}

func (a *Aggregator) Add(item Item) {
	if item.MediaGroupID == "" || item.FileID == "" {
		return
	}

	key := makeKey(item.ChatID, item.MediaGroupID)

	a.mu.Lock()
	defer a.mu.Unlock()

	pg, ok := a.groups[key]
	if !ok {
		pg = &pendingGroup{
			group: Group{
				ChatID:      item.ChatID,
				UserID:      item.UserID,
				FirstFileID: item.FileID,
				PhotoCount:  1,
			},
		}
		a.groups[key] = pg
	} else {
		pg.group.PhotoCount++
	}

	if pg.timer != nil {
		pg.timer.Stop()
	}
	pg.timer = time.AfterFunc(a.debounce, func() {
		a.flush(key)
	})
}

func (a *Aggregator) flush(key string) {
	a.mu.Lock()
	pg, ok := a.groups[key]
	if !ok {
		a.mu.Unlock()
		return
	}
	delete(a.groups, key)
	group := pg.group
	onFlush := a.onFlush
	a.mu.Unlock()

	if onFlush != nil {
		onFlush(group)
	}
}

func makeKey(chatID int64, mediaGroupID string) string {
	return fmt.Sprintf("%d:%s", chatID, mediaGroupID)
}
