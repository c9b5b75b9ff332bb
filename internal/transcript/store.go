// Package transcript is the ordered chat log the UI renders. Entries
// are append-only and never reordered; the pipeline controller is the
// sole writer.
package transcript

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"room-renovator-bot/internal/renovation"
)

type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// StagedImage is one renovation phase's image. Within one entry there
// is at most one StagedImage per stage.
type StagedImage struct {
	DataBase64 string
	MimeType   string
	Stage      renovation.Stage
	Label      string
}

// Entry is one transcript item. After creation only the pipeline
// mutates it, via Store.Update; Pending flips to false exactly once
// when the work behind the entry completes or fails.
type Entry struct {
	ID          string
	Author      Author
	Text        string
	Images      []StagedImage
	Prompts     []renovation.TimelapsePrompt
	Subject     string
	AspectRatio string
	Pending     bool
	CreatedAt   time.Time
}

// ImageForStage returns the entry's image for a stage, if present.
func (e Entry) ImageForStage(stage renovation.Stage) (StagedImage, bool) {
	for _, img := range e.Images {
		if img.Stage == stage {
			return img, true
		}
	}
	return StagedImage{}, false
}

func (e Entry) clone() Entry {
	out := e
	if e.Images != nil {
		out.Images = make([]StagedImage, len(e.Images))
		copy(out.Images, e.Images)
	}
	if e.Prompts != nil {
		out.Prompts = make([]renovation.TimelapsePrompt, len(e.Prompts))
		copy(out.Prompts, e.Prompts)
	}
	return out
}

type chat struct {
	entries      []Entry
	lastActivity time.Time
}

type Options struct {
	MaxEntries int
}

// Store holds one transcript per chat.
type Store struct {
	mu         sync.Mutex
	chats      map[int64]*chat
	entropy    *ulid.MonotonicEntropy
	maxEntries int
}

func NewStore(opts Options) *Store {
	maxEntries := opts.MaxEntries
	if maxEntries <= 0 {
		maxEntries = 50
	}

	return &Store{
		chats:      make(map[int64]*chat),
		entropy:    ulid.Monotonic(rand.Reader, 0),
		maxEntries: maxEntries,
	}
}

// Append adds an entry to a chat's transcript, assigning a monotonic
// ID and creation time, and returns a copy of the stored entry.
func (s *Store) Append(chatID int64, entry Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry.ID = ulid.MustNew(ulid.Timestamp(now), s.entropy).String()
	entry.CreatedAt = now

	c := s.getOrCreateLocked(chatID)
	c.lastActivity = now
	c.entries = append(c.entries, entry)
	if len(c.entries) > s.maxEntries {
		c.entries = c.entries[len(c.entries)-s.maxEntries:]
	}

	return entry.clone()
}

// Update applies fn to the entry with the given ID under the store
// lock and returns a copy of the result. Returns false when the entry
// no longer exists.
func (s *Store) Update(chatID int64, entryID string, fn func(*Entry)) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return Entry{}, false
	}
	for i := range c.entries {
		if c.entries[i].ID != entryID {
			continue
		}
		if fn != nil {
			fn(&c.entries[i])
		}
		c.lastActivity = time.Now()
		return c.entries[i].clone(), true
	}
	return Entry{}, false
}

// Get returns a copy of one entry.
func (s *Store) Get(chatID int64, entryID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return Entry{}, false
	}
	for i := range c.entries {
		if c.entries[i].ID == entryID {
			return c.entries[i].clone(), true
		}
	}
	return Entry{}, false
}

// Entries returns copies of a chat's entries in append order.
func (s *Store) Entries(chatID int64) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return nil
	}
	out := make([]Entry, 0, len(c.entries))
	for i := range c.entries {
		out = append(out, c.entries[i].clone())
	}
	return out
}

// Clear discards a chat's transcript. The chat itself stays known, so
// a long-lived chat keeps its slot.
func (s *Store) Clear(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chats[chatID]; ok {
		c.entries = nil
		c.lastActivity = time.Now()
	}
}

// Delete removes a chat entirely. For throwaway per-request chats,
// where Clear would keep the map slot alive forever.
func (s *Store) Delete(chatID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.chats, chatID)
}

func (s *Store) getOrCreateLocked(chatID int64) *chat {
	if c, ok := s.chats[chatID]; ok {
		return c
	}
	c := &chat{lastActivity: time.Now()}
	s.chats[chatID] = c
	return c
}
