// Package credential resolves the API key used to call the generation
// model. The pipeline is parameterized over a Provider so the same
// controller serves deployments with an ambient key, user-supplied
// stored keys, or an in-chat key prompt.
package credential

import (
	"context"
	"errors"
)

// ErrNoCredential is returned when no usable API key can be resolved
// for the current scope.
var ErrNoCredential = errors.New("no API credential available")

// Provider is the pipeline's only contract with key acquisition.
// Request initiates whatever key-entry flow the deployment supports;
// the caller re-checks Has afterwards (or on the next submission).
type Provider interface {
	Has(ctx context.Context) bool
	Request(ctx context.Context) error
	Key(ctx context.Context) (string, error)
}

type chatKeyType struct{}

var chatKey chatKeyType

// WithChat scopes the context to one chat so per-chat key stores can
// resolve the right entry.
func WithChat(ctx context.Context, chatID int64) context.Context {
	return context.WithValue(ctx, chatKey, chatID)
}

func ChatFrom(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(chatKey).(int64)
	return id, ok
}

// Static is a pre-provisioned ambient credential with no acquisition
// flow, e.g. an environment-supplied key.
type Static struct {
	key string
}

func NewStatic(key string) *Static {
	return &Static{key: key}
}

func (s *Static) Has(ctx context.Context) bool {
	return s.key != ""
}

func (s *Static) Request(ctx context.Context) error {
	if s.key == "" {
		return ErrNoCredential
	}
	return nil
}

func (s *Static) Key(ctx context.Context) (string, error) {
	if s.key == "" {
		return "", ErrNoCredential
	}
	return s.key, nil
}

// ChatPrompter wraps a key store with an in-chat acquisition flow:
// Request pushes key-entry instructions into the chat and the re-check
// happens on the user's next submission.
type ChatPrompter struct {
	store  Provider
	notify func(ctx context.Context) error
}

func NewChatPrompter(store Provider, notify func(ctx context.Context) error) *ChatPrompter {
	return &ChatPrompter{store: store, notify: notify}
}

func (p *ChatPrompter) Has(ctx context.Context) bool {
	return p.store.Has(ctx)
}

func (p *ChatPrompter) Request(ctx context.Context) error {
	if p.notify == nil {
		return ErrNoCredential
	}
	return p.notify(ctx)
}

func (p *ChatPrompter) Key(ctx context.Context) (string, error) {
	return p.store.Key(ctx)
}
