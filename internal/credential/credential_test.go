package credential

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatic(t *testing.T) {
	ctx := context.Background()

	s := NewStatic("key-123")
	assert.True(t, s.Has(ctx))
	assert.NoError(t, s.Request(ctx))

	key, err := s.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, "key-123", key)

	empty := NewStatic("")
	assert.False(t, empty.Has(ctx))
	assert.ErrorIs(t, empty.Request(ctx), ErrNoCredential)
	_, err = empty.Key(ctx)
	assert.ErrorIs(t, err, ErrNoCredential)
}

func TestChatContext(t *testing.T) {
	ctx := context.Background()

	_, ok := ChatFrom(ctx)
	assert.False(t, ok)

	id, ok := ChatFrom(WithChat(ctx, 42))
	require.True(t, ok)
	assert.Equal(t, int64(42), id)
}

func TestFileStoreChatScoping(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	chatA := WithChat(context.Background(), 1)
	chatB := WithChat(context.Background(), 2)

	assert.False(t, store.Has(chatA))
	assert.ErrorIs(t, store.Request(chatA), ErrNoCredential)

	require.NoError(t, store.SetChatKey(1, "key-a"))

	key, err := store.Key(chatA)
	require.NoError(t, err)
	assert.Equal(t, "key-a", key)

	// Chat B has no key of its own and no shared fallback yet.
	assert.False(t, store.Has(chatB))

	require.NoError(t, store.SetSharedKey("shared-key"))
	key, err = store.Key(chatB)
	require.NoError(t, err)
	assert.Equal(t, "shared-key", key)

	// The chat-specific key still wins over the shared one.
	key, err = store.Key(chatA)
	require.NoError(t, err)
	assert.Equal(t, "key-a", key)
}

func TestFileStorePersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "keys.json")

	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.SetChatKey(9, "persisted"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reloaded, err := NewFileStore(path)
	require.NoError(t, err)

	key, err := reloaded.Key(WithChat(context.Background(), 9))
	require.NoError(t, err)
	assert.Equal(t, "persisted", key)
}

func TestFileStoreDeletesEmptyKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.SetChatKey(1, "key"))
	require.NoError(t, store.SetChatKey(1, ""))

	assert.False(t, store.Has(WithChat(context.Background(), 1)))
}

func TestChatPrompter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	var notified int64
	prompter := NewChatPrompter(store, func(ctx context.Context) error {
		id, ok := ChatFrom(ctx)
		if !ok {
			return errors.New("no chat in context")
		}
		notified = id
		return nil
	})

	ctx := WithChat(context.Background(), 5)
	assert.False(t, prompter.Has(ctx))
	require.NoError(t, prompter.Request(ctx))
	assert.Equal(t, int64(5), notified)

	require.NoError(t, store.SetChatKey(5, "supplied"))
	assert.True(t, prompter.Has(ctx))
	key, err := prompter.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, "supplied", key)
}
