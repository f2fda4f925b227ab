package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"replybot/pkg/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()

	inMemorySQL, err := OpenInMemory()
	require.NoError(t, err)

	onDisk, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "history.db"))
	require.NoError(t, err)

	stores := map[string]Store{
		"memory":        NewMemory(),
		"sqlite-memory": inMemorySQL,
		"sqlite-file":   onDisk,
	}
	t.Cleanup(func() {
		for _, store := range stores {
			_ = store.Close()
		}
	})

	return stores
}

func TestFirstContact(t *testing.T) {
	ctx := context.Background()

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first, err := store.FirstContact(ctx, "telegram:1")
			require.NoError(t, err)
			assert.True(t, first)

			require.NoError(t, store.Append(ctx, Entry{SessionKey: "telegram:1", Role: RoleUser, Content: "hi"}))

			first, err = store.FirstContact(ctx, "telegram:1")
			require.NoError(t, err)
			assert.False(t, first)

			other, err := store.FirstContact(ctx, "telegram:2")
			require.NoError(t, err)
			assert.True(t, other)
		})
	}
}

func TestListReturnsLatestInOrder(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			for i, content := range []string{"one", "two", "three", "four"} {
				role := RoleUser
				if i%2 == 1 {
					role = RoleBot
				}
				require.NoError(t, store.Append(ctx, Entry{
					SessionKey: "s",
					Channel:    "http",
					Role:       role,
					Content:    content,
					RuleID:     "r" + content,
					At:         base.Add(time.Duration(i) * time.Second),
				}))
			}

			all, err := store.List(ctx, "s", 0)
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, "one", all[0].Content)
			assert.Equal(t, RoleBot, all[1].Role)
			assert.Equal(t, "rtwo", all[1].RuleID)
			assert.Equal(t, "http", all[1].Channel)
			assert.True(t, base.Add(time.Second).Equal(all[1].At))

			latest, err := store.List(ctx, "s", 2)
			require.NoError(t, err)
			require.Len(t, latest, 2)
			assert.Equal(t, "three", latest[0].Content)
			assert.Equal(t, "four", latest[1].Content)

			none, err := store.List(ctx, "missing", 10)
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestAppendRequiresSessionKey(t *testing.T) {
	for name, store := range backends(t) {
		err := store.Append(context.Background(), Entry{Role: RoleUser, Content: "x"})
		assert.Error(t, err, name)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, Entry{SessionKey: "s", Role: RoleUser, Content: "remember me"}))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	first, err := reopened.FirstContact(ctx, "s")
	require.NoError(t, err)
	assert.False(t, first)
	assert.Equal(t, path, reopened.Path())
}

func TestOpenSelectsDriver(t *testing.T) {
	store, err := Open(config.HistoryConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)
	require.NoError(t, store.Close())

	store, err = Open(config.HistoryConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "h.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, store)
	require.NoError(t, store.Close())

	_, err = Open(config.HistoryConfig{Driver: "redis"})
	assert.Error(t, err)

	_, err = Open(config.HistoryConfig{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestMemoryClosed(t *testing.T) {
	store := NewMemory()
	require.NoError(t, store.Close())

	_, err := store.FirstContact(context.Background(), "s")
	assert.Error(t, err)
	assert.Error(t, store.Append(context.Background(), Entry{SessionKey: "s"}))
}
