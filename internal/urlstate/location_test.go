package urlstate

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runStoreContract checks the behaviour every Store must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, empty)

	q := url.Values{"text": {"bonjour tout le monde"}, "sl": {"fr"}}
	require.NoError(t, store.Save(ctx, "s1", q))

	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, q.Encode(), got.Encode())

	require.NoError(t, store.Delete(ctx, "s1"))
	got, err = store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, NewMemoryStore())
}

func TestRedisStore_Contract(t *testing.T) {
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})

	runStoreContract(t, NewRedisStoreFromClient(client))
}

func TestRedisStore_TTLAndPrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewRedisStore(mr.Addr(), "", 0, WithTTL(time.Minute), WithPrefix("test:"))
	defer store.Close()

	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.Save(context.Background(), "s1", url.Values{"text": {"x"}}))

	assert.True(t, mr.Exists("test:s1"))
	assert.Equal(t, time.Minute, mr.TTL("test:s1"))

	mr.FastForward(2 * time.Minute)
	got, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLocation_WriteIsIdempotent(t *testing.T) {
	loc, err := NewLocation(context.Background(), NewMemoryStore(), "s1", "/hf", nil)
	require.NoError(t, err)

	require.NoError(t, loc.Write("text", "hello"))
	require.NoError(t, loc.Write("text", "hello"))

	assert.Equal(t, 1, loc.Replacements())
	assert.Equal(t, "/hf?text=hello", loc.String())
}

func TestLocation_DeleteRemovesKey(t *testing.T) {
	initial := url.Values{"text": {"hello"}, "sl": {"fr"}}
	loc, err := NewLocation(context.Background(), nil, "s1", "", initial)
	require.NoError(t, err)

	require.NoError(t, loc.Delete("text"))
	require.NoError(t, loc.Delete("text"))

	_, ok := loc.Read("text")
	assert.False(t, ok)
	assert.Equal(t, 1, loc.Replacements())
	assert.Equal(t, "/?sl=fr", loc.String())

	// The caller's map is not aliased.
	assert.Equal(t, "hello", initial.Get("text"))
}

func TestLocation_ReadSeed(t *testing.T) {
	path, q, err := ParseLocation("/hf?text=bonjour%20%C3%A0%20tous&tl=ar")
	require.NoError(t, err)
	assert.Equal(t, "/hf", path)

	loc, err := NewLocation(context.Background(), NewMemoryStore(), "s1", path, q)
	require.NoError(t, err)

	text, ok := loc.Read("text")
	assert.True(t, ok)
	assert.Equal(t, "bonjour à tous", text)
	assert.Equal(t, 0, loc.Replacements())
}

func TestLocation_PersistsWrites(t *testing.T) {
	store := NewMemoryStore()
	loc, err := NewLocation(context.Background(), store, "s1", "/", nil)
	require.NoError(t, err)

	require.NoError(t, loc.Write("text", "hello"))

	persisted, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "hello", persisted.Get("text"))

	require.NoError(t, loc.Forget(context.Background()))
	persisted, _ = store.Load(context.Background(), "s1")
	assert.Empty(t, persisted)
}

type failingStore struct{ MemoryStore }

func (f *failingStore) Save(ctx context.Context, id string, query url.Values) error {
	if query.Has("text") {
		return errors.New("store down")
	}
	return nil
}

func TestLocation_FailedWriteKeepsState(t *testing.T) {
	loc, err := NewLocation(context.Background(), &failingStore{}, "s1", "/", nil)
	require.NoError(t, err)

	assert.Error(t, loc.Write("text", "hello"))
	_, ok := loc.Read("text")
	assert.False(t, ok)
	assert.Equal(t, 0, loc.Replacements())
}

func TestResume(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	orig, err := NewLocation(ctx, store, "s1", "/", url.Values{"sl": {"ar"}, "tl": {"fr"}})
	require.NoError(t, err)
	require.NoError(t, orig.Write("text", "bonjour"))

	loc, err := Resume(ctx, store, "s1", "")
	require.NoError(t, err)
	text, ok := loc.Read("text")
	assert.True(t, ok)
	assert.Equal(t, "bonjour", text)
	assert.Equal(t, "/?sl=ar&text=bonjour&tl=fr", loc.String())

	require.NoError(t, loc.Delete("text"))
	got, err := store.Load(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, got.Has("text"))

	_, err = Resume(ctx, store, "missing", "/")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseLocation_Invalid(t *testing.T) {
	_, _, err := ParseLocation("%zz")
	assert.Error(t, err)
}
