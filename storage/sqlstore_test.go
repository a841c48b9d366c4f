package storage

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meme-cmd/memexp2000/db"
	"github.com/meme-cmd/memexp2000/errors"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	database, err := db.OpenInMemoryDB(true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return NewSQLStore(database, zerolog.New(zerolog.NewTestWriter(t)))
}

func TestSQLStore_GetPut(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("missing key returns NOT_FOUND", func(t *testing.T) {
		_, err := s.Get(ctx, "agents/missing.json")
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "agents/a1.json", []byte(`{"id":"a1"}`)))
		data, err := s.Get(ctx, "agents/a1.json")
		require.NoError(t, err)
		assert.JSONEq(t, `{"id":"a1"}`, string(data))
	})

	t.Run("put overwrites", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "agents/a1.json", []byte(`{"id":"a1","name":"x"}`)))
		data, err := s.Get(ctx, "agents/a1.json")
		require.NoError(t, err)
		assert.Contains(t, string(data), "name")
	})

	t.Run("keys are case-insensitive", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, "payments/agent-creation/WaLLeT.json", []byte(`{}`)))
		_, err := s.Get(ctx, "payments/agent-creation/wallet.json")
		require.NoError(t, err)
	})
}

func TestSQLStore_PutIfAbsent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.PutIfAbsent(ctx, "payments/signatures/sig1.json", []byte(`{"purpose":"agent-creation"}`))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.PutIfAbsent(ctx, "payments/signatures/sig1.json", []byte(`{"purpose":"paid-agent-x"}`))
	require.NoError(t, err)
	assert.False(t, created, "second writer must lose")

	// First writer's record survives.
	data, err := s.Get(ctx, "payments/signatures/sig1.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), "agent-creation")
}

func TestSQLStore_List(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("backrooms/room-%d.json", i)
		require.NoError(t, s.Put(ctx, key, []byte(`{}`)))
	}
	require.NoError(t, s.Put(ctx, "agents/other.json", []byte(`{}`)))

	t.Run("prefix filter", func(t *testing.T) {
		res, err := s.List(ctx, "backrooms/", 10, "")
		require.NoError(t, err)
		assert.Len(t, res.Objects, 5)
		assert.Empty(t, res.NextCursor)
	})

	t.Run("pagination", func(t *testing.T) {
		page1, err := s.List(ctx, "backrooms/", 2, "")
		require.NoError(t, err)
		require.Len(t, page1.Objects, 2)
		require.NotEmpty(t, page1.NextCursor)

		page2, err := s.List(ctx, "backrooms/", 2, page1.NextCursor)
		require.NoError(t, err)
		require.Len(t, page2.Objects, 2)

		page3, err := s.List(ctx, "backrooms/", 2, page2.NextCursor)
		require.NoError(t, err)
		require.Len(t, page3.Objects, 1)
		assert.Empty(t, page3.NextCursor)

		seen := map[string]bool{}
		for _, page := range []*ListResult{page1, page2, page3} {
			for _, obj := range page.Objects {
				seen[obj.Key] = true
			}
		}
		assert.Len(t, seen, 5)
	})

	t.Run("empty prefix page", func(t *testing.T) {
		res, err := s.List(ctx, "users/", 10, "")
		require.NoError(t, err)
		assert.Empty(t, res.Objects)
	})
}
