package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"schemaregistry/internal/storage"
	"schemaregistry/internal/storage/memory"
)

func TestNextIdMonotonic(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	first, err := s.NextId(ctx, "ns")
	require.NoError(t, err)
	second, err := s.NextId(ctx, "ns")
	require.NoError(t, err)
	require.Equal(t, first+1, second)

	otherNs, err := s.NextId(ctx, "other")
	require.NoError(t, err)
	require.Equal(t, int64(1), otherNs)
}

func TestAddGetFind(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "ns", storage.Record{"id": int64(1), "name": "a"}))
	require.NoError(t, s.Add(ctx, "ns", storage.Record{"id": int64(2), "name": "b"}))

	rec, found, err := s.Get(ctx, "ns", 1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "a", rec["name"])

	_, found, err = s.Get(ctx, "ns", 99)
	require.NoError(t, err)
	require.False(t, found)

	recs, err := s.Find(ctx, "ns", []storage.Filter{{Column: "name", Value: "b"}})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, int64(2), recs[0]["id"])
}

func TestFindEmptyFiltersMatchesEveryRecord(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "ns", storage.Record{"id": int64(1)}))

	recs, err := s.Find(ctx, "ns", nil)
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestList(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "ns", storage.Record{"id": int64(1)}))
	require.NoError(t, s.Add(ctx, "ns", storage.Record{"id": int64(2)}))
	require.NoError(t, s.Add(ctx, "other", storage.Record{"id": int64(1)}))

	recs, err := s.List(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, recs, 2)
}

func TestUpdateReplacesInPlace(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "ns", storage.Record{"id": int64(1), "name": "a"}))

	require.NoError(t, s.Update(ctx, "ns", 1, storage.Record{"id": int64(1), "name": "b"}))

	recs, err := s.List(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "b", recs[0]["name"])
}

func TestUpdateInsertsWhenAbsent(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.Update(ctx, "ns", 1, storage.Record{"id": int64(1), "name": "a"}))

	recs, err := s.List(ctx, "ns")
	require.NoError(t, err)
	require.Len(t, recs, 1)
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	require.NoError(t, s.Add(ctx, "ns", storage.Record{"id": int64(1), "name": "a"}))

	rec, _, err := s.Get(ctx, "ns", 1)
	require.NoError(t, err)
	rec["name"] = "mutated"

	rec2, _, err := s.Get(ctx, "ns", 1)
	require.NoError(t, err)
	require.Equal(t, "a", rec2["name"])
}
