package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/lexmatch/pkg/lexmatch/internalerr"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

func TestEachRowByCategory(t *testing.T) {
	s := New()
	s.AddRows(
		store.CatalogRow{ID: 1, CategoryID: 1, TextValue: "Vintage Port"},
		store.CatalogRow{ID: 2, CategoryID: 2, TextValue: "Pinot"},
		store.CatalogRow{ID: 3, CategoryID: 1, TextValue: "Ruby Port"},
	)

	var got []int64
	err := s.EachRow(context.Background(), 1, func(r store.CatalogRow) error {
		got = append(got, r.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, got)
}

func TestEachRowStopsOnError(t *testing.T) {
	s := New()
	s.AddRows(store.CatalogRow{ID: 1, CategoryID: 1}, store.CatalogRow{ID: 2, CategoryID: 1})

	boom := errors.New("boom")
	calls := 0
	err := s.EachRow(context.Background(), 1, func(store.CatalogRow) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestEachRowCanceled(t *testing.T) {
	s := New()
	s.AddRows(store.CatalogRow{ID: 1, CategoryID: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.EachRow(ctx, 1, func(store.CatalogRow) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFindProductsOrdering(t *testing.T) {
	s := New()
	s.AddProducts(
		store.Product{ID: 1, SourceID: 9, CategoryID: 1, BrandNodeID: 201, Name: "Warre's Otima 10"},
		store.Product{ID: 2, SourceID: 7, CategoryID: 1, BrandNodeID: 201, Name: "Warre's Warrior Reserve"},
		store.Product{ID: 3, SourceID: 9, CategoryID: 1, BrandNodeID: 201, Name: "Warre's Vintage Port"},
		store.Product{ID: 4, SourceID: 7, CategoryID: 1, BrandNodeID: 301, Name: "Taylor Vintage Port"},
		store.Product{ID: 5, SourceID: 7, CategoryID: 2, BrandNodeID: 201, Name: "Warre's Vintage Port"},
	)

	got, err := s.FindProducts(context.Background(), 201, 7, 1, []string{"vintage", "port"})
	require.NoError(t, err)

	ids := make([]int64, len(got))
	for i, p := range got {
		ids[i] = p.ID
	}
	assert.Equal(t, []int64{2, 3, 1}, ids)
}

func TestBrandsForSource(t *testing.T) {
	s := New()
	s.AddProducts(
		store.Product{ID: 1, SourceID: 7, CategoryID: 1, BrandNodeID: 302},
		store.Product{ID: 2, SourceID: 7, CategoryID: 1, BrandNodeID: 201},
		store.Product{ID: 3, SourceID: 7, CategoryID: 1, BrandNodeID: 302},
		store.Product{ID: 4, SourceID: 8, CategoryID: 1, BrandNodeID: 401},
		store.Product{ID: 5, SourceID: 7, CategoryID: 1},
	)

	got, err := s.BrandsForSource(context.Background(), 7, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{201, 302}, got)

	got, err = s.BrandsForSource(context.Background(), 99, 1)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestArtifactRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)

	blob := []byte("snapshot")
	require.NoError(t, s.Put(ctx, "k", blob, time.Hour))
	blob[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot"), got)

	mod, err := s.Modified(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, now, mod)

	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
}

func TestArtifactExpiry(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.Put(ctx, "short", []byte("a"), time.Minute))
	require.NoError(t, s.Put(ctx, "forever", []byte("b"), 0))

	now = now.Add(time.Minute)

	_, err := s.Get(ctx, "short")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)
	_, err = s.Modified(ctx, "short")
	assert.ErrorIs(t, err, internalerr.ErrNotFound)

	got, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), got)
}
