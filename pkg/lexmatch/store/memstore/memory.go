package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cognicore/lexmatch/pkg/lexmatch/internalerr"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

// Store is an in-memory implementation of every store interface, for
// tests and small offline catalogs.
type Store struct {
	mu        sync.RWMutex
	rows      map[int64][]store.CatalogRow // by category, insertion order
	products  map[int64]store.Product
	artifacts map[string]artifact
	now       func() time.Time
}

type artifact struct {
	blob     []byte
	modified time.Time
	expires  time.Time // zero means never
}

// New creates an empty store.
func New() *Store {
	return &Store{
		rows:      make(map[int64][]store.CatalogRow),
		products:  make(map[int64]store.Product),
		artifacts: make(map[string]artifact),
		now:       time.Now,
	}
}

// SetClock replaces the clock used for artifact timestamps and expiry.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// AddRows appends catalog rows.
func (s *Store) AddRows(rows ...store.CatalogRow) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.rows[r.CategoryID] = append(s.rows[r.CategoryID], r)
	}
}

// AddProducts inserts or replaces products by id.
func (s *Store) AddProducts(products ...store.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		p.NonAttributeWords = append([]string(nil), p.NonAttributeWords...)
		s.products[p.ID] = p
	}
}

// EachRow implements store.Catalog. Rows are visited on a copy so fn may
// call back into the store.
func (s *Store) EachRow(ctx context.Context, categoryID int64, fn func(store.CatalogRow) error) error {
	s.mu.RLock()
	rows := append([]store.CatalogRow(nil), s.rows[categoryID]...)
	s.mu.RUnlock()

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// FindProducts implements store.ProductSearcher. Products of the
// requesting source come first, then those whose name shares the most
// words with the query.
func (s *Store) FindProducts(ctx context.Context, brandNodeID, sourceID, categoryID int64, words []string) ([]store.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wordSet := make(map[string]struct{}, len(words))
	for _, w := range words {
		wordSet[strings.ToLower(w)] = struct{}{}
	}

	type scored struct {
		p     store.Product
		score int
	}
	var hits []scored
	for _, p := range s.products {
		if p.BrandNodeID != brandNodeID || p.CategoryID != categoryID {
			continue
		}
		score := 0
		for _, w := range strings.Fields(strings.ToLower(p.Name)) {
			if _, ok := wordSet[w]; ok {
				score++
			}
		}
		hits = append(hits, scored{p: p, score: score})
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if (a.p.SourceID == sourceID) != (b.p.SourceID == sourceID) {
			return a.p.SourceID == sourceID
		}
		if a.score != b.score {
			return a.score > b.score
		}
		return a.p.ID < b.p.ID
	})

	out := make([]store.Product, len(hits))
	for i, h := range hits {
		out[i] = h.p
		out[i].NonAttributeWords = append([]string(nil), h.p.NonAttributeWords...)
	}
	return out, nil
}

// BrandsForSource implements store.BrandSource.
func (s *Store) BrandsForSource(ctx context.Context, sourceID, categoryID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]struct{})
	var out []int64
	for _, p := range s.products {
		if p.SourceID != sourceID || p.CategoryID != categoryID || p.BrandNodeID == 0 {
			continue
		}
		if _, ok := seen[p.BrandNodeID]; ok {
			continue
		}
		seen[p.BrandNodeID] = struct{}{}
		out = append(out, p.BrandNodeID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Get implements store.ArtifactStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.live(key)
	if !ok {
		return nil, internalerr.ErrNotFound
	}
	return append([]byte(nil), a.blob...), nil
}

// Put implements store.ArtifactStore. A non-positive ttl never expires.
func (s *Store) Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a := artifact{blob: append([]byte(nil), blob...), modified: now}
	if ttl > 0 {
		a.expires = now.Add(ttl)
	}
	s.artifacts[key] = a
	return nil
}

// Modified implements store.ArtifactStore.
func (s *Store) Modified(ctx context.Context, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.live(key)
	if !ok {
		return time.Time{}, internalerr.ErrNotFound
	}
	return a.modified, nil
}

// Delete implements store.ArtifactStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, key)
	return nil
}

// live must be called with the lock held.
func (s *Store) live(key string) (artifact, bool) {
	a, ok := s.artifacts[key]
	if !ok {
		return artifact{}, false
	}
	if !a.expires.IsZero() && !s.now().Before(a.expires) {
		return artifact{}, false
	}
	return a, true
}

var (
	_ store.Catalog         = (*Store)(nil)
	_ store.ProductSearcher = (*Store)(nil)
	_ store.BrandSource     = (*Store)(nil)
	_ store.ArtifactStore   = (*Store)(nil)
)
