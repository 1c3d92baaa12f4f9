// Package postgres reads the dictionary catalog and product data from the
// merchandising database.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cognicore/lexmatch/pkg/lexmatch/internalerr"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

// ProductLimit caps the products returned for one brand.
const ProductLimit = 50

const catalogQuery = `
SELECT dd.id,
	dd.category_id,
	dd.attribute_id,
	dd.entity_id,
	dd.text_value,
	COALESCE(dd.source_entity_content->>'base', '') AS base_value,
	da.code AS attribute_code,
	COALESCE(dd.is_require_all_words, FALSE),
	COALESCE(dd.source_entity_content->>'derived_definition', ''),
	COALESCE(dd.source_entity_content->'derived_guides', '[]'::jsonb)::text,
	dtn.ancestor_node_length
FROM domain_dictionary dd
JOIN domain_taxonomy_nodes dtn ON dd.entity_id = dtn.id
JOIN domain_attributes da ON dtn.attribute_id = da.id
WHERE da.category_id = $1`

const productQuery = `
SELECT mp.id,
	mp.source_id,
	mp.category_id,
	mp.brand_node_id,
	mp.name,
	array_to_string(mp.non_attribute_words, ' ')
FROM master_products mp, to_tsquery('english', $1) keywords
WHERE mp.brand_node_id = $2
	AND mp.category_id = $3
	AND mp.source_id > -1
	AND mp.non_attribute_words_vector @@ keywords
ORDER BY mp.source_id = $4 DESC, ts_rank(mp.non_attribute_words_vector, keywords, 1) DESC
LIMIT $5`

const brandsQuery = `
SELECT DISTINCT pav.value_node_id
FROM pipeline_attribute_values pav
JOIN domain_attributes da ON pav.attribute_id = da.id
WHERE pav.sequence_id = (SELECT max(id) FROM pipeline_sequence WHERE id = pav.sequence_id)
	AND pav.source_id = $1
	AND da.category_id = $2
	AND da.code = 'brand'`

// Store implements store.Catalog, store.ProductSearcher and
// store.BrandSource over a Postgres connection.
type Store struct {
	db *sql.DB
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects through the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "ping postgres")
	}
	return &Store{db: db}, nil
}

// Close closes the underlying handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EachRow implements store.Catalog.
func (s *Store) EachRow(ctx context.Context, categoryID int64, fn func(store.CatalogRow) error) error {
	rows, err := s.db.QueryContext(ctx, catalogQuery, categoryID)
	if err != nil {
		return internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "query catalog")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			r        store.CatalogRow
			guides   string
			ancestor sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.CategoryID, &r.AttributeID, &r.EntityID, &r.TextValue, &r.BaseValue,
			&r.AttributeCode, &r.RequireAllWords, &r.DerivedDefinition, &guides, &ancestor); err != nil {
			return errors.Wrap(err, "scan catalog row")
		}
		if err := json.Unmarshal([]byte(guides), &r.DerivedGuides); err != nil {
			return internalerr.WrapAs(internalerr.ErrMalformedRow, err, "row %d derived_guides", r.ID)
		}
		if len(r.DerivedGuides) == 0 {
			r.DerivedGuides = nil
		}
		if ancestor.Valid {
			v := int(ancestor.Int64)
			r.AncestorNodeLength = &v
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// FindProducts implements store.ProductSearcher using full text search
// over the products' descriptive words. Products of the requesting
// source rank first.
func (s *Store) FindProducts(ctx context.Context, brandNodeID, sourceID, categoryID int64, words []string) ([]store.Product, error) {
	terms := tsTerms(words)
	if len(terms) == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, productQuery,
		strings.Join(terms, " | "), brandNodeID, categoryID, sourceID, ProductLimit)
	if err != nil {
		return nil, internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "query products")
	}
	defer rows.Close()

	var out []store.Product
	for rows.Next() {
		var (
			p     store.Product
			extra string
		)
		if err := rows.Scan(&p.ID, &p.SourceID, &p.CategoryID, &p.BrandNodeID, &p.Name, &extra); err != nil {
			return nil, errors.Wrap(err, "scan product")
		}
		p.NonAttributeWords = strings.Fields(extra)
		out = append(out, p)
	}
	return out, rows.Err()
}

// BrandsForSource implements store.BrandSource. It reads the brands
// found by the latest pipeline run of the source.
func (s *Store) BrandsForSource(ctx context.Context, sourceID, categoryID int64) ([]int64, error) {
	if sourceID == 0 || categoryID == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, brandsQuery, sourceID, categoryID)
	if err != nil {
		return nil, internalerr.WrapAs(internalerr.ErrStoreUnavailable, err, "query source brands")
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan brand")
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// tsTerms reduces words to tsquery-safe lexemes, dropping duplicates.
func tsTerms(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	var out []string
	for _, w := range words {
		t := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsNumber(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, w)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

var (
	_ store.Catalog         = (*Store)(nil)
	_ store.ProductSearcher = (*Store)(nil)
	_ store.BrandSource     = (*Store)(nil)
)
