package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"

	"github.com/cognicore/lexmatch/pkg/lexmatch/internalerr"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

// Store keeps the catalog, products and index artifacts in one SQLite
// file. It implements every store interface.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens a SQLite database with WAL mode enabled and creates
// the schema if needed.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}

	// Enable WAL mode for better concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable wal")
	}

	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init schema")
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS catalog_rows (
	id INTEGER PRIMARY KEY,
	category_id INTEGER NOT NULL,
	attribute_id INTEGER NOT NULL DEFAULT 0,
	entity_id INTEGER NOT NULL DEFAULT 0,
	text_value TEXT NOT NULL,
	base_value TEXT NOT NULL DEFAULT '',
	attribute_code TEXT NOT NULL,
	require_all_words INTEGER NOT NULL DEFAULT 0,
	derived_definition TEXT NOT NULL DEFAULT '',
	derived_guides TEXT NOT NULL DEFAULT '[]',
	ancestor_node_length INTEGER
);

CREATE INDEX IF NOT EXISTS idx_catalog_rows_category ON catalog_rows(category_id);

CREATE TABLE IF NOT EXISTS products (
	id INTEGER PRIMARY KEY,
	source_id INTEGER NOT NULL,
	category_id INTEGER NOT NULL,
	brand_node_id INTEGER NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	non_attribute_words TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand_node_id, category_id);

CREATE TABLE IF NOT EXISTS product_words (
	product_id INTEGER NOT NULL,
	word TEXT NOT NULL,
	UNIQUE(product_id, word),
	FOREIGN KEY(product_id) REFERENCES products(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS artifacts (
	key TEXT PRIMARY KEY,
	blob BLOB NOT NULL,
	modified_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// UpsertRows inserts or replaces catalog rows by id.
func (s *Store) UpsertRows(ctx context.Context, rows []store.CatalogRow) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO catalog_rows (id, category_id, attribute_id, entity_id, text_value, base_value,
	attribute_code, require_all_words, derived_definition, derived_guides, ancestor_node_length)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	category_id=excluded.category_id,
	attribute_id=excluded.attribute_id,
	entity_id=excluded.entity_id,
	text_value=excluded.text_value,
	base_value=excluded.base_value,
	attribute_code=excluded.attribute_code,
	require_all_words=excluded.require_all_words,
	derived_definition=excluded.derived_definition,
	derived_guides=excluded.derived_guides,
	ancestor_node_length=excluded.ancestor_node_length;
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		guides, err := json.Marshal(nonNil(r.DerivedGuides))
		if err != nil {
			return err
		}
		var ancestor sql.NullInt64
		if r.AncestorNodeLength != nil {
			ancestor = sql.NullInt64{Int64: int64(*r.AncestorNodeLength), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.ID, r.CategoryID, r.AttributeID, r.EntityID, r.TextValue,
			r.BaseValue, r.AttributeCode, r.RequireAllWords, r.DerivedDefinition, string(guides), ancestor); err != nil {
			return errors.Wrapf(err, "upsert row %d", r.ID)
		}
	}
	return tx.Commit()
}

// EachRow implements store.Catalog. Rows whose guides column does not
// decode are reported as ErrMalformedRow.
func (s *Store) EachRow(ctx context.Context, categoryID int64, fn func(store.CatalogRow) error) error {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, category_id, attribute_id, entity_id, text_value, base_value, attribute_code,
	require_all_words, derived_definition, derived_guides, ancestor_node_length
FROM catalog_rows
WHERE category_id = ?
ORDER BY id;
`, categoryID)
	if err != nil {
		return errors.Wrap(err, "query catalog")
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
			return err
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

// UpsertProducts inserts or replaces products and their searchable name
// words.
func (s *Store) UpsertProducts(ctx context.Context, products []store.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const stmt = `
INSERT INTO products (id, source_id, category_id, brand_node_id, name, non_attribute_words)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	source_id=excluded.source_id,
	category_id=excluded.category_id,
	brand_node_id=excluded.brand_node_id,
	name=excluded.name,
	non_attribute_words=excluded.non_attribute_words;
`
	for _, p := range products {
		words, err := json.Marshal(nonNil(p.NonAttributeWords))
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, stmt, p.ID, p.SourceID, p.CategoryID, p.BrandNodeID, p.Name, string(words)); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.ID)
		}
		if err := replaceProductWords(ctx, tx, p.ID, nameWords(p.Name)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func replaceProductWords(ctx context.Context, tx *sql.Tx, productID int64, words []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM product_words WHERE product_id=?`, productID); err != nil {
		return err
	}
	if len(words) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO product_words (product_id, word) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, w := range words {
		if _, err := stmt.ExecContext(ctx, productID, w); err != nil {
			return err
		}
	}
	return nil
}

// FindProducts implements store.ProductSearcher. Products of the
// requesting source come first, then those whose name shares the most
// words with the query.
func (s *Store) FindProducts(ctx context.Context, brandNodeID, sourceID, categoryID int64, words []string) ([]store.Product, error) {
	unique := uniqueLower(words)

	// SQLite reads a bare integer ORDER BY term as a column number, so the
	// word-hit term is only added when there are words to count.
	orderBy := "CASE WHEN p.source_id = ? THEN 0 ELSE 1 END"
	args := []interface{}{brandNodeID, categoryID, sourceID}
	if len(unique) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(unique)), ",")
		orderBy += fmt.Sprintf(`, (SELECT COUNT(*) FROM product_words w WHERE w.product_id = p.id AND w.word IN (%s)) DESC`, placeholders)
		for _, w := range unique {
			args = append(args, w)
		}
	}

	query := fmt.Sprintf(`
SELECT p.id, p.source_id, p.category_id, p.brand_node_id, p.name, p.non_attribute_words
FROM products p
WHERE p.brand_node_id = ? AND p.category_id = ?
ORDER BY %s, p.id;
`, orderBy)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query products")
	}
	defer rows.Close()

	var out []store.Product
	for rows.Next() {
		var (
			p     store.Product
			words string
		)
		if err := rows.Scan(&p.ID, &p.SourceID, &p.CategoryID, &p.BrandNodeID, &p.Name, &words); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(words), &p.NonAttributeWords); err != nil {
			return nil, internalerr.WrapAs(internalerr.ErrMalformedRow, err, "product %d words", p.ID)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// BrandsForSource implements store.BrandSource.
func (s *Store) BrandsForSource(ctx context.Context, sourceID, categoryID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT DISTINCT brand_node_id
FROM products
WHERE source_id = ? AND category_id = ? AND brand_node_id <> 0
ORDER BY brand_node_id;
`, sourceID, categoryID)
	if err != nil {
		return nil, errors.Wrap(err, "query source brands")
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// Get implements store.ArtifactStore.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		blob    []byte
		expires int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT blob, expires_at FROM artifacts WHERE key = ?`, key).Scan(&blob, &expires)
	if err == sql.ErrNoRows {
		return nil, internalerr.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query artifact")
	}
	if s.expired(expires) {
		return nil, internalerr.ErrNotFound
	}
	return blob, nil
}

// Put implements store.ArtifactStore. A non-positive ttl never expires.
func (s *Store) Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error {
	now := s.now()
	var expires int64
	if ttl > 0 {
		expires = now.Add(ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO artifacts (key, blob, modified_at, expires_at) VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	blob=excluded.blob,
	modified_at=excluded.modified_at,
	expires_at=excluded.expires_at;
`, key, blob, now.UnixNano(), expires)
	return errors.Wrap(err, "upsert artifact")
}

// Modified implements store.ArtifactStore.
func (s *Store) Modified(ctx context.Context, key string) (time.Time, error) {
	var modified, expires int64
	err := s.db.QueryRowContext(ctx, `SELECT modified_at, expires_at FROM artifacts WHERE key = ?`, key).Scan(&modified, &expires)
	if err == sql.ErrNoRows {
		return time.Time{}, internalerr.ErrNotFound
	}
	if err != nil {
		return time.Time{}, errors.Wrap(err, "query artifact")
	}
	if s.expired(expires) {
		return time.Time{}, internalerr.ErrNotFound
	}
	return time.Unix(0, modified).UTC(), nil
}

// Delete implements store.ArtifactStore.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM artifacts WHERE key = ?`, key)
	return errors.Wrap(err, "delete artifact")
}

func (s *Store) expired(expires int64) bool {
	return expires != 0 && s.now().UnixNano() >= expires
}

func nameWords(name string) []string {
	return uniqueLower(strings.FieldsFunc(name, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ',' || r == '-' || r == '/'
	}))
}

func uniqueLower(in []string) []string {
	set := make(map[string]struct{}, len(in))
	var out []string
	for _, val := range in {
		val = strings.ToLower(strings.TrimSpace(val))
		if val == "" {
			continue
		}
		if _, ok := set[val]; ok {
			continue
		}
		set[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

var (
	_ store.Catalog         = (*Store)(nil)
	_ store.ProductSearcher = (*Store)(nil)
	_ store.BrandSource     = (*Store)(nil)
	_ store.ArtifactStore   = (*Store)(nil)
)
