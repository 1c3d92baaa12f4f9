package store

import (
	"context"
	"strconv"
	"time"
)

// CatalogRow is one dictionary entry as read from a catalog source
type CatalogRow struct {
	ID                 int64    `json:"id"`
	CategoryID         int64    `json:"category_id"`
	AttributeID        int64    `json:"attribute_id"`
	EntityID           int64    `json:"entity_id"` // taxonomy node id
	TextValue          string   `json:"text_value"`
	BaseValue          string   `json:"base_value,omitempty"`
	AttributeCode      string   `json:"attribute_code"`
	RequireAllWords    bool     `json:"is_require_all_words,omitempty"`
	DerivedDefinition  string   `json:"derived_definition,omitempty"`
	DerivedGuides      []string `json:"derived_guides,omitempty"`
	AncestorNodeLength *int     `json:"ancestor_node_length,omitempty"`
}

// Catalog streams dictionary rows for a category
type Catalog interface {
	EachRow(ctx context.Context, categoryID int64, fn func(CatalogRow) error) error
}

// Product is a catalog product that may be linked to a matched brand
type Product struct {
	ID                int64    `json:"id"`
	SourceID          int64    `json:"source_id"`
	CategoryID        int64    `json:"category_id"`
	BrandNodeID       int64    `json:"brand_node_id"`
	Name              string   `json:"name"`
	NonAttributeWords []string `json:"non_attribute_words"`
}

// ProductSearcher finds products for a brand. Implementations return
// products of the requesting source first.
type ProductSearcher interface {
	FindProducts(ctx context.Context, brandNodeID, sourceID, categoryID int64, words []string) ([]Product, error)
}

// BrandSource lists the brand taxonomy nodes a source carries
type BrandSource interface {
	BrandsForSource(ctx context.Context, sourceID, categoryID int64) ([]int64, error)
}

// ArtifactStore persists serialized index snapshots. Get returns
// internalerr.ErrNotFound for absent or expired keys.
type ArtifactStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, blob []byte, ttl time.Duration) error
	Modified(ctx context.Context, key string) (time.Time, error)
	Delete(ctx context.Context, key string) error
}

// ArtifactKey scopes an artifact key to a category.
func ArtifactKey(prefix string, categoryID int64) string {
	return prefix + ":" + strconv.FormatInt(categoryID, 10)
}
