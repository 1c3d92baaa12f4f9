package index

import (
	"time"
)

// BrandCode is the attribute code of brand entities.
const BrandCode = "brand"

// Entity is one indexed dictionary entry
type Entity struct {
	ID                 int64    `json:"id"`
	EntityID           int64    `json:"entity_id"`
	AttributeID        int64    `json:"attribute_id"`
	AttributeCode      string   `json:"attribute_code"`
	CategoryID         int64    `json:"category_id"`
	Text               string   `json:"text"`
	OriginalText       string   `json:"original_text"`
	BaseValue          string   `json:"base_value,omitempty"`
	Words              []string `json:"words"`
	Insufficient       []string `json:"insufficient_prefixes,omitempty"`
	MaxIDF             float64  `json:"max_idf"`
	RequireAllWords    bool     `json:"require_all_words,omitempty"`
	DerivedDefinition  string   `json:"derived_definition,omitempty"`
	DerivedGuides      []string `json:"derived_guides,omitempty"`
	AncestorNodeLength int      `json:"ancestor_node_length"`
}

// IsBrand reports whether the entity names a brand.
func (e *Entity) IsBrand() bool {
	return e.AttributeCode == BrandCode
}

// WordCount is the number of normalized words.
func (e *Entity) WordCount() int {
	return len(e.Words)
}

// IsInsufficient reports whether prefix is too common to retrieve e.
func (e *Entity) IsInsufficient(prefix string) bool {
	for _, p := range e.Insufficient {
		if p == prefix {
			return true
		}
	}
	return false
}

// Snapshot is an immutable, self-consistent set of index artifacts.
// Readers share it without locking; rebuilds produce a new Snapshot.
type Snapshot struct {
	Version    string             `json:"version"`
	CategoryID int64              `json:"category_id"`
	BuiltAt    time.Time          `json:"built_at"`
	CutoffIDF  float64            `json:"cutoff_idf"`
	Entities   []*Entity          `json:"entities"` // descending MaxIDF
	Text       map[string][]int64 `json:"text"`
	Prefixes   map[string][]int64 `json:"prefixes"`
	WordIDF    map[string]float64 `json:"word_idf"`

	byID  map[int64]*Entity
	order map[int64]int
}

func (s *Snapshot) reindex() {
	s.byID = make(map[int64]*Entity, len(s.Entities))
	s.order = make(map[int64]int, len(s.Entities))
	for i, e := range s.Entities {
		s.byID[e.ID] = e
		s.order[e.ID] = i
	}
}

// Entity returns the entity with the given dictionary id.
func (s *Snapshot) Entity(id int64) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// Len is the number of indexed entities.
func (s *Snapshot) Len() int {
	return len(s.Entities)
}

// IDF returns the inverse document frequency of word, or 0 if unknown.
func (s *Snapshot) IDF(word string) float64 {
	return s.WordIDF[word]
}

// Rank is the position of id in descending-MaxIDF order, used to break
// score ties deterministically.
func (s *Snapshot) Rank(id int64) int {
	if r, ok := s.order[id]; ok {
		return r
	}
	return len(s.Entities)
}

// ExactIDs returns the entities whose normalized text equals text.
func (s *Snapshot) ExactIDs(text string) []int64 {
	return s.Text[text]
}

// Disambiguate picks one id from an ambiguous text entry: the first id
// whose attribute code appears earliest in orderedCodes, otherwise the
// first id.
func (s *Snapshot) Disambiguate(ids []int64, orderedCodes []string) (int64, bool) {
	if len(ids) == 0 {
		return 0, false
	}
	for _, code := range orderedCodes {
		for _, id := range ids {
			if e, ok := s.byID[id]; ok && e.AttributeCode == code {
				return id, true
			}
		}
	}
	return ids[0], true
}

// Age is how long ago the snapshot was built.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.BuiltAt)
}
