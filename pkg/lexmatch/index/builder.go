package index

import (
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/ingest"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

// Builder turns catalog rows into a Snapshot
type Builder struct {
	matching config.Matching
	pipeline *ingest.Pipeline
	logger   *zap.Logger
	now      func() time.Time
}

// NewBuilder creates a builder. A nil pipeline uses default normalization
// and stopwords; a nil logger discards output.
func NewBuilder(matching config.Matching, pipeline *ingest.Pipeline, logger *zap.Logger) *Builder {
	if pipeline == nil {
		pipeline = ingest.NewPipeline(nil, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{matching: matching, pipeline: pipeline, logger: logger, now: time.Now}
}

// WithClock sets the clock stamped into built snapshots.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	if now != nil {
		b.now = now
	}
	return b
}

// Report summarizes one build
type Report struct {
	Rows    int
	Indexed int
	Skipped []Skip
}

// Skip records a row that was not indexed
type Skip struct {
	ID     int64
	Reason string
}

// Build indexes rows for a category. Malformed rows are skipped and
// reported, never fatal.
func (b *Builder) Build(categoryID int64, rows []store.CatalogRow) (*Snapshot, Report) {
	report := Report{Rows: len(rows)}
	entities := make([]*Entity, 0, len(rows))
	seen := make(map[int64]struct{}, len(rows))

	for _, row := range rows {
		if reason := validate(row, seen); reason != "" {
			report.Skipped = append(report.Skipped, Skip{ID: row.ID, Reason: reason})
			b.logger.Warn("skipping catalog row", zap.Int64("id", row.ID), zap.String("reason", reason))
			continue
		}
		seen[row.ID] = struct{}{}

		processed := b.pipeline.Process(row.TextValue)
		ancestor := -1
		if row.AncestorNodeLength != nil {
			ancestor = *row.AncestorNodeLength
		}
		entities = append(entities, &Entity{
			ID:                 row.ID,
			EntityID:           row.EntityID,
			AttributeID:        row.AttributeID,
			AttributeCode:      strings.TrimSpace(row.AttributeCode),
			CategoryID:         row.CategoryID,
			Text:               processed.Text,
			OriginalText:       row.TextValue,
			BaseValue:          row.BaseValue,
			Words:              processed.Words,
			RequireAllWords:    row.RequireAllWords,
			DerivedDefinition:  row.DerivedDefinition,
			DerivedGuides:      row.DerivedGuides,
			AncestorNodeLength: ancestor,
		})
	}
	report.Indexed = len(entities)

	docs := make([]string, len(entities))
	for i, e := range entities {
		docs[i] = e.Text
	}
	idf := ComputeIDF(docs)

	values := make([]float64, 0, len(idf))
	for _, v := range idf {
		values = append(values, v)
	}
	cutoff := Percentile(values, b.matching.IDFCutoffPercentile)

	for _, e := range entities {
		e.MaxIDF = b.maxIDF(e, idf)
		e.Insufficient = insufficientPrefixes(e.Words, idf, cutoff)
	}

	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].MaxIDF > entities[j].MaxIDF
	})

	snap := &Snapshot{
		Version:    ulid.MustNew(ulid.Timestamp(b.now()), ulid.DefaultEntropy()).String(),
		CategoryID: categoryID,
		BuiltAt:    b.now().UTC(),
		CutoffIDF:  cutoff,
		Entities:   entities,
		Text:       textIndex(entities),
		Prefixes:   prefixIndex(entities),
		WordIDF:    idf,
	}
	snap.reindex()
	return snap, report
}

func validate(row store.CatalogRow, seen map[int64]struct{}) string {
	switch {
	case row.ID <= 0:
		return "missing id"
	case strings.TrimSpace(row.TextValue) == "":
		return "empty text_value"
	case strings.TrimSpace(row.AttributeCode) == "":
		return "missing attribute_code"
	}
	if _, dup := seen[row.ID]; dup {
		return "duplicate id"
	}
	return ""
}

func (b *Builder) maxIDF(e *Entity, idf map[string]float64) float64 {
	var sum float64
	for _, w := range e.Words {
		v, ok := idf[w]
		if !ok {
			b.logger.Debug("word missing from idf table", zap.Int64("id", e.ID), zap.String("word", w))
			continue
		}
		sum += v
	}
	sum *= b.matching.PerfectBonus
	if n := len(e.Words); n > 1 {
		sum *= 1 + float64(n)*b.matching.NgramBonus
	}
	return sum
}

// insufficientPrefixes lists prefixes of words too common to retrieve the
// entity on their own. An entity made only of common words keeps all of
// its prefixes.
func insufficientPrefixes(words []string, idf map[string]float64, cutoff float64) []string {
	var out []string
	count := 0
	for _, w := range words {
		v, ok := idf[w]
		if !ok || v >= cutoff {
			continue
		}
		count++
		p := Prefix(w)
		if !containsString(out, p) {
			out = append(out, p)
		}
	}
	if count == len(words) {
		return nil
	}
	return out
}

// textIndex maps normalized text to entity ids. The first entity wins;
// later entities with the same text join the list only when their
// attribute code differs from every id already listed.
func textIndex(entities []*Entity) map[string][]int64 {
	out := make(map[string][]int64, len(entities))
	codes := make(map[string][]string, len(entities))
	for _, e := range entities {
		ids, ok := out[e.Text]
		if !ok {
			out[e.Text] = []int64{e.ID}
			codes[e.Text] = []string{e.AttributeCode}
			continue
		}
		if containsString(codes[e.Text], e.AttributeCode) {
			continue
		}
		out[e.Text] = append(ids, e.ID)
		codes[e.Text] = append(codes[e.Text], e.AttributeCode)
	}
	return out
}

func prefixIndex(entities []*Entity) map[string][]int64 {
	out := make(map[string][]int64)
	for _, e := range entities {
		var done []string
		for _, w := range e.Words {
			p := Prefix(w)
			if containsString(done, p) {
				continue
			}
			done = append(done, p)
			out[p] = append(out[p], e.ID)
		}
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
