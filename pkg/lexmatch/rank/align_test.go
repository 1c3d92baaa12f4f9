package rank

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/index"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

func alignSnapshot(t *testing.T) *index.Snapshot {
	t.Helper()
	rows := []store.CatalogRow{
		{ID: 1, EntityID: 11, AttributeCode: "varietal", TextValue: "Cabernet Sauvignon"},
		{ID: 2, EntityID: 12, AttributeCode: "style", TextValue: "Cabs"},
		{ID: 3, EntityID: 13, AttributeCode: "brand", TextValue: "Warre"},
		{ID: 4, EntityID: 14, AttributeCode: "wine_type", TextValue: "Port"},
		{ID: 5, EntityID: 15, AttributeCode: "varietal", TextValue: "Merlot"},
		{ID: 6, EntityID: 16, AttributeCode: "style", TextValue: "Ports"},
		{ID: 7, EntityID: 17, AttributeCode: "wine_type", TextValue: "Ruby Port"},
	}
	snap, report := index.NewBuilder(config.DefaultMatching(), nil, nil).Build(1, rows)
	require.Empty(t, report.Skipped)
	return snap
}

func TestAlignExact(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)

	matched, unmatched := a.Align(Query{Words: []string{"cabernet", "sauvignon"}}, []string{"cabernet", "sauvignon"}, false)
	require.Len(t, matched, 2)
	assert.Empty(t, unmatched)
	assert.Equal(t, 1.0, matched[0].Score)
	assert.Equal(t, 0, matched[0].QueryIndex)
	assert.Equal(t, 1, matched[1].QueryIndex)
	assert.Equal(t, snap.IDF("sauvignon"), matched[1].IDF)
}

func TestAlignFuzzyToggle(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)
	q := Query{Words: []string{"cabernat"}}

	matched, unmatched := a.Align(q, []string{"cabernet"}, false)
	assert.Empty(t, matched)
	require.Len(t, unmatched, 1)
	assert.Equal(t, -1, unmatched[0].QueryIndex)

	matched, _ = a.Align(q, []string{"cabernet"}, true)
	require.Len(t, matched, 1)
	assert.InDelta(t, 0.88, matched[0].Score, 1e-9)
	assert.Equal(t, "cabernat", matched[0].QueryToken)
	assert.Equal(t, snap.IDF("cabernet"), matched[0].IDF)
}

func TestAlignFuzzyBelowThreshold(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)

	matched, unmatched := a.Align(Query{Words: []string{"cabernay"}}, []string{"cabernet"}, true)
	assert.Empty(t, matched, "ratio 75 is under the default threshold of 80")
	assert.Len(t, unmatched, 1)

	m := config.DefaultMatching()
	m.FuzzyThreshold = 70
	matched, _ = NewAligner(snap, m, nil, nil).Align(Query{Words: []string{"cabernay"}}, []string{"cabernet"}, true)
	require.Len(t, matched, 1)
	assert.InDelta(t, 0.75, matched[0].Score, 1e-9)
}

func TestAlignFuzzyPenalizesDictionaryWords(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)

	matched, _ := a.Align(Query{Words: []string{"port"}}, []string{"ports"}, true)
	require.Len(t, matched, 1)
	assert.InDelta(t, 0.84, matched[0].Score, 1e-9)
	assert.Equal(t, snap.IDF("port"), matched[0].IDF, "capped by the query word's idf")
}

func TestAlignShortWordsOnlyPlural(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)

	matched, _ := a.Align(Query{Words: []string{"cab"}}, []string{"cabs"}, true)
	require.Len(t, matched, 1)
	assert.InDelta(t, 0.86, matched[0].Score, 1e-9)

	matched, _ = a.Align(Query{Words: []string{"caz"}}, []string{"cabs"}, true)
	assert.Empty(t, matched)

	matched, _ = a.Align(Query{Words: []string{"ca"}}, []string{"cab"}, true)
	assert.Empty(t, matched)
}

func TestAlignRequiresSameFirstLetter(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)

	matched, _ := a.Align(Query{Words: []string{"kabernet"}}, []string{"cabernet"}, true)
	assert.Empty(t, matched)
}

func TestAlignSkipsBlockedAndEmpty(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)

	q := Query{Words: []string{"cabernet", "", "sauvignon"}, Blocked: []bool{true, false, false}}
	matched, unmatched := a.Align(q, []string{"cabernet", "sauvignon"}, false)
	require.Len(t, matched, 1)
	assert.Equal(t, 2, matched[0].QueryIndex)
	require.Len(t, unmatched, 1)
	assert.Equal(t, "cabernet", unmatched[0].Token)
	assert.Equal(t, []string{"sauvignon"}, q.OpenWords())
}

func TestAlignUsesEachQueryWordOnce(t *testing.T) {
	snap := alignSnapshot(t)
	a := NewAligner(snap, config.DefaultMatching(), nil, nil)

	matched, unmatched := a.Align(Query{Words: []string{"port"}}, []string{"port", "port"}, false)
	assert.Len(t, matched, 1)
	assert.Len(t, unmatched, 1)
}

func TestAlignLemmaIDF(t *testing.T) {
	snap := alignSnapshot(t)
	require.Less(t, snap.IDF("port"), snap.IDF("cabernet"))

	a := NewAligner(snap, config.DefaultMatching(), map[string]string{"cabernat": "port"}, nil)
	matched, _ := a.Align(Query{Words: []string{"cabernat"}}, []string{"cabernet"}, true)
	require.Len(t, matched, 1)
	assert.Equal(t, snap.IDF("port"), matched[0].IDF)
}

func TestAlignIDFCeiling(t *testing.T) {
	snap := alignSnapshot(t)
	m := config.DefaultMatching()
	m.HigherIDFCutoff = 1.5
	a := NewAligner(snap, m, nil, nil)

	matched, _ := a.Align(Query{Words: []string{"cabernat"}}, []string{"cabernet"}, true)
	require.Len(t, matched, 1)
	assert.Equal(t, 1.5, matched[0].IDF)
}
