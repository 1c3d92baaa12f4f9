package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/index"
	"github.com/cognicore/lexmatch/pkg/lexmatch/ingest"
	"github.com/cognicore/lexmatch/pkg/lexmatch/rank"
	"github.com/cognicore/lexmatch/pkg/lexmatch/stoplist"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

func catalog() []store.CatalogRow {
	return []store.CatalogRow{
		{ID: 1, CategoryID: 1, EntityID: 101, AttributeCode: "wine_type", TextValue: "Vintage Port", BaseValue: "Port"},
		{ID: 2, CategoryID: 1, EntityID: 201, AttributeCode: "brand", TextValue: "Warre's"},
		{ID: 3, CategoryID: 1, EntityID: 102, AttributeCode: "wine_type", TextValue: "Ruby Port"},
		{ID: 4, CategoryID: 1, EntityID: 103, AttributeCode: "wine_type", TextValue: "Tawny Port"},
		{ID: 5, CategoryID: 1, EntityID: 104, AttributeCode: "wine_type", TextValue: "Rose"},
		{ID: 6, CategoryID: 1, EntityID: 105, AttributeCode: "color", TextValue: "Rose"},
		{ID: 7, CategoryID: 1, EntityID: 106, AttributeCode: "color", TextValue: "Rosé"},
		{ID: 12, CategoryID: 1, EntityID: 111, AttributeCode: "style", TextValue: "Port"},
		{ID: 20, CategoryID: 1, EntityID: 301, AttributeCode: "brand", TextValue: "Taylor"},
		{ID: 21, CategoryID: 1, EntityID: 302, AttributeCode: "brand", TextValue: "Graham"},
		{ID: 30, CategoryID: 1, EntityID: 401, AttributeCode: "varietal", TextValue: "Cabernet"},
	}
}

func extractor(t *testing.T, matching config.Matching, products store.ProductSearcher) *Extractor {
	t.Helper()
	snap, report := index.NewBuilder(matching, nil, nil).Build(1, catalog())
	require.Empty(t, report.Skipped)
	return NewExtractor(snap, matching, products, nil)
}

func request(sentence string) Request {
	qt := ingest.NewNormalizer(nil, nil).Tokenize(sentence)
	return Request{
		SourceID:   7,
		CategoryID: 1,
		Tokens:     qt.Literal,
		Keys:       qt.Keys,
		Origins:    qt.Origins,
		Stopwords:  stoplist.NewManager(stoplist.DefaultTerms).Positions(qt.Keys),
	}
}

func ids(matches []Match) []int64 {
	out := make([]int64, len(matches))
	for i, m := range matches {
		out[i] = m.Candidate.Entity.ID
	}
	return out
}

type fakeProducts struct {
	items []store.Product
	err   error
	calls []int64
	words []string
}

func (f *fakeProducts) FindProducts(_ context.Context, brandNodeID, _, _ int64, words []string) ([]store.Product, error) {
	f.calls = append(f.calls, brandNodeID)
	f.words = words
	return f.items, f.err
}

func TestExtractBrandAndType(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)
	req := request("warre's vintage port 375ml half-bottle 2016")

	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, out.Matches, 2)
	assert.Equal(t, []int64{1, 2}, ids(out.Matches))

	first := out.Matches[0]
	assert.Equal(t, 1, first.Start)
	assert.Equal(t, 2, first.End)
	assert.Equal(t, "vintage port", first.Text)
	assert.False(t, first.Exact)

	second := out.Matches[1]
	assert.Equal(t, 0, second.Start)
	assert.Equal(t, 0, second.End)
	assert.Equal(t, "warre's", second.Text)
	assert.Greater(t, first.Score, second.Score)

	assert.Equal(t, []int{3, 4, 5}, out.Leftover)
	assert.Equal(t, []string{"375ml", "half-bottle", "2016"}, LeftoverTokens(req.Tokens, out.Leftover))
	assert.Equal(t, 2, out.Iterations)
}

func TestExtractSpansNeverOverlap(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)
	sentences := []string{
		"warre's vintage port 375ml half-bottle 2016",
		"taylor graham tawny port",
		"the ruby port and rose",
		"port port port",
	}
	for _, s := range sentences {
		req := request(s)
		out, err := x.Extract(context.Background(), req)
		require.NoError(t, err, s)

		covered := make(map[int]int)
		for _, m := range out.Matches {
			assert.LessOrEqual(t, m.Start, m.End, s)
			for i := m.Start; i <= m.End; i++ {
				covered[i]++
			}
		}
		for i, n := range covered {
			assert.Equal(t, 1, n, "%q position %d", s, i)
		}
		for _, i := range out.Leftover {
			assert.NotContains(t, covered, i, s)
		}
		assert.Equal(t, len(req.Tokens), len(covered)+len(out.Leftover), s)
		assert.LessOrEqual(t, out.Iterations, len(req.Keys)+1, s)
	}
}

func TestExtractExactMatch(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	out, err := x.Extract(context.Background(), request("Vintage Port"))
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)

	m := out.Matches[0]
	assert.True(t, m.Exact)
	assert.Equal(t, int64(1), m.Candidate.Entity.ID)
	assert.InDelta(t, 1000, m.Score, 1e-9)
	assert.Equal(t, 0, m.Start)
	assert.Equal(t, 1, m.End)
	assert.Equal(t, x.snap.IDF("vintage"), m.MaxIDF)
	assert.Empty(t, out.Leftover)
}

func TestExtractExactMatchIgnoresStopwords(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)
	req := request("the vintage port")

	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	assert.True(t, out.Matches[0].Exact)
	assert.Equal(t, 1, out.Matches[0].Start)
	assert.Equal(t, 2, out.Matches[0].End)
	assert.Equal(t, []string{"the"}, LeftoverTokens(req.Tokens, out.Leftover))
}

func TestExtractExactDisambiguation(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	out, err := x.Extract(context.Background(), request("rose"))
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, int64(5), out.Matches[0].Candidate.Entity.ID)

	req := request("rose")
	req.OrderedCodes = []string{"color", "wine_type"}
	out, err = x.Extract(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, int64(6), out.Matches[0].Candidate.Entity.ID)

	req = request("rose")
	req.AllowedCodes = []string{"color"}
	out, err = x.Extract(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, int64(6), out.Matches[0].Candidate.Entity.ID)
}

func TestExtractDisallowBrand(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	req := request("warre's")
	req.DisallowBrand = true
	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, out.Matches)
	assert.Equal(t, []int{0}, out.Leftover)

	req = request("taylor vintage port")
	req.DisallowBrand = true
	out, err = x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ids(out.Matches))
	assert.Equal(t, []int{0}, out.Leftover)
}

func TestExtractMultipleBrands(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	out, err := x.Extract(context.Background(), request("taylor graham"))
	require.NoError(t, err)
	// the brand penalty grows with query position
	assert.Equal(t, []int64{20, 21}, ids(out.Matches))
}

func TestExtractSingleBrand(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	req := request("taylor graham")
	req.SingleBrand = true
	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{20}, ids(out.Matches))
	assert.Equal(t, []int{1}, out.Leftover)
}

func TestExtractPrefersSourceBrand(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	req := request("taylor graham")
	req.SingleBrand = true
	req.SourceBrands = []int64{302}
	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{21}, ids(out.Matches))
	assert.Equal(t, []int{0}, out.Leftover)
}

func TestExtractHumanBrandGate(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	req := request("taylor graham")
	req.Human = true
	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, out.Matches, "single-word brands need source support")

	req.SourceBrands = []int64{302}
	out, err = x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{21}, ids(out.Matches))
}

func TestExtractFuzzy(t *testing.T) {
	matching := config.DefaultMatching()
	matching.MinIDFCutoff = 2.0
	x := extractor(t, matching, nil)

	out, err := x.Extract(context.Background(), request("cabernat"))
	require.NoError(t, err)
	assert.Empty(t, out.Matches)

	req := request("cabernat")
	req.AllowFuzzy = true
	out, err = x.Extract(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	m := out.Matches[0]
	assert.Equal(t, int64(30), m.Candidate.Entity.ID)
	assert.Equal(t, "cabernat", m.Text)
	assert.InDelta(t, 0.88, m.Candidate.Matched[0].Score, 1e-9)
	assert.Greater(t, m.Score, 0.0)
	assert.Empty(t, out.Leftover)

	req = request("cabernay")
	req.AllowFuzzy = true
	out, err = x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, out.Matches, "too far from cabernet at the default threshold")
	assert.Equal(t, []int{0}, out.Leftover)
}

func TestExtractProducts(t *testing.T) {
	products := &fakeProducts{items: []store.Product{
		{ID: 9001, BrandNodeID: 201, NonAttributeWords: []string{"otima"}},
		{ID: 9002, BrandNodeID: 201, NonAttributeWords: []string{"Vintage"}},
		{ID: 9002, BrandNodeID: 201, NonAttributeWords: []string{"vintage"}},
	}}
	x := extractor(t, config.DefaultMatching(), products)

	req := request("warre's vintage port")
	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, out.ProductIDs)
	assert.Empty(t, products.calls)

	req.CheckProducts = true
	out, err = x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []int64{9002}, out.ProductIDs)
	assert.Equal(t, []int64{201}, products.calls)
	assert.Equal(t, req.Keys, products.words)
}

func TestExtractProductSearchFailure(t *testing.T) {
	products := &fakeProducts{err: errors.New("db down")}
	x := extractor(t, config.DefaultMatching(), products)

	req := request("warre's vintage port")
	req.CheckProducts = true
	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, out.Matches, 2)
	assert.Empty(t, out.ProductIDs)
}

func TestExtractIgnoresCanceledContext(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out, err := x.Extract(ctx, request("warre's vintage port"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 2}, ids(out.Matches))
	assert.Empty(t, out.Leftover)
}

func TestExtractSplitTokenSpans(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)
	req := request("Warre's Vintage-Port 375ml")
	require.Equal(t, []string{"warre", "vintage", "port", "375ml"}, req.Keys)

	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Matches, 2)

	byID := map[int64]Match{}
	for _, m := range out.Matches {
		byID[m.Candidate.Entity.ID] = m
	}
	port := byID[1]
	assert.Equal(t, 1, port.Start)
	assert.Equal(t, 1, port.End)
	assert.Equal(t, "Vintage-Port", port.Text)

	brand := byID[2]
	assert.Equal(t, 0, brand.Start)
	assert.Equal(t, "Warre's", brand.Text)

	assert.Equal(t, []string{"375ml"}, LeftoverTokens(req.Tokens, out.Leftover))
}

func TestExtractPartlyConsumedTokenIsNotLeftover(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)
	req := request("Cabernet-Merlot")

	out, err := x.Extract(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, out.Matches, 1)
	assert.Equal(t, int64(30), out.Matches[0].Candidate.Entity.ID)
	assert.Equal(t, "Cabernet-Merlot", out.Matches[0].Text)
	assert.Empty(t, out.Leftover)
}

func TestExtractEmpty(t *testing.T) {
	x := extractor(t, config.DefaultMatching(), nil)

	out, err := x.Extract(context.Background(), request(""))
	require.NoError(t, err)
	assert.Empty(t, out.Matches)
	assert.Empty(t, out.Leftover)

	out, err = x.Extract(context.Background(), request("the and"))
	require.NoError(t, err)
	assert.Empty(t, out.Matches)
	assert.Equal(t, []int{0, 1}, out.Leftover)
}

func brandCandidate(id, entityID int64, score float64) *rank.Candidate {
	return &rank.Candidate{
		Entity:     &index.Entity{ID: id, EntityID: entityID, AttributeCode: index.BrandCode},
		FinalScore: score,
	}
}

func TestPreferSourceBrands(t *testing.T) {
	x := &Extractor{matching: config.DefaultMatching(), logger: zap.NewNop()}
	source := map[int64]struct{}{302: {}}

	cases := []struct {
		name    string
		ranked  []*rank.Candidate
		swapped bool
	}{
		{"close scores", []*rank.Candidate{brandCandidate(1, 301, 10), brandCandidate(2, 302, 8)}, true},
		{"gap too wide", []*rank.Candidate{brandCandidate(1, 301, 10), brandCandidate(2, 302, 7)}, false},
		{"first already known", []*rank.Candidate{brandCandidate(1, 302, 10), brandCandidate(2, 303, 9)}, false},
		{"second unknown", []*rank.Candidate{brandCandidate(1, 301, 10), brandCandidate(2, 303, 9)}, false},
		{"not both brands", []*rank.Candidate{
			{Entity: &index.Entity{ID: 1, EntityID: 301, AttributeCode: "wine_type"}, FinalScore: 10},
			brandCandidate(2, 302, 9),
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first, second := tc.ranked[0], tc.ranked[1]
			got := x.preferSourceBrands(tc.ranked, source)
			if tc.swapped {
				assert.Same(t, second, got[0])
				assert.Same(t, first, got[1])
			} else {
				assert.Same(t, first, got[0])
				assert.Same(t, second, got[1])
			}
		})
	}
}

func TestSelectTopSkipsGappedCandidates(t *testing.T) {
	gapped := &rank.Candidate{Matched: []rank.WordMatch{{QueryIndex: 0}, {QueryIndex: 2}}, FinalScore: 9}
	exact := &rank.Candidate{Matched: []rank.WordMatch{{QueryIndex: 0}, {QueryIndex: 2}}, Exact: true, FinalScore: 8}
	tight := &rank.Candidate{Matched: []rank.WordMatch{{QueryIndex: 3}}, FinalScore: 7}

	top, at := selectTop([]*rank.Candidate{gapped, tight})
	assert.Same(t, tight, top)
	assert.Equal(t, 1, at)

	top, _ = selectTop([]*rank.Candidate{gapped, exact, tight})
	assert.Same(t, exact, top)

	top, at = selectTop([]*rank.Candidate{gapped})
	assert.Nil(t, top)
	assert.Equal(t, -1, at)
}

func TestExtractNonASCIIBrand(t *testing.T) {
	matching := config.DefaultMatching()
	rows := append(catalog(), store.CatalogRow{ID: 50, CategoryID: 1, EntityID: 501, AttributeCode: "brand", TextValue: "Løvenskiold"})
	snap, _ := index.NewBuilder(matching, nil, nil).Build(1, rows)
	x := NewExtractor(snap, matching, nil, nil)

	out, err := x.Extract(context.Background(), request("Løvenskiold ruby port"))
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{50, 3}, ids(out.Matches))
	assert.Empty(t, out.Leftover)
}
