package query

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/index"
	"github.com/cognicore/lexmatch/pkg/lexmatch/ingest"
	"github.com/cognicore/lexmatch/pkg/lexmatch/rank"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

// Request is one tokenized lookup
type Request struct {
	SourceID   int64
	CategoryID int64

	Tokens    []string        // literal query tokens
	Keys      []string        // match keys
	Origins   []ingest.Origin // literal range per key; nil when Keys and Tokens align
	Stopwords []int           // key positions that never match

	SingleBrand   bool // at most one brand per query
	DisallowBrand bool
	AllowFuzzy    bool
	Human         bool // typed by a person; unknown brands need strong evidence
	CheckProducts bool

	OrderedCodes   []string // attribute code priority for ambiguous text
	AttributeWords []string // nil uses the configured list
	AllowedCodes   []string // empty allows every code
	SourceBrands   []int64  // brand taxonomy nodes carried by the source
	Lemmas         map[string]string
}

// Match is one emitted entity and the query span it covers
type Match struct {
	Candidate *rank.Candidate
	Start     int // first literal token position
	End       int // last literal token position, inclusive
	Text      string
	MaxIDF    float64
	Score     float64
	Exact     bool
}

// Outcome is the result of an extraction
type Outcome struct {
	Matches    []Match
	ProductIDs []int64
	Leftover   []int // literal token positions not covered by a match, ascending
	Iterations int
}

// Extractor runs the greedy extraction loop over one snapshot
type Extractor struct {
	snap     *index.Snapshot
	matching config.Matching
	scorer   *rank.Scorer
	products store.ProductSearcher
	logger   *zap.Logger
}

// NewExtractor creates an extractor. products may be nil.
func NewExtractor(snap *index.Snapshot, matching config.Matching, products store.ProductSearcher, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		snap:     snap,
		matching: matching,
		scorer:   rank.NewScorer(matching, logger),
		products: products,
		logger:   logger,
	}
}

// Scorer exposes the scorer so callers can install a reorder hook.
func (x *Extractor) Scorer() *rank.Scorer {
	return x.scorer
}

type state struct {
	req          Request
	query        rank.Query
	aligner      *rank.Aligner
	sc           rank.ScoreContext
	consumed     []bool
	sourceBrands map[int64]struct{}
	disallow     bool
	products     []int64
}

// Extract finds the entities mentioned in the request. Each iteration
// emits the best contiguous candidate, consumes its tokens and rescores
// the candidates it overlapped, until nothing with a positive score
// remains. Emitted spans never overlap. The loop runs to completion once
// started; ctx only bounds product searches.
func (x *Extractor) Extract(ctx context.Context, req Request) (Outcome, error) {
	n := len(req.Keys)
	blocked := make([]bool, n)
	for _, i := range req.Stopwords {
		if i >= 0 && i < n {
			blocked[i] = true
		}
	}

	attrWords := req.AttributeWords
	if attrWords == nil {
		attrWords = x.matching.AttributeWords
	}
	st := &state{
		req:      req,
		query:    rank.Query{Words: req.Keys, Blocked: blocked},
		aligner:  rank.NewAligner(x.snap, x.matching, req.Lemmas, x.logger),
		consumed: make([]bool, n),
		disallow: req.DisallowBrand,
		sc: rank.ScoreContext{
			QueryLen:       n,
			CategoryWords:  x.matching.CategoryWords,
			AttributeWords: attrWords,
		},
		sourceBrands: make(map[int64]struct{}, len(req.SourceBrands)),
	}
	for _, id := range req.SourceBrands {
		st.sourceBrands[id] = struct{}{}
	}

	var out Outcome
	if c, ok := x.exactMatch(st); ok {
		out.Matches = append(out.Matches, x.emit(st, c))
		out.Iterations = 1
		for i := range st.consumed {
			st.consumed[i] = !blocked[i]
		}
		if c.Entity.IsBrand() && req.CheckProducts {
			x.collectProducts(ctx, st, c.Entity)
		}
		out.ProductIDs = st.products
		out.Leftover = st.leftover()
		return out, nil
	}

	ranked := x.scorer.Score(x.candidates(st), st.sc)
	x.logger.Debug("scored candidates", zap.Int("count", len(ranked)))

	for out.Iterations < n+1 {
		ranked = positive(ranked)
		ranked = x.preferSourceBrands(ranked, st.sourceBrands)

		top, at := selectTop(ranked)
		if top == nil {
			break
		}
		out.Iterations++
		out.Matches = append(out.Matches, x.emit(st, top))
		ranked = append(ranked[:at:at], ranked[at+1:]...)

		if req.SingleBrand && top.Entity.IsBrand() {
			ranked = withoutBrands(ranked)
			st.disallow = true
		}

		for _, qi := range top.QueryIndices() {
			blocked[qi] = true
			st.consumed[qi] = true
		}
		if top.Exact {
			for i := range st.consumed {
				if !st.consumed[i] && !isStop(req.Stopwords, i) {
					st.consumed[i] = true
					blocked[i] = true
				}
			}
			break
		}

		ranked = x.rescore(st, ranked, top)

		if top.Entity.IsBrand() && req.CheckProducts {
			x.collectProducts(ctx, st, top.Entity)
		}
	}

	out.ProductIDs = st.products
	out.Leftover = st.leftover()
	return out, nil
}

// exactMatch handles a query whose open words equal a dictionary text.
func (x *Extractor) exactMatch(st *state) (*rank.Candidate, bool) {
	var positions []int
	var words []string
	for i, w := range st.query.Words {
		if st.query.Open(i) {
			positions = append(positions, i)
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return nil, false
	}

	var ids []int64
	for _, id := range x.snap.ExactIDs(strings.Join(words, " ")) {
		e, ok := x.snap.Entity(id)
		if !ok || (st.disallow && e.IsBrand()) {
			continue
		}
		if len(st.req.AllowedCodes) > 0 && !contains(st.req.AllowedCodes, e.AttributeCode) {
			continue
		}
		ids = append(ids, id)
	}
	id, ok := x.snap.Disambiguate(ids, st.req.OrderedCodes)
	if !ok {
		return nil, false
	}
	e, _ := x.snap.Entity(id)
	if len(e.Words) != len(positions) {
		return nil, false
	}

	c := &rank.Candidate{Entity: e, Exact: true, FinalScore: x.matching.ExactMatchScore}
	for i, w := range e.Words {
		c.Matched = append(c.Matched, rank.WordMatch{
			QueryIndex: positions[i], CandidateIndex: i, Score: 1.0,
			Token: w, QueryToken: words[i], IDF: x.snap.IDF(w),
		})
	}
	return c, true
}

// candidates retrieves and aligns entities for the open query words,
// applying the brand gates that do not depend on scores.
func (x *Extractor) candidates(st *state) []*rank.Candidate {
	ids := x.snap.Candidates(st.query.OpenWords(), st.req.AllowedCodes)
	out := make([]*rank.Candidate, 0, len(ids))
	for _, id := range ids {
		e, ok := x.snap.Entity(id)
		if !ok || (st.disallow && e.IsBrand()) {
			continue
		}
		matched, unmatched := st.aligner.Align(st.query, e.Words, st.req.AllowFuzzy)
		if len(matched) == 0 {
			continue
		}
		c := &rank.Candidate{Entity: e, Matched: matched, Unmatched: unmatched}
		if st.req.Human && e.IsBrand() {
			if _, known := st.sourceBrands[e.EntityID]; !known &&
				(e.WordCount() < 2 || len(unmatched) > 0 || c.FuzzyCount() > 0) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// rescore drops candidates covered by top, realigns those that partly
// overlapped it against the remaining words, and keeps the rest.
func (x *Extractor) rescore(st *state, ranked []*rank.Candidate, top *rank.Candidate) []*rank.Candidate {
	taken := make(map[int]struct{})
	for _, qi := range top.QueryIndices() {
		taken[qi] = struct{}{}
	}

	kept := make([]*rank.Candidate, 0, len(ranked))
	var redo []*rank.Candidate
	for _, c := range ranked {
		idx := c.QueryIndices()
		overlap := 0
		for _, qi := range idx {
			if _, ok := taken[qi]; ok {
				overlap++
			}
		}
		switch {
		case overlap == len(idx):
			continue
		case overlap == 0:
			kept = append(kept, c)
			continue
		}

		e := c.Entity
		if st.disallow && e.IsBrand() {
			continue
		}
		matched, unmatched := st.aligner.Align(st.query, e.Words, true)
		if len(matched) == 0 {
			continue
		}
		nc := &rank.Candidate{Entity: e, Matched: matched, Unmatched: unmatched}
		if e.IsBrand() && nc.FuzzyCount() > 0 {
			continue
		}
		redo = append(redo, nc)
	}

	merged := append(kept, x.scorer.Score(redo, st.sc)...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].FinalScore > merged[j].FinalScore
	})
	return merged
}

// preferSourceBrands swaps the top two candidates when both are brands
// with close scores and only the second is carried by the source.
func (x *Extractor) preferSourceBrands(ranked []*rank.Candidate, sourceBrands map[int64]struct{}) []*rank.Candidate {
	if len(ranked) < 2 || len(sourceBrands) == 0 {
		return ranked
	}
	first, second := ranked[0], ranked[1]
	if !first.Entity.IsBrand() || !second.Entity.IsBrand() {
		return ranked
	}
	if _, ok := sourceBrands[first.Entity.EntityID]; ok {
		return ranked
	}
	if _, ok := sourceBrands[second.Entity.EntityID]; !ok {
		return ranked
	}

	hi, lo := first.FinalScore, second.FinalScore
	if lo > hi {
		hi, lo = lo, hi
	}
	if hi <= 0 || lo/hi <= x.matching.BrandSwapRatio {
		return ranked
	}
	ranked[0], ranked[1] = second, first
	x.logger.Debug("preferring source brand",
		zap.Int64("brand", second.Entity.ID), zap.Int64("over", first.Entity.ID))
	return ranked
}

func (x *Extractor) emit(st *state, c *rank.Candidate) Match {
	idx := c.QueryIndices()
	start, end := st.origin(idx[0]).From, st.origin(idx[len(idx)-1]).To
	var maxIDF float64
	for _, m := range c.Matched {
		if m.IDF > maxIDF {
			maxIDF = m.IDF
		}
	}
	return Match{
		Candidate: c,
		Start:     start,
		End:       end,
		Text:      strings.Join(st.req.Tokens[start:end+1], " "),
		MaxIDF:    maxIDF,
		Score:     c.FinalScore,
		Exact:     c.Exact,
	}
}

// collectProducts adds products of a matched brand that share a
// descriptive word with the query. Search failures are logged and
// otherwise ignored.
func (x *Extractor) collectProducts(ctx context.Context, st *state, brand *index.Entity) {
	if x.products == nil {
		return
	}
	found, err := x.products.FindProducts(ctx, brand.EntityID, st.req.SourceID, st.req.CategoryID, st.req.Keys)
	if err != nil {
		x.logger.Warn("product search failed", zap.Int64("brand_node", brand.EntityID), zap.Error(err))
		return
	}
	for _, p := range found {
		if !sharesWord(p.NonAttributeWords, st.req.Keys) || containsID(st.products, p.ID) {
			continue
		}
		st.products = append(st.products, p.ID)
	}
}

func selectTop(ranked []*rank.Candidate) (*rank.Candidate, int) {
	for i, c := range ranked {
		if c.Exact || c.Contiguous() {
			return c, i
		}
	}
	return nil, -1
}

func positive(ranked []*rank.Candidate) []*rank.Candidate {
	out := ranked[:0]
	for _, c := range ranked {
		if c.FinalScore > 0 {
			out = append(out, c)
		}
	}
	return out
}

func withoutBrands(ranked []*rank.Candidate) []*rank.Candidate {
	out := ranked[:0]
	for _, c := range ranked {
		if !c.Entity.IsBrand() {
			out = append(out, c)
		}
	}
	return out
}

func (st *state) origin(key int) ingest.Origin {
	if st.req.Origins == nil {
		return ingest.Origin{From: key, To: key}
	}
	return st.req.Origins[key]
}

// leftover lists the literal tokens none of whose keys were consumed.
func (st *state) leftover() []int {
	covered := make([]bool, len(st.req.Tokens))
	for k, used := range st.consumed {
		if !used {
			continue
		}
		o := st.origin(k)
		for i := o.From; i <= o.To && i < len(covered); i++ {
			covered[i] = true
		}
	}
	var out []int
	for i, c := range covered {
		if !c {
			out = append(out, i)
		}
	}
	return out
}

func isStop(stops []int, i int) bool {
	for _, s := range stops {
		if s == i {
			return true
		}
	}
	return false
}

func sharesWord(words, keys []string) bool {
	for _, w := range words {
		if contains(keys, strings.ToLower(w)) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsID(list []int64, id int64) bool {
	for _, v := range list {
		if v == id {
			return true
		}
	}
	return false
}
