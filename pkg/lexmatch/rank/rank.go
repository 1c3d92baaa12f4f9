package rank

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/index"
)

// zeroedUnmatchedScore replaces the unmatched score of a candidate whose
// matches carry no information.
const zeroedUnmatchedScore = 10000

// Rejection records which rule eliminated a candidate
type Rejection int

const (
	Accepted Rejection = iota
	RejectNoMatch
	RejectBrandMisspelled
	RejectLowIDFIncomplete
	RejectUnmatchedHighIDF
	RejectMissingRequired
	RejectBrandAttributeWord
	RejectBrandShortWords
	RejectSingleMatchRareMiss
	RejectSingleFuzzyMatch
)

func (r Rejection) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectNoMatch:
		return "no_match"
	case RejectBrandMisspelled:
		return "brand_misspelled"
	case RejectLowIDFIncomplete:
		return "low_idf_incomplete"
	case RejectUnmatchedHighIDF:
		return "unmatched_high_idf"
	case RejectMissingRequired:
		return "missing_required_words"
	case RejectBrandAttributeWord:
		return "brand_attribute_word"
	case RejectBrandShortWords:
		return "brand_short_words"
	case RejectSingleMatchRareMiss:
		return "single_match_rare_miss"
	case RejectSingleFuzzyMatch:
		return "single_fuzzy_match"
	}
	return fmt.Sprintf("rejection(%d)", int(r))
}

// Candidate is an entity aligned against a query, with its score
type Candidate struct {
	Entity         *index.Entity
	Matched        []WordMatch
	Unmatched      []WordMatch
	MatchedScore   float64
	UnmatchedScore float64
	FinalScore     float64
	BrandPenalty   float64
	Exact          bool // every word matched exactly and the query has nothing else
	LowIDF         bool // matches were discarded as uninformative
	Rejection      Rejection
}

// QueryIndices returns the matched query positions in ascending order.
func (c *Candidate) QueryIndices() []int {
	out := make([]int, 0, len(c.Matched))
	for _, m := range c.Matched {
		out = append(out, m.QueryIndex)
	}
	sort.Ints(out)
	return out
}

// Contiguous reports whether the matched query positions form one block.
func (c *Candidate) Contiguous() bool {
	idx := c.QueryIndices()
	for i := 1; i < len(idx); i++ {
		if idx[i] != idx[i-1]+1 {
			return false
		}
	}
	return len(idx) > 0
}

// FuzzyCount is the number of approximate word matches.
func (c *Candidate) FuzzyCount() int {
	n := 0
	for _, m := range c.Matched {
		if m.Score < 1.0 {
			n++
		}
	}
	return n
}

// ScoreContext carries per-request inputs to scoring
type ScoreContext struct {
	QueryLen       int      // number of query tokens, stopwords included
	CategoryWords  []string // category nouns that carry no weight next to a miss
	AttributeWords []string // words that describe attributes, not brands
}

// Scorer ranks aligned candidates
type Scorer struct {
	matching config.Matching
	common   map[string]struct{}
	logger   *zap.Logger
	reorder  func([]*Candidate) []*Candidate
}

// NewScorer creates a scorer
func NewScorer(matching config.Matching, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	common := make(map[string]struct{}, len(matching.CommonWords))
	for _, w := range matching.CommonWords {
		common[w] = struct{}{}
	}
	return &Scorer{matching: matching, common: common, logger: logger}
}

// SetReorderer installs a hook applied to every ranked list after sorting.
func (s *Scorer) SetReorderer(fn func([]*Candidate) []*Candidate) {
	s.reorder = fn
}

// Score evaluates every candidate and returns them ordered by descending
// final score. Rejected candidates stay in the list with a score of -1; a
// candidate whose evaluation faults is logged and dropped.
func (s *Scorer) Score(cands []*Candidate, sc ScoreContext) []*Candidate {
	out := make([]*Candidate, 0, len(cands))
	for _, c := range cands {
		if s.scoreSafely(c, sc) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinalScore > out[j].FinalScore
	})
	if s.reorder != nil {
		out = s.reorder(out)
	}
	return out
}

func (s *Scorer) scoreSafely(c *Candidate, sc ScoreContext) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			fields := []zap.Field{zap.Any("panic", r)}
			if c != nil && c.Entity != nil {
				fields = append(fields, zap.Int64("id", c.Entity.ID))
			}
			s.logger.Error("dropping candidate after scoring fault", fields...)
			ok = false
		}
	}()
	s.score(c, sc)
	return true
}

func (s *Scorer) score(c *Candidate, sc ScoreContext) {
	m := s.matching
	e := c.Entity
	brand := e.IsBrand()
	mc, uc := len(c.Matched), len(c.Unmatched)
	fuzzy := c.FuzzyCount()

	c.Rejection = Accepted
	c.Exact = false
	c.LowIDF = false
	c.BrandPenalty = 0

	reject := func(r Rejection) {
		c.Rejection = r
		c.MatchedScore, c.UnmatchedScore = 0, 0
		c.FinalScore = -1
	}

	if mc == 0 {
		reject(RejectNoMatch)
		return
	}
	if brand && e.WordCount() == 1 && mc == 1 && c.Matched[0].Score != 1.0 &&
		runeLen(c.Matched[0].Token) <= m.BrandShortWordLen {
		reject(RejectBrandMisspelled)
		return
	}

	higher := 0
	for _, w := range c.Matched {
		if w.IDF > m.MinIDFCutoff {
			higher++
		}
	}
	if higher == 0 && (uc > 0 || fuzzy > 0) {
		reject(RejectLowIDFIncomplete)
		return
	}
	if higher == 0 && maxIDF(c.Unmatched) > m.MinIDFCutoff {
		reject(RejectUnmatchedHighIDF)
		return
	}
	if e.RequireAllWords && uc > 0 {
		reject(RejectMissingRequired)
		return
	}
	if brand && (uc > 0 || fuzzy > 0) && mentionsAny(c.Matched, sc.AttributeWords) {
		reject(RejectBrandAttributeWord)
		return
	}
	if brand && uc > 0 && maxTokenLen(c.Matched) < m.BrandMinTokenLen {
		reject(RejectBrandShortWords)
		return
	}
	if mc == 1 && uc > 0 && maxIDF(c.Unmatched) > m.HigherIDFCutoff {
		reject(RejectSingleMatchRareMiss)
		return
	}
	if mc == 1 && uc >= 2 && c.Matched[0].Score < 1.0 {
		reject(RejectSingleFuzzyMatch)
		return
	}

	if uc > 0 {
		for i := range c.Matched {
			if contains(sc.CategoryWords, c.Matched[i].Token) {
				c.Matched[i].IDF = 0
			}
		}
	}

	var matchedScore, unmatchedScore float64
	for i := range c.Matched {
		w := &c.Matched[i]
		w.AdjustedIDF = w.IDF * w.IDF
		matchedScore += w.Score * w.Score * w.AdjustedIDF * s.weight(w.Token)
	}
	for i := range c.Unmatched {
		w := &c.Unmatched[i]
		w.AdjustedIDF = w.IDF * w.IDF
		unmatchedScore += w.AdjustedIDF * s.weight(w.Token)
	}

	run := LongestRun(c.Matched)
	if run > 1 {
		matchedScore *= 1 + m.NgramBonus*float64(run)
	}

	perfect := 1.0
	if fuzzy == 0 && uc == 0 {
		perfect = m.PerfectBonus
		c.Exact = sc.QueryLen == e.WordCount()
	} else {
		matchedScore, unmatchedScore = s.discountLowIDF(c, higher, run, matchedScore, unmatchedScore)
	}

	factor := 1.0
	if brand {
		factor = m.BrandUnmatchedScale
	}
	final := (matchedScore - unmatchedScore*factor) * perfect

	if brand && !c.LowIDF {
		c.BrandPenalty = m.BrandPenalty * (1 + m.BrandPositionStep*float64(c.Matched[0].QueryIndex))
		final *= 1 - c.BrandPenalty
	}

	c.MatchedScore = matchedScore
	c.UnmatchedScore = unmatchedScore
	c.FinalScore = final
}

// discountLowIDF handles imperfect candidates. A multi-word candidate
// with no informative match and no run of adjacent matches has its
// matches moved to the unmatched side and is scored as a miss. Misses
// made only of common words weigh less.
func (s *Scorer) discountLowIDF(c *Candidate, higher, run int, matchedScore, unmatchedScore float64) (float64, float64) {
	m := s.matching
	if higher == 0 && c.Entity.WordCount() > 1 && run <= 1 {
		c.Unmatched = append(c.Unmatched, c.Matched...)
		c.Matched = nil
		c.LowIDF = true
		matchedScore = 0
		unmatchedScore = zeroedUnmatchedScore
	}

	allLow := true
	for _, w := range c.Unmatched {
		if w.IDF >= m.MinIDFCutoff {
			allLow = false
			break
		}
	}
	if allLow {
		unmatchedScore *= m.LowIDFDiscount
	}
	return matchedScore, unmatchedScore
}

func (s *Scorer) weight(token string) float64 {
	if _, ok := s.common[token]; ok {
		return 1 - s.matching.CommonPenalty
	}
	return 1
}

// LongestRun is the length of the longest chain of informative matches
// that are adjacent in both the query and the entity. It is at least 1.
func LongestRun(matches []WordMatch) int {
	best, cur := 1, 1
	var prev *WordMatch
	for i := range matches {
		w := &matches[i]
		if w.IDF <= 0 {
			continue
		}
		if prev != nil && w.QueryIndex == prev.QueryIndex+1 && w.CandidateIndex == prev.CandidateIndex+1 {
			cur++
			if cur > best {
				best = cur
			}
		} else {
			cur = 1
		}
		prev = w
	}
	return best
}

func maxIDF(words []WordMatch) float64 {
	var best float64
	for _, w := range words {
		if w.IDF > best {
			best = w.IDF
		}
	}
	return best
}

func maxTokenLen(words []WordMatch) int {
	best := 0
	for _, w := range words {
		if l := runeLen(w.Token); l > best {
			best = l
		}
	}
	return best
}

func mentionsAny(words []WordMatch, list []string) bool {
	for _, w := range words {
		if contains(list, w.Token) || contains(list, w.QueryToken) {
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
