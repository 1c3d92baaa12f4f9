package rank

import (
	"math"

	"go.uber.org/zap"

	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/index"
)

// Query is the positional view of a query the aligner matches against.
// Words holds one match key per original token; an empty key or a
// blocked position never matches.
type Query struct {
	Words   []string
	Blocked []bool
}

// Open reports whether position i can still be matched.
func (q Query) Open(i int) bool {
	if i < 0 || i >= len(q.Words) || q.Words[i] == "" {
		return false
	}
	return i >= len(q.Blocked) || !q.Blocked[i]
}

// OpenWords returns the keys of open positions in query order.
func (q Query) OpenWords() []string {
	var out []string
	for i, w := range q.Words {
		if q.Open(i) {
			out = append(out, w)
		}
	}
	return out
}

// WordMatch pairs an entity word with a query position
type WordMatch struct {
	QueryIndex     int     `json:"query_index"` // -1 when unmatched
	CandidateIndex int     `json:"candidate_index"`
	Score          float64 `json:"score"` // 1.0 exact, ratio/100 fuzzy, 0 unmatched
	Token          string  `json:"token"`
	QueryToken     string  `json:"query_token,omitempty"`
	IDF            float64 `json:"idf"`
	AdjustedIDF    float64 `json:"adjusted_idf"`
}

// Aligner matches entity words against query words
type Aligner struct {
	snap     *index.Snapshot
	matching config.Matching
	lemmas   map[string]string
	logger   *zap.Logger
}

// NewAligner creates an aligner over a snapshot. lemmas maps query words
// to their lemma for this request; missing words are their own lemma.
func NewAligner(snap *index.Snapshot, matching config.Matching, lemmas map[string]string, logger *zap.Logger) *Aligner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aligner{snap: snap, matching: matching, lemmas: lemmas, logger: logger}
}

// Align walks entity words in order and pairs each with the first open,
// not yet used query word that matches exactly or, when fuzzy is set,
// approximately. Every query position is used at most once.
func (a *Aligner) Align(q Query, words []string, fuzzy bool) (matched, unmatched []WordMatch) {
	used := make([]bool, len(q.Words))

	for ci, ew := range words {
		eidf := a.snap.IDF(ew)
		found := false

		for qi, qw := range q.Words {
			if used[qi] || !q.Open(qi) {
				continue
			}
			if qw == ew {
				matched = append(matched, WordMatch{
					QueryIndex: qi, CandidateIndex: ci, Score: 1.0,
					Token: ew, QueryToken: qw, IDF: eidf,
				})
				used[qi] = true
				found = true
				break
			}
			if !fuzzy || firstRune(qw) != firstRune(ew) {
				continue
			}
			ratio, ok := a.ratio(qw, ew)
			if !ok {
				continue
			}
			if ratio > a.matching.FuzzyThreshold && abs(runeLen(ew)-runeLen(qw)) <= 1 {
				matched = append(matched, WordMatch{
					QueryIndex: qi, CandidateIndex: ci, Score: ratio / 100,
					Token: ew, QueryToken: qw, IDF: a.fuzzyIDF(qw, eidf),
				})
				used[qi] = true
				found = true
				break
			}
		}

		if !found {
			unmatched = append(unmatched, WordMatch{QueryIndex: -1, CandidateIndex: ci, Token: ew, IDF: eidf})
		}
	}
	return matched, unmatched
}

// ratio applies the length rules for approximate matching: both words
// long enough, or a one-letter-short word that is a plural of the other.
// A query word that is itself a dictionary word is penalized.
func (a *Aligner) ratio(qw, ew string) (float64, bool) {
	minLen := a.matching.MinFuzzyWordLength
	lq, le := runeLen(qw), runeLen(ew)

	switch {
	case lq >= minLen && le >= minLen:
	case lq == minLen-1 || le == minLen-1:
		if qw+"s" != ew && ew+"s" != qw {
			return 0, false
		}
	default:
		return 0, false
	}

	r := float64(Ratio(qw, ew))
	if a.snap.IDF(qw) > 0 {
		r -= 100 * a.matching.FuzzyPenalty
	}
	return r, true
}

// fuzzyIDF picks the weight of an approximate match. The lemma's idf is
// used when known and lower than the query word's (or the query word is
// unknown), then the query word's, capped by the entity word's idf and
// the high-idf ceiling.
func (a *Aligner) fuzzyIDF(qw string, eidf float64) float64 {
	lemma, ok := a.lemmas[qw]
	if !ok {
		a.logger.Debug("no lemma for query word", zap.String("word", qw))
		lemma = qw
	}
	lidf := a.snap.IDF(lemma)
	qidf := a.snap.IDF(qw)
	ceiling := a.matching.HigherIDFCutoff

	switch {
	case lidf > 0 && (lidf < qidf || qidf == 0):
		return math.Min(lidf, math.Min(eidf, ceiling))
	case qidf > 0:
		return math.Min(qidf, math.Min(eidf, ceiling))
	default:
		return math.Min(eidf, ceiling)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
