package ingest

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cognicore/lexmatch/pkg/lexmatch/lexicon"
)

var (
	reDigitPeriod = regexp.MustCompile(`(\d)\.(\D|$)`)
	reNumberRange = regexp.MustCompile(`(.*\d)\s*-\s*(\$?\d.*)`)
	rePossessive  = regexp.MustCompile(`'s\b`)
	reInitials    = regexp.MustCompile(`(.)\.\s?(.)[.$]`)
	rePeriodBreak = regexp.MustCompile(`\.[\W$]`)
	reDigitComma  = regexp.MustCompile(`(\d),(\d)`)
	reDottedWords = regexp.MustCompile(`([a-z]+)\.([a-z]+)`)
	rePunct       = regexp.MustCompile(`[^\s.$\p{L}\p{N}_]+`)
	reSpace       = regexp.MustCompile(`\s+`)
)

// Normalizer cleans raw dictionary and query text into the canonical
// lowercase form used for matching.
type Normalizer struct {
	lexicon *lexicon.Lexicon  // optional synonym rules
	parser  *MultiTokenParser // optional ngram joining
	fold    bool
}

// NewNormalizer creates a normalizer. Either collaborator may be nil.
func NewNormalizer(lex *lexicon.Lexicon, parser *MultiTokenParser) *Normalizer {
	return &Normalizer{lexicon: lex, parser: parser, fold: true}
}

// SetAccentFolding toggles removal of combining marks ("rosé" -> "rose").
func (n *Normalizer) SetAccentFolding(on bool) {
	n.fold = on
}

// Clean runs the full normalization including synonym and ngram
// substitution.
func (n *Normalizer) Clean(text string) string {
	return n.clean(text, true)
}

// CleanPlain normalizes without synonym or ngram substitution. Used for
// input already known to be tidy.
func (n *Normalizer) CleanPlain(text string) string {
	return n.clean(text, false)
}

func (n *Normalizer) clean(input string, substitute bool) string {
	s := strings.ReplaceAll(input, "?", " ?")
	s = reDigitPeriod.ReplaceAllString(s, "$1 .$2")
	s = strings.TrimRight(s, "/,.")
	s = reNumberRange.ReplaceAllString(s, "$1 to $2")
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ToLower(s)
	if n.fold {
		s = foldAccents(s)
	}
	s = rePossessive.ReplaceAllString(s, "")

	if substitute {
		// second pass picks up rules whose source is produced by the first
		s = n.lexicon.Apply(n.lexicon.Apply(s))
		if n.parser != nil {
			s = strings.Join(n.parser.Parse(strings.Fields(s)), " ")
		}
	}

	s = reInitials.ReplaceAllString(s, "$1$2 ")
	s = rePeriodBreak.ReplaceAllString(s, " ")
	s = reDigitComma.ReplaceAllString(s, "$1$2")
	s = reDottedWords.ReplaceAllString(s, "$1 $2")
	s = rePunct.ReplaceAllString(s, " ")
	s = strings.TrimSpace(reSpace.ReplaceAllString(s, " "))

	if s == "" {
		return strings.ToLower(strings.TrimSpace(input))
	}
	return s
}

// Origin is the inclusive range of literal query tokens a key came from.
type Origin struct {
	From, To int
}

// QueryTokens is a tokenized query. Keys[i] was produced from
// Literal[Origins[i].From : Origins[i].To+1].
type QueryTokens struct {
	Literal []string
	Keys    []string
	Origins []Origin
}

// Tokenize splits a query on whitespace and cleans each literal token on
// its own, so every key can be traced back to the tokens it came from.
// Synonym and ngram substitution then run across the keys.
func (n *Normalizer) Tokenize(sentence string) QueryTokens {
	qt := QueryTokens{Literal: strings.Fields(sentence)}
	var pieces []lexicon.Piece
	for i, tok := range qt.Literal {
		for _, w := range strings.Fields(n.clean(tok, false)) {
			pieces = append(pieces, lexicon.Piece{Word: w, From: i, To: i})
		}
	}

	for pass := 0; pass < 2 && n.lexicon.Len() > 0; pass++ {
		pieces = compose(pieces, n.lexicon.ApplyWords(words(pieces)))
	}
	if n.parser != nil {
		phrases := n.parser.Phrases(words(pieces))
		joined := make([]lexicon.Piece, len(phrases))
		for i, ph := range phrases {
			joined[i] = lexicon.Piece{Word: ph.Text, From: ph.From, To: ph.To}
		}
		pieces = compose(pieces, joined)
	}

	qt.Keys = make([]string, len(pieces))
	qt.Origins = make([]Origin, len(pieces))
	for i, p := range pieces {
		qt.Keys[i] = p.Word
		qt.Origins[i] = Origin{From: p.From, To: p.To}
	}
	return qt
}

func words(pieces []lexicon.Piece) []string {
	out := make([]string, len(pieces))
	for i, p := range pieces {
		out[i] = p.Word
	}
	return out
}

// compose maps ranges over prev back to the ranges prev itself covered.
func compose(prev, next []lexicon.Piece) []lexicon.Piece {
	for i, p := range next {
		next[i].From, next[i].To = prev[p.From].From, prev[p.To].To
	}
	return next
}

func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
