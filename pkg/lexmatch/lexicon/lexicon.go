package lexicon

import (
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Lexicon stores phrase substitution rules applied before matching:
//   - Synonyms: a source phrase rewritten to a target phrase ("cab sauv" -> "cabernet sauvignon")
//   - Anchored rules: only applied when the source starts the text
//   - Whole-word rules: only applied on word boundaries
//
// Rules are applied longest source first so that overlapping rules
// prefer the more specific phrase.
type Lexicon struct {
	rules []compiledRule
}

// Rule is a single substitution rule.
type Rule struct {
	Source      string `yaml:"source"`
	Target      string `yaml:"target"`
	AtBeginning bool   `yaml:"at_beginning"`
	WholeWord   bool   `yaml:"whole_word"`
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// New creates an empty lexicon.
func New() *Lexicon {
	return &Lexicon{}
}

// LoadFromYAML loads substitution rules from a YAML file.
//
// Expected format:
//
//	synonyms:
//	  - source: cab sauv
//	    target: cabernet sauvignon
//	    whole_word: true
//	  - source: i want
//	    target: want
//	    at_beginning: true
func LoadFromYAML(path string) (*Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config struct {
		Synonyms []Rule `yaml:"synonyms"`
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrapf(err, "parse lexicon %s", path)
	}

	lex := New()
	for _, r := range config.Synonyms {
		if err := lex.Add(r); err != nil {
			return nil, err
		}
	}
	return lex, nil
}

// Add compiles and registers a rule. Empty sources are ignored.
func (l *Lexicon) Add(r Rule) error {
	r.Source = strings.ToLower(strings.TrimSpace(r.Source))
	r.Target = strings.ToLower(strings.TrimSpace(r.Target))
	if r.Source == "" {
		return nil
	}

	pattern := regexp.QuoteMeta(r.Source)
	switch {
	case r.AtBeginning:
		pattern = `^` + pattern + `\b`
	case r.WholeWord:
		pattern = `\b` + pattern + `\b`
	}
	re, err := regexp.Compile(`(?i)` + pattern)
	if err != nil {
		return errors.Wrapf(err, "compile synonym %q", r.Source)
	}

	l.rules = append(l.rules, compiledRule{Rule: r, re: re})
	sort.SliceStable(l.rules, func(i, j int) bool {
		return len(l.rules[i].Source) > len(l.rules[j].Source)
	})
	return nil
}

// Apply rewrites text with every rule and lowercases the result.
func (l *Lexicon) Apply(text string) string {
	if l == nil {
		return strings.ToLower(text)
	}
	for _, r := range l.rules {
		text = r.re.ReplaceAllLiteralString(text, r.Target)
	}
	return strings.ToLower(text)
}

// Piece is one word produced by ApplyWords and the inclusive range of
// input words it replaced.
type Piece struct {
	Word     string
	From, To int
}

// ApplyWords runs the rules over a word sequence instead of free text.
// Single-word rules that are neither anchored nor whole-word rewrite
// inside each word; every other rule replaces a run of whole words, and
// anchored rules only at the first word.
func (l *Lexicon) ApplyWords(words []string) []Piece {
	pieces := make([]Piece, len(words))
	for i, w := range words {
		pieces[i] = Piece{Word: strings.ToLower(w), From: i, To: i}
	}
	if l == nil {
		return pieces
	}
	for _, r := range l.rules {
		src := strings.Fields(r.Source)
		if len(src) == 1 && !r.WholeWord && !r.AtBeginning {
			pieces = r.rewriteInside(pieces)
		} else {
			pieces = r.replaceRun(pieces, src)
		}
	}
	return pieces
}

func (r compiledRule) rewriteInside(pieces []Piece) []Piece {
	out := make([]Piece, 0, len(pieces))
	for _, p := range pieces {
		rewritten := r.re.ReplaceAllLiteralString(p.Word, r.Target)
		if rewritten == p.Word {
			out = append(out, p)
			continue
		}
		for _, w := range strings.Fields(rewritten) {
			out = append(out, Piece{Word: w, From: p.From, To: p.To})
		}
	}
	return out
}

func (r compiledRule) replaceRun(pieces []Piece, src []string) []Piece {
	tgt := strings.Fields(r.Target)
	out := make([]Piece, 0, len(pieces))
	for i := 0; i < len(pieces); {
		if (r.AtBeginning && i > 0) || !runAt(pieces, i, src) {
			out = append(out, pieces[i])
			i++
			continue
		}
		run := pieces[i : i+len(src)]
		for j, w := range tgt {
			p := Piece{Word: w, From: run[0].From, To: run[len(run)-1].To}
			if len(tgt) == len(src) {
				p.From, p.To = run[j].From, run[j].To
			}
			out = append(out, p)
		}
		i += len(src)
	}
	return out
}

func runAt(pieces []Piece, i int, src []string) bool {
	if len(src) == 0 || i+len(src) > len(pieces) {
		return false
	}
	for j, w := range src {
		if pieces[i+j].Word != w {
			return false
		}
	}
	return true
}

// Rules returns a copy of the registered rules in application order.
func (l *Lexicon) Rules() []Rule {
	out := make([]Rule, len(l.rules))
	for i, r := range l.rules {
		out[i] = r.Rule
	}
	return out
}

// Len reports the number of rules.
func (l *Lexicon) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rules)
}
