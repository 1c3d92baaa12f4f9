package ingest

import "strings"

// MultiTokenParser joins known multi-word phrases into single tokens,
// e.g. "just in" -> "just_in".
type MultiTokenParser struct {
	dict   map[string]DictEntry // phrase -> entry
	maxLen int
}

// DictEntry represents a joined phrase and the spellings that produce it
type DictEntry struct {
	Canonical string
	Variants  []string
}

// NewMultiTokenParser creates a new parser with the given dictionary
func NewMultiTokenParser(entries []DictEntry) *MultiTokenParser {
	dict := make(map[string]DictEntry)
	maxLen := 1
	for _, e := range entries {
		canonical := strings.ToLower(e.Canonical)
		dict[canonical] = e
		if l := phraseLen(canonical); l > maxLen {
			maxLen = l
		}
		for _, v := range e.Variants {
			variant := strings.ToLower(v)
			dict[variant] = e
			if l := phraseLen(variant); l > maxLen {
				maxLen = l
			}
		}
	}
	return &MultiTokenParser{dict: dict, maxLen: maxLen}
}

// NgramEntries derives parser entries from underscore-joined targets:
// "just_in" is produced by the phrase "just in".
func NgramEntries(targets []string) []DictEntry {
	entries := make([]DictEntry, 0, len(targets))
	for _, target := range targets {
		target = strings.ToLower(strings.TrimSpace(target))
		if target == "" || !strings.Contains(target, "_") {
			continue
		}
		entries = append(entries, DictEntry{
			Canonical: target,
			Variants:  []string{strings.ReplaceAll(target, "_", " ")},
		})
	}
	return entries
}

// Phrase is one parsed token and the inclusive range of input tokens it
// replaces.
type Phrase struct {
	Text     string
	From, To int
}

// Parse joins known phrases, longest first, and returns the resulting
// tokens.
func (p *MultiTokenParser) Parse(tokens []string) []string {
	phrases := p.Phrases(tokens)
	out := make([]string, len(phrases))
	for i, ph := range phrases {
		out[i] = ph.Text
	}
	return out
}

// Phrases is Parse keeping track of which input tokens each output token
// came from.
func (p *MultiTokenParser) Phrases(tokens []string) []Phrase {
	out := make([]Phrase, 0, len(tokens))
	for i := 0; i < len(tokens); {
		n, canonical := p.longestAt(tokens, i)
		if n == 0 {
			out = append(out, Phrase{Text: tokens[i], From: i, To: i})
			i++
			continue
		}
		out = append(out, Phrase{Text: canonical, From: i, To: i + n - 1})
		i += n
	}
	return out
}

// longestAt returns the length and canonical form of the longest known
// phrase starting at tokens[i], or 0 when none does.
func (p *MultiTokenParser) longestAt(tokens []string, i int) (int, string) {
	for n := min(p.maxLen, len(tokens)-i); n >= 2; n-- {
		if e, ok := p.dict[strings.ToLower(strings.Join(tokens[i:i+n], " "))]; ok {
			return n, e.Canonical
		}
	}
	return 0, ""
}

// Len reports the number of distinct phrases the parser recognizes.
func (p *MultiTokenParser) Len() int {
	return len(p.dict)
}

func phraseLen(phrase string) int {
	if phrase == "" {
		return 1
	}
	return len(strings.Fields(phrase))
}
