package stoplist

import (
	"sort"
	"strings"
)

// DefaultTerms are the words ignored by matching unless a configuration
// supplies its own list.
var DefaultTerms = []string{
	"a", "and", "the", "an", "du", "del", "do", "da", "le", "la",
	"i", "co", "company", "inc", "no", "not", "or",
}

// Manager tracks stopwords and strips them while remembering their
// positions in the original token sequence.
type Manager struct {
	stops map[string]struct{}
}

// NewManager creates a new stoplist manager
func NewManager(initialStops []string) *Manager {
	stops := make(map[string]struct{}, len(initialStops))
	for _, s := range initialStops {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			stops[s] = struct{}{}
		}
	}
	return &Manager{stops: stops}
}

// IsStop checks if a token is a stopword. Symbols with a spoken form
// ("&", "$") are compared by that form.
func (m *Manager) IsStop(token string) bool {
	_, ok := m.stops[spoken(token)]
	return ok
}

// Add adds a token to the stoplist
func (m *Manager) Add(token string) {
	m.stops[strings.ToLower(token)] = struct{}{}
}

// Remove removes a token from the stoplist
func (m *Manager) Remove(token string) {
	delete(m.stops, strings.ToLower(token))
}

// All returns all stopwords, sorted.
func (m *Manager) All() []string {
	result := make([]string, 0, len(m.stops))
	for s := range m.stops {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Positions returns the indices of tokens that are stopwords.
func (m *Manager) Positions(tokens []string) []int {
	var out []int
	for i, tok := range tokens {
		if m.IsStop(tok) {
			out = append(out, i)
		}
	}
	return out
}

// Strip removes stopwords from whitespace-delimited text and returns the
// remaining text together with the positions of the removed tokens.
func (m *Manager) Strip(text string) (string, []int) {
	tokens := strings.Fields(text)
	removed := m.Positions(tokens)
	if len(removed) == 0 {
		return strings.Join(tokens, " "), nil
	}

	kept := make([]string, 0, len(tokens)-len(removed))
	next := 0
	for i, tok := range tokens {
		if next < len(removed) && removed[next] == i {
			next++
			continue
		}
		kept = append(kept, tok)
	}
	return strings.Join(kept, " "), removed
}

func spoken(token string) string {
	token = strings.ReplaceAll(token, "$", "dollar")
	return strings.ReplaceAll(token, "&", "and")
}
