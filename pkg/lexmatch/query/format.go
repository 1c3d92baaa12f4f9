package query

// Attribute is the wire form of one extracted entity.
type Attribute struct {
	Code               string   `json:"code"`
	Value              string   `json:"value"`
	Original           string   `json:"original"`
	Matched            string   `json:"matched"`
	NodeID             int64    `json:"node_id"`
	EntryID            int64    `json:"entry_id"`
	Start              int      `json:"start"`
	End                int      `json:"end"`
	DerivedDefinition  string   `json:"derived_definition"`
	DerivedGuides      []string `json:"derived_guides"`
	AncestorNodeLength int      `json:"ancestor_node_length"`
	MaxIDF             float64  `json:"max_idf"`
	Score              float64  `json:"score"`
	Exact              bool     `json:"exact"`
}

// Format converts matches into attributes, in emission order. Value
// prefers the entity's base value and falls back to its original text.
func Format(matches []Match) []Attribute {
	out := make([]Attribute, 0, len(matches))
	for _, m := range matches {
		e := m.Candidate.Entity
		value := e.BaseValue
		if value == "" {
			value = e.OriginalText
		}
		guides := e.DerivedGuides
		if guides == nil {
			guides = []string{}
		}
		out = append(out, Attribute{
			Code:               e.AttributeCode,
			Value:              value,
			Original:           e.OriginalText,
			Matched:            m.Text,
			NodeID:             e.EntityID,
			EntryID:            e.ID,
			Start:              m.Start,
			End:                m.End,
			DerivedDefinition:  e.DerivedDefinition,
			DerivedGuides:      guides,
			AncestorNodeLength: e.AncestorNodeLength,
			MaxIDF:             m.MaxIDF,
			Score:              m.Score,
			Exact:              m.Exact,
		})
	}
	return out
}

// LeftoverTokens returns the literal tokens at the given positions.
func LeftoverTokens(tokens []string, positions []int) []string {
	out := make([]string, 0, len(positions))
	for _, i := range positions {
		if i >= 0 && i < len(tokens) {
			out = append(out, tokens[i])
		}
	}
	return out
}
