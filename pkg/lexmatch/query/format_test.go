package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/lexmatch/pkg/lexmatch/index"
	"github.com/cognicore/lexmatch/pkg/lexmatch/rank"
)

func TestFormat(t *testing.T) {
	matches := []Match{
		{
			Candidate: &rank.Candidate{Entity: &index.Entity{
				ID: 1, EntityID: 101, AttributeCode: "wine_type",
				OriginalText: "Vintage Port", BaseValue: "Port",
				DerivedDefinition: "fortified", DerivedGuides: []string{"dessert"},
				AncestorNodeLength: 2,
			}},
			Start: 1, End: 2, Text: "vintage port", MaxIDF: 2.5, Score: 24.7,
		},
		{
			Candidate: &rank.Candidate{Entity: &index.Entity{
				ID: 2, EntityID: 201, AttributeCode: "brand",
				OriginalText: "Warre's", AncestorNodeLength: -1,
			}},
			Text: "warre's", Score: 6.4,
		},
	}

	attrs := Format(matches)
	require.Len(t, attrs, 2)

	assert.Equal(t, Attribute{
		Code: "wine_type", Value: "Port", Original: "Vintage Port", Matched: "vintage port",
		NodeID: 101, EntryID: 1, Start: 1, End: 2,
		DerivedDefinition: "fortified", DerivedGuides: []string{"dessert"},
		AncestorNodeLength: 2, MaxIDF: 2.5, Score: 24.7,
	}, attrs[0])

	assert.Equal(t, "Warre's", attrs[1].Value, "falls back to original text")
	assert.NotNil(t, attrs[1].DerivedGuides)

	raw, err := json.Marshal(attrs[1])
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"derived_guides":[]`)
	assert.Contains(t, string(raw), `"node_id":201`)
}

func TestLeftoverTokens(t *testing.T) {
	tokens := []string{"a", "b", "c"}
	assert.Equal(t, []string{"a", "c"}, LeftoverTokens(tokens, []int{0, 2, 7}))
	assert.Empty(t, LeftoverTokens(tokens, nil))
}
