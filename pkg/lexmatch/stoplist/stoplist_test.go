package stoplist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsStop(t *testing.T) {
	m := NewManager(DefaultTerms)

	assert.True(t, m.IsStop("the"))
	assert.True(t, m.IsStop("&"), "ampersand reads as 'and'")
	assert.False(t, m.IsStop("port"))
	assert.False(t, m.IsStop("$20"))
}

func TestAddRemove(t *testing.T) {
	m := NewManager(nil)
	m.Add("The")
	assert.True(t, m.IsStop("the"))
	m.Remove("THE")
	assert.False(t, m.IsStop("the"))
}

func TestAllSorted(t *testing.T) {
	m := NewManager([]string{"or", "a", "the", " "})
	assert.Equal(t, []string{"a", "or", "the"}, m.All())
}

func TestStripKeepsPositions(t *testing.T) {
	m := NewManager(DefaultTerms)

	text, removed := m.Strip("chateau la  tour and the vineyard")
	assert.Equal(t, "chateau tour vineyard", text)
	assert.Equal(t, []int{1, 3, 4}, removed)
}

func TestStripNothingRemoved(t *testing.T) {
	m := NewManager(DefaultTerms)

	text, removed := m.Strip("vintage  port")
	assert.Equal(t, "vintage port", text)
	assert.Empty(t, removed)
}

func TestStripAllRemoved(t *testing.T) {
	m := NewManager(DefaultTerms)

	text, removed := m.Strip("the a")
	assert.Equal(t, "", text)
	assert.Equal(t, []int{0, 1}, removed)
}
