package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoaderDefaults(t *testing.T) {
	comp, err := (&Loader{}).Load()
	require.NoError(t, err)

	assert.True(t, comp.Stoplist.IsStop("the"))
	assert.Equal(t, 0, comp.Lexicon.Len())
	assert.Equal(t, "vintage port", comp.Pipeline.Process("The Vintage Port").Text)
}

func TestLoaderAllFiles(t *testing.T) {
	settings := writeFile(t, "lexmatch.yaml", "index:\n  category_id: 2\n")
	stops := writeFile(t, "stop.yaml", "terms: [bottle]\n")
	lex := writeFile(t, "lexicon.yaml", "synonyms:\n  - source: cab\n    target: cabernet\n    whole_word: true\n")
	ngrams := writeFile(t, "ngrams.txt", "just_in\n")

	comp, err := (&Loader{
		SettingsPath: settings,
		StoplistPath: stops,
		LexiconPath:  lex,
		NgramsPath:   ngrams,
	}).Load()
	require.NoError(t, err)

	assert.Equal(t, int64(2), comp.Settings.Index.CategoryID)
	assert.False(t, comp.Stoplist.IsStop("the"))
	assert.True(t, comp.Stoplist.IsStop("bottle"))

	out := comp.Pipeline.Process("Cab bottle just in")
	assert.Equal(t, []string{"cabernet", "just_in"}, out.Words)
}

func TestLoaderMissingFile(t *testing.T) {
	_, err := (&Loader{LexiconPath: filepath.Join(t.TempDir(), "nope.yaml")}).Load()
	assert.Error(t, err)
}

func TestBuildInlineNgrams(t *testing.T) {
	s := Default()
	s.Ngrams = []string{"red_blend"}
	comp, err := Build(s)
	require.NoError(t, err)
	assert.Equal(t, "red_blend", comp.Normalizer.Clean("Red Blend"))
}
