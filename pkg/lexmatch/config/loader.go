package config

import (
	"github.com/cockroachdb/errors"

	"github.com/cognicore/lexmatch/pkg/lexmatch/ingest"
	"github.com/cognicore/lexmatch/pkg/lexmatch/lexicon"
	"github.com/cognicore/lexmatch/pkg/lexmatch/stoplist"
)

// Loader loads all configuration files and constructs components
type Loader struct {
	SettingsPath string
	StoplistPath string // overrides Settings.StoplistPath
	LexiconPath  string // overrides Settings.LexiconPath
	NgramsPath   string // overrides Settings.NgramsPath
}

// Components holds all loaded configuration components
type Components struct {
	Settings   Settings
	Stoplist   *stoplist.Manager
	Lexicon    *lexicon.Lexicon
	Parser     *ingest.MultiTokenParser
	Normalizer *ingest.Normalizer
	Pipeline   *ingest.Pipeline
}

// Load reads all configuration files and returns initialized components
func (l *Loader) Load() (*Components, error) {
	settings := Default()
	if l.SettingsPath != "" {
		var err error
		settings, err = Load(l.SettingsPath)
		if err != nil {
			return nil, errors.Wrap(err, "load settings")
		}
	}
	if l.StoplistPath != "" {
		settings.StoplistPath = l.StoplistPath
	}
	if l.LexiconPath != "" {
		settings.LexiconPath = l.LexiconPath
	}
	if l.NgramsPath != "" {
		settings.NgramsPath = l.NgramsPath
	}
	return Build(settings)
}

// Build constructs components from already-parsed settings.
func Build(settings Settings) (*Components, error) {
	comp := &Components{Settings: settings}

	terms := settings.Stoplist
	if settings.StoplistPath != "" {
		sl, err := LoadStoplist(settings.StoplistPath)
		if err != nil {
			return nil, errors.Wrap(err, "load stoplist")
		}
		terms = sl.Terms
	}
	comp.Stoplist = stoplist.NewManager(terms)

	if settings.LexiconPath != "" {
		lex, err := lexicon.LoadFromYAML(settings.LexiconPath)
		if err != nil {
			return nil, errors.Wrap(err, "load lexicon")
		}
		comp.Lexicon = lex
	} else {
		comp.Lexicon = lexicon.New()
	}

	ngrams := settings.Ngrams
	if settings.NgramsPath != "" {
		loaded, err := LoadNgrams(settings.NgramsPath)
		if err != nil {
			return nil, errors.Wrap(err, "load ngrams")
		}
		ngrams = append(append([]string(nil), ngrams...), loaded...)
	}
	comp.Parser = ingest.NewMultiTokenParser(ingest.NgramEntries(ngrams))

	comp.Normalizer = ingest.NewNormalizer(comp.Lexicon, comp.Parser)
	comp.Pipeline = ingest.NewPipeline(comp.Normalizer, comp.Stoplist)
	return comp, nil
}
