package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/cognicore/lexmatch/pkg/lexmatch/internalerr"
	"github.com/cognicore/lexmatch/pkg/lexmatch/stoplist"
)

// Settings is the root of a lexmatch configuration file
type Settings struct {
	Matching     Matching `yaml:"matching"`
	Index        Index    `yaml:"index"`
	Stoplist     []string `yaml:"stoplist"`
	StoplistPath string   `yaml:"stoplist_path"`
	LexiconPath  string   `yaml:"lexicon_path"`
	NgramsPath   string   `yaml:"ngrams_path"`
	Ngrams       []string `yaml:"ngrams"`
}

// Matching holds the scoring constants used by alignment and ranking
type Matching struct {
	MinFuzzyWordLength  int     `yaml:"min_fuzzy_word_length"`
	FuzzyThreshold      float64 `yaml:"fuzzy_threshold"`
	FuzzyPenalty        float64 `yaml:"fuzzy_penalty"`
	NgramBonus          float64 `yaml:"ngram_bonus"`
	PerfectBonus        float64 `yaml:"perfect_bonus"`
	BrandPenalty        float64 `yaml:"brand_penalty"`
	IDFCutoffPercentile float64 `yaml:"idf_cutoff_percentile"` // percent, 0..100
	MinIDFCutoff        float64 `yaml:"min_idf_cutoff"`
	HigherIDFCutoff     float64 `yaml:"higher_idf_cutoff"`
	CommonPenalty       float64 `yaml:"common_penalty"`
	LowIDFDiscount      float64 `yaml:"low_idf_discount"`
	BrandUnmatchedScale float64 `yaml:"brand_unmatched_scale"`
	BrandPositionStep   float64 `yaml:"brand_position_step"`
	BrandShortWordLen   int     `yaml:"brand_short_word_len"`
	BrandMinTokenLen    int     `yaml:"brand_min_token_len"`
	BrandSwapRatio      float64 `yaml:"brand_swap_ratio"`
	ExactMatchScore     float64 `yaml:"exact_match_score"`

	CommonWords    []string `yaml:"common_words"`
	CategoryWords  []string `yaml:"category_words"`
	AttributeWords []string `yaml:"attribute_words"`
}

// Index controls snapshot building and artifact lifetime
type Index struct {
	CategoryID  int64         `yaml:"category_id"`
	TTL         time.Duration `yaml:"ttl"`
	ArtifactKey string        `yaml:"artifact_key"`
}

// Default returns the production tuning.
func Default() Settings {
	return Settings{
		Matching: DefaultMatching(),
		Index: Index{
			CategoryID:  1,
			TTL:         7 * 24 * time.Hour,
			ArtifactKey: "lexmatch:snapshot",
		},
		Stoplist: append([]string(nil), stoplist.DefaultTerms...),
	}
}

// DefaultMatching returns the default scoring constants.
func DefaultMatching() Matching {
	return Matching{
		MinFuzzyWordLength:  4,
		FuzzyThreshold:      80,
		FuzzyPenalty:        0.05,
		NgramBonus:          0.50,
		PerfectBonus:        1.25,
		BrandPenalty:        0.30,
		IDFCutoffPercentile: 0.07,
		MinIDFCutoff:        5.5,
		HigherIDFCutoff:     8.0,
		CommonPenalty:       0.90,
		LowIDFDiscount:      0.2,
		BrandUnmatchedScale: 2.0,
		BrandPositionStep:   0.1,
		BrandShortWordLen:   5,
		BrandMinTokenLen:    4,
		BrandSwapRatio:      0.70,
		ExactMatchScore:     1000,
		CommonWords:         append([]string(nil), stoplist.DefaultTerms...),
		CategoryWords:       []string{"wine", "wines"},
		AttributeWords: []string{
			"compare", "difference", "dollar", "dollars", "less", "maybe", "more",
			"one", "popular", "range", "selection", "selections", "similar", "thing",
		},
	}
}

// Validate rejects settings that would make scoring meaningless
func (s Settings) Validate() error {
	m := s.Matching
	switch {
	case m.MinFuzzyWordLength < 1:
		return errors.Wrap(internalerr.ErrInvalidConfig, "min_fuzzy_word_length must be positive")
	case m.FuzzyThreshold <= 0 || m.FuzzyThreshold > 100:
		return errors.Wrap(internalerr.ErrInvalidConfig, "fuzzy_threshold must be in (0, 100]")
	case m.IDFCutoffPercentile < 0 || m.IDFCutoffPercentile > 100:
		return errors.Wrap(internalerr.ErrInvalidConfig, "idf_cutoff_percentile must be in [0, 100]")
	case m.PerfectBonus <= 0:
		return errors.Wrap(internalerr.ErrInvalidConfig, "perfect_bonus must be positive")
	case m.BrandPenalty < 0 || m.BrandPenalty >= 1:
		return errors.Wrap(internalerr.ErrInvalidConfig, "brand_penalty must be in [0, 1)")
	case m.BrandSwapRatio <= 0 || m.BrandSwapRatio > 1:
		return errors.Wrap(internalerr.ErrInvalidConfig, "brand_swap_ratio must be in (0, 1]")
	case m.ExactMatchScore <= 0:
		return errors.Wrap(internalerr.ErrInvalidConfig, "exact_match_score must be positive")
	case s.Index.TTL < 0:
		return errors.Wrap(internalerr.ErrInvalidConfig, "index ttl must not be negative")
	}
	return nil
}

// Load reads a settings file on top of Default()
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, errors.Wrapf(err, "parse settings %s", path)
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Stoplist represents the stopword list configuration
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, errors.Wrapf(err, "parse stoplist %s", path)
	}

	return &sl, nil
}

// LoadNgrams reads underscore-joined phrases, one per line.
// Blank lines and lines starting with '#' are ignored.
func LoadNgrams(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}
