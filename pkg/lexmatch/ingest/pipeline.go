package ingest

import (
	"strings"

	"github.com/cognicore/lexmatch/pkg/lexmatch/stoplist"
)

// Pipeline orchestrates dictionary text preparation:
// text → normalization → stopword removal → words
type Pipeline struct {
	normalizer *Normalizer
	stops      *stoplist.Manager
}

// NewPipeline creates a pipeline with the given components
func NewPipeline(normalizer *Normalizer, stops *stoplist.Manager) *Pipeline {
	if normalizer == nil {
		normalizer = NewNormalizer(nil, nil)
	}
	if stops == nil {
		stops = stoplist.NewManager(stoplist.DefaultTerms)
	}
	return &Pipeline{normalizer: normalizer, stops: stops}
}

// ProcessedText is a dictionary string after normalization
type ProcessedText struct {
	Text     string   // normalized, stopwords removed
	Words    []string // Text split on whitespace
	Fallback bool     // normalization emptied the text; Text is the lowercased raw value
}

// Process normalizes text and strips stopwords. When nothing survives, the
// lowercased raw text is used so every dictionary entry keeps some words.
func (p *Pipeline) Process(text string) ProcessedText {
	cleaned := p.normalizer.Clean(text)
	stripped, _ := p.stops.Strip(cleaned)
	if stripped == "" {
		stripped = strings.Join(strings.Fields(strings.ToLower(text)), " ")
		return ProcessedText{Text: stripped, Words: strings.Fields(stripped), Fallback: true}
	}
	return ProcessedText{Text: stripped, Words: strings.Fields(stripped)}
}

// Normalizer returns the normalizer used by the pipeline.
func (p *Pipeline) Normalizer() *Normalizer {
	return p.normalizer
}

// Stoplist returns the stopword manager used by the pipeline.
func (p *Pipeline) Stoplist() *stoplist.Manager {
	return p.stops
}
