// Package lexmatch recognizes dictionary entities in short free-text
// queries. An Engine holds one immutable index snapshot per category,
// built from a catalog and optionally shared through an artifact store,
// and answers lookups against it without locking.
package lexmatch

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/cognicore/lexmatch/pkg/lexmatch/config"
	"github.com/cognicore/lexmatch/pkg/lexmatch/index"
	"github.com/cognicore/lexmatch/pkg/lexmatch/internalerr"
	"github.com/cognicore/lexmatch/pkg/lexmatch/metrics"
	"github.com/cognicore/lexmatch/pkg/lexmatch/query"
	"github.com/cognicore/lexmatch/pkg/lexmatch/rank"
	"github.com/cognicore/lexmatch/pkg/lexmatch/store"
)

// Lemmatizer maps query words to their lemmas
type Lemmatizer interface {
	Lemmas(ctx context.Context, words []string) (map[string]string, error)
}

// Options configures an Engine. Only Catalog is needed to build; every
// other collaborator is optional.
type Options struct {
	Components *config.Components // nil uses the default configuration
	Catalog    store.Catalog
	Artifacts  store.ArtifactStore
	Products   store.ProductSearcher
	Brands     store.BrandSource
	Lemmatizer Lemmatizer
	Metrics    *metrics.Metrics
	Logger     *zap.Logger

	// Reorder, when set, runs after each scoring pass.
	Reorder func([]*rank.Candidate) []*rank.Candidate
	// Now overrides the clock.
	Now func() time.Time
}

// Engine is the lookup facade
type Engine struct {
	comps   *config.Components
	opts    Options
	logger  *zap.Logger
	now     func() time.Time
	entries sync.Map // int64 category -> *entry
	group   singleflight.Group
}

// entry is replaced whole, never mutated.
type entry struct {
	snap     *index.Snapshot
	modified time.Time // artifact modification time, zero when unknown
	stale    bool
}

// New creates an Engine. It holds no snapshot until Refresh, Load or
// EnsureFresh succeeds.
func New(opts Options) (*Engine, error) {
	comps := opts.Components
	if comps == nil {
		var err error
		comps, err = config.Build(config.Default())
		if err != nil {
			return nil, err
		}
	}
	if err := comps.Settings.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{comps: comps, opts: opts, logger: logger, now: now}, nil
}

// Snapshot returns the live snapshot of a category, or nil.
func (e *Engine) Snapshot(categoryID int64) *index.Snapshot {
	if en := e.entry(e.category(categoryID)); en != nil {
		return en.snap
	}
	return nil
}

func (e *Engine) entry(categoryID int64) *entry {
	v, ok := e.entries.Load(categoryID)
	if !ok {
		return nil
	}
	return v.(*entry)
}

func (e *Engine) category(id int64) int64 {
	if id == 0 {
		return e.comps.Settings.Index.CategoryID
	}
	return id
}

func (e *Engine) artifactKey(categoryID int64) string {
	return store.ArtifactKey(e.comps.Settings.Index.ArtifactKey, categoryID)
}

// Refresh rebuilds the category index from the catalog, installs it and
// stores it as an artifact. Concurrent calls for one category share a
// single build.
func (e *Engine) Refresh(ctx context.Context, categoryID int64) (index.Report, error) {
	categoryID = e.category(categoryID)
	v, err, shared := e.group.Do("build:"+strconv.FormatInt(categoryID, 10), func() (interface{}, error) {
		return e.build(ctx, categoryID)
	})
	if shared {
		e.logger.Debug("joined in-flight build", zap.Int64("category", categoryID))
	}
	if err != nil {
		return index.Report{}, err
	}
	return v.(index.Report), nil
}

func (e *Engine) build(ctx context.Context, categoryID int64) (index.Report, error) {
	if e.opts.Catalog == nil {
		return index.Report{}, errors.Wrap(internalerr.ErrInvalidInput, "no catalog configured")
	}
	start := e.now()
	e.logger.Info("building index", zap.Int64("category", categoryID))

	var rows []store.CatalogRow
	err := e.opts.Catalog.EachRow(ctx, categoryID, func(r store.CatalogRow) error {
		rows = append(rows, r)
		return nil
	})
	if err != nil {
		e.opts.Metrics.ObserveBuild(metrics.StatusError, e.now().Sub(start), 0)
		return index.Report{}, errors.Wrapf(err, "read catalog for category %d", categoryID)
	}

	snap, report := index.NewBuilder(e.comps.Settings.Matching, e.comps.Pipeline, e.logger).
		WithClock(e.now).
		Build(categoryID, rows)

	var modified time.Time
	if e.opts.Artifacts != nil {
		modified = e.persist(ctx, snap)
	}
	e.entries.Store(categoryID, &entry{snap: snap, modified: modified})

	took := e.now().Sub(start)
	e.opts.Metrics.ObserveBuild(metrics.StatusOK, took, len(report.Skipped))
	e.opts.Metrics.ObserveSwap("build", snap.Len())
	e.logger.Info("index built",
		zap.Int64("category", categoryID),
		zap.String("version", snap.Version),
		zap.Int("rows", report.Rows),
		zap.Int("indexed", report.Indexed),
		zap.Int("skipped", len(report.Skipped)),
		zap.Duration("took", took))
	return report, nil
}

// persist stores snap and returns the artifact's modification time.
// Failures leave the snapshot live but unshared.
func (e *Engine) persist(ctx context.Context, snap *index.Snapshot) time.Time {
	key := e.artifactKey(snap.CategoryID)
	blob, err := index.Encode(snap)
	if err == nil {
		err = e.opts.Artifacts.Put(ctx, key, blob, e.comps.Settings.Index.TTL)
	}
	if err != nil {
		e.logger.Warn("storing index artifact failed", zap.String("key", key), zap.Error(err))
		return time.Time{}
	}
	modified, err := e.opts.Artifacts.Modified(ctx, key)
	if err != nil {
		e.logger.Warn("reading artifact time failed", zap.String("key", key), zap.Error(err))
		return time.Time{}
	}
	return modified
}

// Load installs the category index stored in the artifact store. It
// returns ErrNotReady when no artifact exists.
func (e *Engine) Load(ctx context.Context, categoryID int64) error {
	categoryID = e.category(categoryID)
	if e.opts.Artifacts == nil {
		return errors.Wrap(internalerr.ErrNotReady, "no artifact store configured")
	}
	key := e.artifactKey(categoryID)

	modified, err := e.opts.Artifacts.Modified(ctx, key)
	if err != nil {
		return e.artifactErr(err, key)
	}
	blob, err := e.opts.Artifacts.Get(ctx, key)
	if err != nil {
		return e.artifactErr(err, key)
	}
	snap, err := index.Decode(blob)
	if err != nil {
		return errors.Wrapf(err, "artifact %s", key)
	}
	if snap.CategoryID != categoryID {
		return errors.Newf("artifact %s holds category %d", key, snap.CategoryID)
	}

	e.entries.Store(categoryID, &entry{snap: snap, modified: modified})
	e.opts.Metrics.ObserveSwap("artifact", snap.Len())
	e.logger.Info("index loaded",
		zap.Int64("category", categoryID),
		zap.String("version", snap.Version),
		zap.Int("entities", snap.Len()))
	return nil
}

func (e *Engine) artifactErr(err error, key string) error {
	if internalerr.IsNotFound(err) {
		return internalerr.WrapAs(internalerr.ErrNotReady, err, "artifact %s", key)
	}
	return errors.Wrapf(err, "artifact %s", key)
}

// EnsureFresh makes the live snapshot current. It loads an artifact that
// is newer than the live snapshot and rebuilds when the artifact is
// missing, older than the configured TTL, or the snapshot was
// invalidated.
func (e *Engine) EnsureFresh(ctx context.Context, categoryID int64) error {
	categoryID = e.category(categoryID)
	ttl := e.comps.Settings.Index.TTL
	cur := e.entry(categoryID)

	if e.opts.Artifacts == nil {
		if cur == nil || cur.stale || (ttl > 0 && cur.snap.Age(e.now()) >= ttl) {
			_, err := e.Refresh(ctx, categoryID)
			return err
		}
		return nil
	}

	modified, err := e.opts.Artifacts.Modified(ctx, e.artifactKey(categoryID))
	switch {
	case internalerr.IsNotFound(err):
		_, err = e.Refresh(ctx, categoryID)
		return err
	case err != nil:
		return errors.Wrap(err, "check artifact")
	case ttl > 0 && e.now().Sub(modified) >= ttl, cur != nil && cur.stale:
		_, err = e.Refresh(ctx, categoryID)
		return err
	case cur == nil || modified.After(cur.modified):
		if err := e.Load(ctx, categoryID); err != nil {
			if !errors.Is(err, internalerr.ErrNotReady) {
				return err
			}
			_, err = e.Refresh(ctx, categoryID)
			return err
		}
	}
	return nil
}

// Invalidate deletes the stored artifact and marks the live snapshot
// stale. The stale snapshot keeps serving until the next EnsureFresh.
func (e *Engine) Invalidate(ctx context.Context, categoryID int64) error {
	categoryID = e.category(categoryID)
	if e.opts.Artifacts != nil {
		if err := e.opts.Artifacts.Delete(ctx, e.artifactKey(categoryID)); err != nil {
			return errors.Wrap(err, "delete artifact")
		}
	}
	if cur := e.entry(categoryID); cur != nil {
		e.entries.Store(categoryID, &entry{snap: cur.snap, modified: cur.modified, stale: true})
	}
	e.logger.Info("index invalidated", zap.Int64("category", categoryID))
	return nil
}

// LookupRequest is one query to match against the dictionary
type LookupRequest struct {
	SourceID   int64
	CategoryID int64 // 0 uses the configured default
	Sentence   string

	SingleBrand   bool
	DisallowBrand bool
	AllowFuzzy    bool
	Human         bool
	CheckProducts bool

	OrderedCodes   []string
	AttributeWords []string // nil uses the configured list
	AllowedCodes   []string
	SourceBrandIDs []int64 // nil asks the BrandSource
}

// LookupResult is the outcome of a lookup
type LookupResult struct {
	Attributes []query.Attribute `json:"attributes"`
	ProductIDs []int64           `json:"product_ids"`
	Leftover   []string          `json:"leftover"`
	Version    string            `json:"version"`
}

// Lookup extracts dictionary entities from the request sentence.
func (e *Engine) Lookup(ctx context.Context, req LookupRequest) (LookupResult, error) {
	start := e.now()
	categoryID := e.category(req.CategoryID)
	snap := e.Snapshot(categoryID)
	if snap == nil {
		e.opts.Metrics.ObserveLookup(metrics.StatusNotReady, e.now().Sub(start), 0)
		return LookupResult{}, errors.Wrapf(internalerr.ErrNotReady, "category %d", categoryID)
	}

	qt := e.comps.Pipeline.Normalizer().Tokenize(req.Sentence)
	keys := qt.Keys
	stops := e.comps.Pipeline.Stoplist().Positions(keys)

	qreq := query.Request{
		SourceID:       req.SourceID,
		CategoryID:     categoryID,
		Tokens:         qt.Literal,
		Keys:           keys,
		Origins:        qt.Origins,
		Stopwords:      stops,
		SingleBrand:    req.SingleBrand,
		DisallowBrand:  req.DisallowBrand,
		AllowFuzzy:     req.AllowFuzzy,
		Human:          req.Human,
		CheckProducts:  req.CheckProducts,
		OrderedCodes:   req.OrderedCodes,
		AttributeWords: req.AttributeWords,
		AllowedCodes:   req.AllowedCodes,
		SourceBrands:   e.sourceBrands(ctx, req, categoryID),
	}
	if req.AllowFuzzy && len(keys) > 0 {
		qreq.Lemmas = e.lemmas(ctx, keys)
	}

	x := query.NewExtractor(snap, e.comps.Settings.Matching, e.opts.Products, e.logger)
	if e.opts.Reorder != nil {
		x.Scorer().SetReorderer(e.opts.Reorder)
	}
	out, err := x.Extract(ctx, qreq)
	if err != nil {
		e.opts.Metrics.ObserveLookup(metrics.StatusError, e.now().Sub(start), 0)
		return LookupResult{}, errors.Wrap(err, "extract")
	}

	res := LookupResult{
		Attributes: query.Format(out.Matches),
		ProductIDs: out.ProductIDs,
		Leftover:   query.LeftoverTokens(qt.Literal, out.Leftover),
		Version:    snap.Version,
	}
	e.opts.Metrics.ObserveLookup(metrics.StatusOK, e.now().Sub(start), len(res.Attributes))
	e.logger.Debug("lookup",
		zap.String("sentence", req.Sentence),
		zap.Int("attributes", len(res.Attributes)),
		zap.Int("iterations", out.Iterations))
	return res, nil
}

func (e *Engine) sourceBrands(ctx context.Context, req LookupRequest, categoryID int64) []int64 {
	if req.SourceBrandIDs != nil || e.opts.Brands == nil || req.SourceID == 0 {
		return req.SourceBrandIDs
	}
	ids, err := e.opts.Brands.BrandsForSource(ctx, req.SourceID, categoryID)
	if err != nil {
		e.logger.Warn("source brand lookup failed", zap.Int64("source", req.SourceID), zap.Error(err))
		return nil
	}
	return ids
}

// lemmas asks the lemmatizer about the query keys. Failures fall back to
// matching without lemmas.
func (e *Engine) lemmas(ctx context.Context, keys []string) map[string]string {
	if e.opts.Lemmatizer == nil {
		return nil
	}
	m, err := e.opts.Lemmatizer.Lemmas(ctx, keys)
	if err != nil {
		e.logger.Warn("lemmatizer failed", zap.Error(err))
		return nil
	}
	return m
}
