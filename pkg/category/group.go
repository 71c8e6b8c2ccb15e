// Package category partitions hits into independent score distributions
// (per charge, fraction, search engine...) and finalises them together,
// pooling the categories too sparse to be validated on their own.
package category

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ChrisMcGann/DecoyVal/pkg/targetdecoy"
)

// Pooled is the key of the distribution collecting suspicious categories.
const Pooled = "grouped"

// Options controls Group.Finalize.
type Options struct {
	// Grouping merges suspicious categories into the Pooled distribution.
	Grouping bool
	// MinNmax is the Nmax below which a category is pooled.
	MinNmax int
	// FDR is the requested FDR in percent, used to detect unreachable targets.
	FDR float64
	// WindowSize overrides the smoothing window of every distribution when > 0.
	WindowSize int
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Grouping: true,
		MinNmax:  100,
		FDR:      1,
	}
}

// Group holds one score distribution per category.
type Group struct {
	maps   sync.Map // string -> *targetdecoy.Map
	logger zerolog.Logger
}

// NewGroup creates an empty group logging to logger.
func NewGroup(logger zerolog.Logger) *Group {
	return &Group{logger: logger}
}

// Put records a hit in the distribution of category.
func (g *Group) Put(category string, score float64, isDecoy bool) {
	g.mapFor(category).Put(score, isDecoy)
}

func (g *Group) mapFor(category string) *targetdecoy.Map {
	if v, ok := g.maps.Load(category); ok {
		return v.(*targetdecoy.Map)
	}
	actual, _ := g.maps.LoadOrStore(category, targetdecoy.NewMap())
	return actual.(*targetdecoy.Map)
}

// Map returns the distribution of category, if any hit was put there.
func (g *Group) Map(category string) (*targetdecoy.Map, bool) {
	v, ok := g.maps.Load(category)
	if !ok {
		return nil, false
	}
	return v.(*targetdecoy.Map), true
}

// Categories returns the category names in sorted order.
func (g *Group) Categories() []string {
	var names []string
	g.maps.Range(func(key, _ any) bool {
		names = append(names, key.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Finalize estimates every distribution and builds its validation series.
// Accumulation must be over before it is called.
func (g *Group) Finalize(ctx context.Context, opts Options) (*Result, error) {
	categories := g.Categories()
	if len(categories) == 0 {
		return nil, targetdecoy.ErrNoHits
	}

	res := &Result{
		maps:      make(map[string]*targetdecoy.Map),
		series:    make(map[string]*targetdecoy.Series),
		redirects: make(map[string]string),
	}

	var pool *targetdecoy.Map
	for _, name := range categories {
		m, _ := g.Map(name)
		if err := m.EstimateNs(); err != nil {
			return nil, fmt.Errorf("failed to estimate category %s: %w", name, err)
		}
		if opts.Grouping && len(categories) > 1 && g.suspicious(m, opts) {
			if pool == nil {
				pool = targetdecoy.NewMap()
			}
			pool.AddAll(m)
			res.redirects[name] = Pooled
			g.logger.Debug().
				Str("category", name).
				Int("nmax", m.NMax()).
				Float64("min_fdr", m.MinFDR()).
				Msg("pooling suspicious category")
			continue
		}
		res.maps[name] = m
	}
	if pool != nil {
		res.maps[Pooled] = pool
	}

	eg, egCtx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	for name, m := range res.maps {
		name, m := name, m
		eg.Go(func() error {
			if opts.WindowSize > 0 {
				m.SetWindowSize(opts.WindowSize)
			}
			if err := m.EstimateProbabilities(egCtx); err != nil {
				return fmt.Errorf("failed to estimate probabilities for %s: %w", name, err)
			}
			s, err := targetdecoy.NewSeries(m)
			if err != nil {
				return fmt.Errorf("failed to build series for %s: %w", name, err)
			}
			mu.Lock()
			res.series[name] = s
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.logger.Info().
		Int("categories", len(categories)).
		Int("distributions", len(res.maps)).
		Int("pooled", len(res.redirects)).
		Msg("score distributions finalised")
	return res, nil
}

// suspicious applies Map.SuspiciousInput with the configured MinNmax in place
// of the engine default.
func (g *Group) suspicious(m *targetdecoy.Map, opts Options) bool {
	return m.NMax() < opts.MinNmax || m.MinFDR() > opts.FDR/100
}

// Result holds the finalised distributions of a Group.
type Result struct {
	maps      map[string]*targetdecoy.Map
	series    map[string]*targetdecoy.Series
	redirects map[string]string
}

// Redirect returns the distribution a category was validated with: itself,
// or Pooled when it was merged.
func (r *Result) Redirect(category string) string {
	if to, ok := r.redirects[category]; ok {
		return to
	}
	return category
}

// Distributions returns the names of the finalised distributions, sorted.
func (r *Result) Distributions() []string {
	names := make([]string, 0, len(r.series))
	for name := range r.series {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Map returns the finalised distribution for category, following redirects.
func (r *Result) Map(category string) (*targetdecoy.Map, bool) {
	m, ok := r.maps[r.Redirect(category)]
	return m, ok
}

// Series returns the validation series for category, following redirects.
func (r *Result) Series(category string) (*targetdecoy.Series, bool) {
	s, ok := r.series[r.Redirect(category)]
	return s, ok
}

// Resolve fills t from the series of category.
func (r *Result) Resolve(category string, t *targetdecoy.Thresholds) error {
	s, ok := r.Series(category)
	if !ok {
		return fmt.Errorf("unknown category: %s", category)
	}
	s.Resolve(t)
	return nil
}
