package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/commonwealth-analytics/thriving-index/internal/fetcher"
	"github.com/commonwealth-analytics/thriving-index/internal/store"
)

// Engine orchestrates collection runs and persists the resulting series.
type Engine struct {
	store       store.Store
	fetcher     fetcher.Fetcher
	reg         *Registry
	tempDir     string
	concurrency int
}

// RunOpts configures which collectors to run.
type RunOpts struct {
	Collectors []string // restrict to specific collector names
	Year       int      // data year; capped at the latest published year
}

// RunResult summarizes one collection run.
type RunResult struct {
	Collected int // collectors that completed
	Failed    int // collectors that errored
	Series    int // series persisted
	Records   int // county records persisted
}

// NewEngine creates a collection engine. concurrency bounds how many
// collectors run at once; values below 1 mean one at a time.
func NewEngine(st store.Store, f fetcher.Fetcher, reg *Registry, tempDir string, concurrency int) *Engine {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Engine{
		store:       st,
		fetcher:     f,
		reg:         reg,
		tempDir:     tempDir,
		concurrency: concurrency,
	}
}

// Run executes the selected collectors concurrently and saves every series
// each one produces. A failing collector does not stop the others; the run
// errors only if nothing succeeds.
func (e *Engine) Run(ctx context.Context, opts RunOpts) (*RunResult, error) {
	log := zap.L().With(zap.String("component", "collector.engine"))

	collectors, err := e.reg.Select(opts.Collectors)
	if err != nil {
		return nil, err
	}
	if len(collectors) == 0 {
		log.Info("no collectors selected")
		return &RunResult{}, nil
	}

	year := lastDataYear(opts.Year, time.Now().UTC())
	log.Info("starting collection", zap.Int("collectors", len(collectors)), zap.Int("year", year))

	var mu sync.Mutex
	result := &RunResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for _, c := range collectors {
		g.Go(func() error {
			cLog := log.With(zap.String("collector", c.Name()))

			start := time.Now()
			series, err := c.Collect(gctx, e.fetcher, year, e.tempDir)
			if err != nil {
				cLog.Error("collection failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return nil
			}

			for _, s := range series {
				if err := e.store.SaveCountySeries(gctx, s.Variable, s.Kind, s.Records); err != nil {
					return eris.Wrapf(err, "engine: save series %s", s.Variable)
				}
				mu.Lock()
				result.Series++
				result.Records += len(s.Records)
				mu.Unlock()
			}

			cLog.Info("collection complete",
				zap.Int("series", len(series)),
				zap.Duration("elapsed", time.Since(start)),
			)
			mu.Lock()
			result.Collected++
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return result, err
	}

	log.Info("collection run finished",
		zap.Int("collected", result.Collected),
		zap.Int("failed", result.Failed),
		zap.Int("series", result.Series),
		zap.Int("records", result.Records),
	)

	if result.Collected == 0 && result.Failed > 0 {
		return result, eris.New("engine: all collectors failed")
	}
	return result, nil
}
