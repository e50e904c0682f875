package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gyaneshwarpardhi/ibhops/internal/config"
	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
	"github.com/gyaneshwarpardhi/ibhops/internal/metrics"
	"github.com/gyaneshwarpardhi/ibhops/internal/progress"
	"github.com/gyaneshwarpardhi/ibhops/internal/query"
	"github.com/gyaneshwarpardhi/ibhops/internal/route"
	"github.com/gyaneshwarpardhi/ibhops/internal/selector"
	"github.com/gyaneshwarpardhi/ibhops/internal/sink"
)

var (
	// ErrQueueFull is returned by CountSync when no queue slot is free.
	ErrQueueFull = errors.New("engine: query queue full")
	// ErrTimeout is returned by CountSync when a query outlives the configured timeout.
	ErrTimeout = errors.New("engine: query timed out")

	errPoolStopped = errors.New("engine: worker pool stopped")
)

// Report summarises one batch analysis. Per-target entries go to the sink.
type Report struct {
	ID         string                `json:"id" yaml:"id"`
	Source     string                `json:"source" yaml:"source"`
	SourceGUID fabric.GUID           `json:"source_guid" yaml:"source_guid"`
	Generation uint64                `json:"fabric_generation" yaml:"fabric_generation"`
	Targets    int                   `json:"targets" yaml:"targets"`
	Outcomes   map[route.Outcome]int `json:"outcomes" yaml:"outcomes"`
	DurationMs int64                 `json:"duration_ms" yaml:"duration_ms"`
}

// snapshot pins a fabric and its generation for the lifetime of a query.
type snapshot struct {
	counter *route.Counter
	gen     uint64
}

type pairKey struct {
	gen      uint64
	src, dst fabric.GUID
}

type pairResult struct {
	res route.Result
	err error
}

type pairWork struct {
	snap     *snapshot
	src, dst *fabric.Entity
	done     func(route.Result, error)
}

// Engine answers hop-count queries over the current fabric.
type Engine struct {
	snap  atomic.Pointer[snapshot]
	cache *lru.Cache[pairKey, pairResult]
	pool  *workerPool[*pairWork]
	conf  config.AnalysisConf

	swapMu sync.Mutex // serialises swaps so generations only grow
	gen    uint64
}

// New creates an Engine over f using conf and starts the worker pool. f may
// be nil; queries then fail with route.ErrFabricNotFound until SwapFabric.
func New(ctx context.Context, f *fabric.Fabric, conf config.AnalysisConf) (*Engine, error) {
	e := &Engine{conf: conf}
	if conf.CacheSize > 0 {
		c, err := lru.New[pairKey, pairResult](conf.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("engine: pair cache: %w", err)
		}
		e.cache = c
	}
	e.SwapFabric(f)

	e.pool = newWorkerPool[*pairWork](
		ctx,
		conf.Workers,
		conf.QueueDepth,
		func(ctx context.Context, w *pairWork) {
			w.done(e.count(w.snap, w.src, w.dst))
		},
	)
	return e, nil
}

// SwapFabric atomically replaces the fabric (used on hot-reload).
func (e *Engine) SwapFabric(f *fabric.Fabric) {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()
	metrics.FabricEntities.Reset()
	if f == nil {
		e.snap.Store(nil)
	} else {
		e.gen++
		e.snap.Store(&snapshot{counter: route.NewCounter(f), gen: e.gen})
		for kind, n := range f.KindCounts() {
			metrics.FabricEntities.WithLabelValues(string(kind)).Set(float64(n))
		}
	}
	if e.cache != nil {
		e.cache.Purge()
	}
}

// Apply builds the fabric described by cfg and swaps it in. It is the
// config.Loader change hook; on error the current fabric stays.
func (e *Engine) Apply(cfg *config.Config) error {
	f, err := fabric.FromConfig(&cfg.Fabric)
	if err != nil {
		return err
	}
	e.SwapFabric(f)
	return nil
}

// Fabric returns the current fabric, or nil if none is loaded.
func (e *Engine) Fabric() *fabric.Fabric {
	if s := e.snap.Load(); s != nil {
		return s.counter.Fabric()
	}
	return nil
}

// Generation increments on every fabric swap.
func (e *Engine) Generation() uint64 {
	if s := e.snap.Load(); s != nil {
		return s.gen
	}
	return 0
}

// CountSync answers a single query on the worker pool and waits for it.
func (e *Engine) CountSync(ctx context.Context, source, target string) (route.Result, error) {
	snap := e.snap.Load()
	if snap == nil {
		metrics.QueriesTotal.WithLabelValues(string(route.OutcomeNoFabric)).Inc()
		return route.Result{}, route.ErrFabricNotFound
	}
	src, err := snap.lookup(source, route.ErrSourceUnresolved)
	if err != nil {
		observe(route.Result{}, err)
		return route.Result{}, err
	}
	dst, err := snap.lookup(target, route.ErrTargetUnresolved)
	if err != nil {
		observe(route.Result{}, err)
		return route.Result{}, err
	}

	resultC := make(chan pairResult, 1)
	w := &pairWork{snap: snap, src: src, dst: dst, done: func(res route.Result, err error) {
		resultC <- pairResult{res: res, err: err}
	}}
	if !e.pool.Submit(w) {
		metrics.QueriesDropped.Inc()
		return route.Result{}, fmt.Errorf("%w (capacity %d)", ErrQueueFull, e.pool.QueueCap())
	}

	timeout := time.Duration(e.conf.QueryTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	select {
	case r := <-resultC:
		return r.res, r.err
	case <-time.After(timeout):
		return route.Result{}, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	case <-ctx.Done():
		return route.Result{}, ctx.Err()
	}
}

// Analyze counts hops from q.Source to every selected target, recording one
// entry per target in s. Fabric-level failures (no fabric, unresolvable
// source, bad filter) abort the run; per-target failures become entries.
// Cancelling ctx stops issuing further pairs and returns the partial report
// together with ctx's error.
func (e *Engine) Analyze(ctx context.Context, q *query.Query, s sink.Sink, rep progress.Reporter) (*Report, error) {
	if rep == nil {
		rep = progress.Nop{}
	}
	if err := q.Validate(); err != nil {
		rep.Fail(err)
		return nil, err
	}
	q.Normalize()

	start := time.Now()
	report, err := e.analyze(ctx, q, s, rep)
	elapsed := time.Since(start).Milliseconds()
	metrics.AnalysisDuration.Observe(float64(elapsed))
	if report != nil {
		report.DurationMs = elapsed
	}
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		rep.Fail(err)
		return report, err
	}
	metrics.AnalysesTotal.WithLabelValues("ok").Inc()
	return report, nil
}

func (e *Engine) analyze(ctx context.Context, q *query.Query, s sink.Sink, rep progress.Reporter) (*Report, error) {
	const steps = 3
	snap := e.snap.Load()
	if snap == nil {
		return nil, route.ErrFabricNotFound
	}
	src, err := snap.lookup(q.Source, route.ErrSourceUnresolved)
	if err != nil {
		return nil, err
	}
	if _, err := snap.counter.Resolver().Source(src); err != nil {
		return nil, err
	}
	rep.Step(1, steps, "fabric located")

	var filter selector.Expr
	if q.Filter != "" {
		if filter, err = selector.Parse(q.Filter); err != nil {
			return nil, err
		}
	}
	targets, missing, err := snap.selectTargets(q.Targets, filter)
	if err != nil {
		return nil, err
	}
	rep.Step(2, steps, "targets selected")

	t := &tally{sink: s, counts: make(map[route.Outcome]int)}
	for _, name := range missing {
		t.Record(sink.Entry{
			Node:    name,
			Outcome: route.OutcomeUnresolved,
			Error:   fmt.Sprintf("%v: %s", route.ErrTargetUnresolved, name),
		})
		metrics.QueriesTotal.WithLabelValues(string(route.OutcomeUnresolved)).Inc()
	}

	// pending starts at one so finished cannot close while pairs are still being issued.
	var pending atomic.Int64
	finished := make(chan struct{})
	release := func() {
		if pending.Add(-1) == 0 {
			close(finished)
		}
	}
	pending.Add(1)
	var submitErr error
	for _, dst := range targets {
		if err := ctx.Err(); err != nil {
			submitErr = err
			break
		}
		pending.Add(1)
		w := &pairWork{snap: snap, src: src, dst: dst, done: func(res route.Result, err error) {
			t.Record(sink.NewEntry(dst, res, err))
			release()
		}}
		if err := e.pool.SubmitWait(ctx, w); err != nil {
			release()
			submitErr = err
			break
		}
	}
	release()

	select {
	case <-finished:
	case <-e.pool.Stopped():
		if pending.Load() != 0 {
			return nil, errPoolStopped
		}
	}

	report := &Report{
		ID:         q.ID,
		Source:     q.Source,
		SourceGUID: src.GUID,
		Generation: snap.gen,
		Targets:    len(targets) + len(missing),
		Outcomes:   t.snapshot(),
	}
	if submitErr != nil {
		return report, submitErr
	}
	rep.Step(3, steps, "analysis complete")
	return report, nil
}

// count runs one pair through the cache and the counter.
func (e *Engine) count(snap *snapshot, src, dst *fabric.Entity) (route.Result, error) {
	key := pairKey{gen: snap.gen, src: src.GUID, dst: dst.GUID}
	if e.cache != nil {
		if r, ok := e.cache.Get(key); ok {
			metrics.CacheHits.Inc()
			observe(r.res, r.err)
			return r.res, r.err
		}
	}
	res, err := snap.counter.CountEntities(src, dst)
	if e.cache != nil {
		e.cache.Add(key, pairResult{res: res, err: err})
	}
	observe(res, err)
	return res, err
}

func observe(res route.Result, err error) {
	metrics.QueriesTotal.WithLabelValues(string(route.OutcomeOf(err))).Inc()
	if err == nil {
		metrics.HopCount.Observe(float64(res.Hops))
	}
}

// QueueUtilization returns queue used / capacity (0-1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

// Shutdown drains the pool gracefully. No queries may be issued afterwards.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}

func (s *snapshot) lookup(node string, sentinel error) (*fabric.Entity, error) {
	ent, err := s.counter.Resolver().Lookup(node)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sentinel, err)
	}
	return ent, nil
}

// selectTargets resolves the named targets, or every entity when names is
// empty (the source included, it counts 0 hops), and keeps those matching filter. Names that do not resolve
// are returned separately.
func (s *snapshot) selectTargets(names []string, filter selector.Expr) ([]*fabric.Entity, []string, error) {
	f := s.counter.Fabric()
	var cands []*fabric.Entity
	var missing []string
	if len(names) == 0 {
		ents := f.Entities()
		for i := range ents {
			cands = append(cands, &ents[i])
		}
	} else {
		seen := make(map[fabric.EntityID]bool, len(names))
		for _, name := range names {
			ent, err := s.counter.Resolver().Lookup(name)
			if err != nil {
				missing = append(missing, name)
				continue
			}
			if seen[ent.ID] {
				continue
			}
			seen[ent.ID] = true
			cands = append(cands, ent)
		}
	}

	out := cands[:0]
	for _, ent := range cands {
		ok, err := selector.Match(filter, entityFields{ent})
		if err != nil {
			return nil, nil, fmt.Errorf("filter on %s: %w", ent, err)
		}
		if ok {
			out = append(out, ent)
		}
	}
	return out, missing, nil
}

// tally counts outcomes on the way to the caller's sink.
type tally struct {
	sink   sink.Sink
	mu     sync.Mutex
	counts map[route.Outcome]int
}

func (t *tally) Record(e sink.Entry) {
	t.mu.Lock()
	t.counts[e.Outcome]++
	t.mu.Unlock()
	if t.sink != nil {
		t.sink.Record(e)
	}
}

func (t *tally) snapshot() map[route.Outcome]int {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[route.Outcome]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}
