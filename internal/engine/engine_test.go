package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gyaneshwarpardhi/ibhops/internal/config"
	"github.com/gyaneshwarpardhi/ibhops/internal/fabric"
	"github.com/gyaneshwarpardhi/ibhops/internal/query"
	"github.com/gyaneshwarpardhi/ibhops/internal/route"
	"github.com/gyaneshwarpardhi/ibhops/internal/sink"
)

// hca-a -- sw1 -- sw2 -- hca-b, with hca-c hanging off sw2 but missing from sw1's table.
const lineYAML = `
version: v1
fabric:
  entities:
    - {guid: "0xa", node: hca-a, kind: adapter, lids: [1], ports: 1}
    - guid: "0x10"
      node: sw1
      kind: switch
      lids: [10]
      ports: 4
      routes: [{port: 1, lids: [1]}, {port: 2, lids: [2, 20]}]
    - guid: "0x20"
      node: sw2
      kind: switch
      lids: [20]
      ports: 4
      routes: [{port: 1, lids: [1, 10]}, {port: 2, lids: [2]}, {port: 3, lids: [3]}]
    - {guid: "0xb", node: hca-b, kind: adapter, lids: [2], ports: 1}
    - {guid: "0xc", node: hca-c, kind: adapter, lids: [3], ports: 1}
  links:
    - {from: {node: hca-a, port: 1}, to: {node: sw1, port: 1}}
    - {from: {node: sw1, port: 2}, to: {node: sw2, port: 1}}
    - {from: {node: sw2, port: 2}, to: {node: hca-b, port: 1}}
    - {from: {node: sw2, port: 3}, to: {node: hca-c, port: 1}}
`

func lineFabric(t *testing.T) *fabric.Fabric {
	t.Helper()
	cfg, err := config.Parse([]byte(lineYAML))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}
	f, err := fabric.FromConfig(&cfg.Fabric)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return f
}

func newTestEngine(t *testing.T, f *fabric.Fabric) *Engine {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	e, err := New(ctx, f, config.AnalysisConf{Workers: 2, QueueDepth: 16, QueryTimeoutMs: 1000, CacheSize: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		cancel()
		e.Shutdown()
	})
	return e
}

type recorder struct {
	mu    sync.Mutex
	steps []string
	fails []error
}

func (r *recorder) Step(n, total int, comment string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, comment)
}

func (r *recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fails = append(r.fails, err)
}

func TestCountSync(t *testing.T) {
	e := newTestEngine(t, lineFabric(t))

	res, err := e.CountSync(context.Background(), "hca-a", "hca-b")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Hops != 3 {
		t.Errorf("expected 3 hops, got %d", res.Hops)
	}
	if _, err := e.CountSync(context.Background(), "hca-a", "hca-b"); err != nil {
		t.Fatalf("second query: %v", err)
	}
	if e.cache.Len() != 1 {
		t.Errorf("expected one cached pair, got %d", e.cache.Len())
	}

	_, err = e.CountSync(context.Background(), "hca-a", "hca-c")
	if !errors.Is(err, route.ErrNoRoute) {
		t.Errorf("expected ErrNoRoute, got %v", err)
	}
	_, err = e.CountSync(context.Background(), "ghost", "hca-b")
	if !errors.Is(err, route.ErrSourceUnresolved) {
		t.Errorf("expected ErrSourceUnresolved, got %v", err)
	}
	_, err = e.CountSync(context.Background(), "hca-a", "ghost")
	if !errors.Is(err, route.ErrTargetUnresolved) {
		t.Errorf("expected ErrTargetUnresolved, got %v", err)
	}
}

func TestCountSyncNoFabric(t *testing.T) {
	e := newTestEngine(t, nil)
	if _, err := e.CountSync(context.Background(), "hca-a", "hca-b"); !errors.Is(err, route.ErrFabricNotFound) {
		t.Errorf("expected ErrFabricNotFound, got %v", err)
	}
	if e.Fabric() != nil || e.Generation() != 0 {
		t.Errorf("empty engine should report no fabric")
	}
}

func TestSwapFabricPurgesCache(t *testing.T) {
	f := lineFabric(t)
	e := newTestEngine(t, f)
	gen := e.Generation()

	if _, err := e.CountSync(context.Background(), "hca-a", "sw2"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.SwapFabric(lineFabric(t))
	if e.Generation() != gen+1 {
		t.Errorf("generation should advance, got %d after %d", e.Generation(), gen)
	}
	if e.cache.Len() != 0 {
		t.Errorf("cache should be empty after swap, has %d", e.cache.Len())
	}
	if e.Fabric() == f {
		t.Errorf("fabric was not swapped")
	}
}

func TestAnalyzeAllTargets(t *testing.T) {
	e := newTestEngine(t, lineFabric(t))
	store := sink.NewStore()
	rec := &recorder{}

	q := query.New("hca-a")
	rep, err := e.Analyze(context.Background(), q, store, rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.ID != q.ID || rep.SourceGUID != 0xa {
		t.Errorf("report header mismatch: %+v", rep)
	}
	if rep.Targets != 5 || store.Len() != 5 {
		t.Fatalf("expected 5 targets, got report %d store %d", rep.Targets, store.Len())
	}
	if rep.Outcomes[route.OutcomeOK] != 4 || rep.Outcomes[route.OutcomeNoRoute] != 1 {
		t.Errorf("unexpected outcomes %v", rep.Outcomes)
	}

	want := map[string]int{"hca-a": 0, "sw1": 1, "sw2": 2, "hca-b": 3}
	for node, hops := range want {
		got, ok := store.Get(node)
		if !ok || got.Hops == nil {
			t.Errorf("%s: missing hop count (%+v)", node, got)
			continue
		}
		if *got.Hops != hops {
			t.Errorf("%s: expected %d hops, got %d", node, hops, *got.Hops)
		}
	}
	if c, _ := store.Get("hca-c"); c.Hops != nil || c.Outcome != route.OutcomeNoRoute || c.Error == "" {
		t.Errorf("hca-c should fail with no_route, got %+v", c)
	}

	wantSteps := []string{"fabric located", "targets selected", "analysis complete"}
	if len(rec.steps) != len(wantSteps) {
		t.Fatalf("expected steps %v, got %v", wantSteps, rec.steps)
	}
	for i := range wantSteps {
		if rec.steps[i] != wantSteps[i] {
			t.Errorf("step %d: expected %q, got %q", i, wantSteps[i], rec.steps[i])
		}
	}
	if len(rec.fails) != 0 {
		t.Errorf("unexpected failures %v", rec.fails)
	}
}

func TestAnalyzeNamedTargetsAndFilter(t *testing.T) {
	e := newTestEngine(t, lineFabric(t))

	cases := []struct {
		name     string
		q        *query.Query
		targets  int
		outcomes map[route.Outcome]int
	}{
		{
			name:     "adapters only",
			q:        &query.Query{Source: "hca-a", Filter: `kind == "adapter"`},
			targets:  3,
			outcomes: map[route.Outcome]int{route.OutcomeOK: 2, route.OutcomeNoRoute: 1},
		},
		{
			name:     "named with duplicate guid and unknown",
			q:        &query.Query{Source: "hca-a", Targets: []string{"hca-b", "ghost", "0xb"}},
			targets:  2,
			outcomes: map[route.Outcome]int{route.OutcomeOK: 1, route.OutcomeUnresolved: 1},
		},
		{
			name:     "filter on lid",
			q:        &query.Query{Source: "hca-a", Filter: "lid >= 10"},
			targets:  2,
			outcomes: map[route.Outcome]int{route.OutcomeOK: 2},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := sink.NewStore()
			rep, err := e.Analyze(context.Background(), tc.q, store, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rep.Targets != tc.targets {
				t.Errorf("expected %d targets, got %d", tc.targets, rep.Targets)
			}
			for o, n := range tc.outcomes {
				if rep.Outcomes[o] != n {
					t.Errorf("outcome %s: expected %d, got %d (%v)", o, n, rep.Outcomes[o], rep.Outcomes)
				}
			}
			if store.Len() != tc.targets {
				t.Errorf("store has %d entries, want %d", store.Len(), tc.targets)
			}
		})
	}
}

func TestAnalyzeFailures(t *testing.T) {
	e := newTestEngine(t, lineFabric(t))
	empty := newTestEngine(t, nil)

	cases := []struct {
		name string
		eng  *Engine
		q    *query.Query
		want error
	}{
		{name: "no fabric", eng: empty, q: query.New("hca-a"), want: route.ErrFabricNotFound},
		{name: "unknown source", eng: e, q: query.New("ghost"), want: route.ErrSourceUnresolved},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := &recorder{}
			store := sink.NewStore()
			_, err := tc.eng.Analyze(context.Background(), tc.q, store, rec)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(rec.fails) != 1 {
				t.Errorf("expected one Fail notification, got %d", len(rec.fails))
			}
			if store.Len() != 0 {
				t.Errorf("aborted analysis must not record entries")
			}
		})
	}

	if _, err := e.Analyze(context.Background(), &query.Query{Source: "hca-a", Filter: "kind =="}, nil, nil); err == nil {
		t.Error("expected filter parse error")
	}
	if _, err := e.Analyze(context.Background(), &query.Query{}, nil, nil); err == nil {
		t.Error("expected validation error for empty source")
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	e := newTestEngine(t, lineFabric(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 20; i++ {
		store := sink.NewStore()
		rec := &recorder{}
		rep, err := e.Analyze(ctx, query.New("hca-a"), store, rec)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("run %d: expected context.Canceled, got %v", i, err)
		}
		if store.Len() != 0 {
			t.Fatalf("run %d: cancelled analysis recorded %d entries", i, store.Len())
		}
		if rep == nil || len(rep.Outcomes) != 0 {
			t.Errorf("run %d: expected an empty partial report, got %+v", i, rep)
		}
		if len(rec.fails) != 1 {
			t.Errorf("run %d: expected one Fail notification, got %d", i, len(rec.fails))
		}
	}
}

func TestApplySwapsOnce(t *testing.T) {
	e := newTestEngine(t, lineFabric(t))
	cfg, err := config.Parse([]byte(lineYAML))
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Apply(cfg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if e.Generation() != 2 {
		t.Errorf("expected generation 2 after one apply, got %d", e.Generation())
	}

	cfg.Fabric.Links = append(cfg.Fabric.Links, config.LinkDef{
		From: config.EndpointDef{Node: "sw1", Port: 3},
		To:   config.EndpointDef{Node: "ghost", Port: 1},
	})
	if err := e.Apply(cfg); err == nil {
		t.Fatal("expected build error for unknown link node")
	}
	if e.Generation() != 2 {
		t.Errorf("a failed apply must keep the fabric, generation %d", e.Generation())
	}
}

func TestConcurrentSwapsKeepNewestGeneration(t *testing.T) {
	f := lineFabric(t)
	e := newTestEngine(t, f)

	const n = 64
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.SwapFabric(f)
		}()
	}
	wg.Wait()
	if e.Generation() != n+1 {
		t.Errorf("expected generation %d, got %d", n+1, e.Generation())
	}
}
