package flow

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cognicore/flow/pkg/flow/config"
	"github.com/cognicore/flow/pkg/flow/modelcache"
	"github.com/cognicore/flow/pkg/flow/refine"
	"github.com/cognicore/flow/pkg/flow/store"
	"github.com/cognicore/flow/pkg/flow/store/memstore"
	"github.com/cognicore/flow/pkg/flow/store/sqlite"
)

// Flow is the refinement engine facade: it runs the pipeline and keeps an
// audit log of every run.
type Flow struct {
	store    store.Store
	pipeline *refine.Pipeline
	now      func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// Options configures a Flow instance
type Options struct {
	Pipeline *refine.Pipeline
	// Store defaults to an in-memory store.
	Store store.Store
	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a Flow instance with the given dependencies
func New(opts Options) *Flow {
	st := opts.Store
	if st == nil {
		st = memstore.New()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Flow{
		store:    st,
		pipeline: opts.Pipeline,
		now:      now,
		entropy:  ulid.Monotonic(rand.Reader, 0),
	}
}

// Open builds a Flow from configuration: the LM is wrapped with the
// inference cache and runs go to the sqlite file named by cfg.Store.Path,
// or to memory when it is empty.
func Open(ctx context.Context, cfg config.Config, svc refine.Services) (*Flow, error) {
	lm, err := modelcache.NewLM(svc.LM, cfg.Cache.InferenceSize)
	if err != nil {
		return nil, fmt.Errorf("inference cache: %w", err)
	}
	svc.LM = lm

	p, err := refine.New(cfg, svc)
	if err != nil {
		return nil, err
	}

	var st store.Store
	if cfg.Store.Path != "" {
		if st, err = sqlite.OpenSQLite(ctx, cfg.Store.Path); err != nil {
			return nil, err
		}
	}
	return New(Options{Pipeline: p, Store: st}), nil
}

// Close cleanly shuts down the Flow instance
func (f *Flow) Close() error {
	return f.store.Close()
}

// Pipeline exposes the underlying pipeline.
func (f *Flow) Pipeline() *refine.Pipeline { return f.pipeline }

// RunResult is a refined text and the id it was logged under.
type RunResult struct {
	RunID string `json:"run_id"`
	refine.TextResult
}

// Refine refines text and records the run.
func (f *Flow) Refine(ctx context.Context, text string, opts ...refine.Option) (RunResult, error) {
	res, err := f.pipeline.RefineText(ctx, text, opts...)
	if err != nil {
		return RunResult{}, err
	}
	id, err := f.record(ctx, res)
	if err != nil {
		return RunResult{}, err
	}
	return RunResult{RunID: id, TextResult: res}, nil
}

// RefineBatch refines independent texts concurrently and records one run
// per text, in input order.
func (f *Flow) RefineBatch(ctx context.Context, texts []string, opts ...refine.Option) ([]RunResult, error) {
	results, err := f.pipeline.RefineBatch(ctx, texts, opts...)
	if err != nil {
		return nil, err
	}
	out := make([]RunResult, len(results))
	for i, res := range results {
		id, err := f.record(ctx, res)
		if err != nil {
			return nil, err
		}
		out[i] = RunResult{RunID: id, TextResult: res}
	}
	return out, nil
}

// Highlight reports clunky words of text without editing or recording.
func (f *Flow) Highlight(ctx context.Context, text string, opts refine.HighlightOptions) (refine.HighlightReport, error) {
	return f.pipeline.Highlight(ctx, text, opts)
}

// Explore ranks candidate modifications of text without editing or
// recording.
func (f *Flow) Explore(ctx context.Context, text string, topN int) ([]refine.Modification, error) {
	return f.pipeline.Explore(ctx, text, topN)
}

// Run returns a recorded run.
func (f *Flow) Run(ctx context.Context, id string) (store.Run, error) {
	return f.store.GetRun(ctx, id)
}

// History returns the most recent runs first.
func (f *Flow) History(ctx context.Context, limit int) ([]store.Run, error) {
	return f.store.ListRuns(ctx, limit)
}

// TopReplacements returns the most frequently applied substitutions.
func (f *Flow) TopReplacements(ctx context.Context, k int) ([]store.Replacement, error) {
	return f.store.TopReplacements(ctx, k)
}

func (f *Flow) record(ctx context.Context, res refine.TextResult) (string, error) {
	cfgJSON, err := json.Marshal(f.pipeline.Config())
	if err != nil {
		return "", err
	}

	run := store.Run{
		ID:         f.newID(),
		CreatedAt:  f.now(),
		Original:   res.Original,
		Refined:    res.Refined,
		ConfigJSON: string(cfgJSON),
	}
	for si, s := range res.Sentences {
		for _, e := range s.Edits {
			run.Edits = append(run.Edits, store.EditRecord{
				Sentence:    si,
				WordIdx:     e.WordIdx,
				Original:    e.Original,
				Replacement: e.Replacement,
				Gain:        e.Gain,
				Similarity:  e.Similarity,
				Reason:      e.Reason,
			})
		}
	}
	if err := f.store.SaveRun(ctx, run); err != nil {
		return "", fmt.Errorf("record run: %w", err)
	}
	return run.ID, nil
}

// newID returns a ULID; the monotonic entropy source is not safe for
// concurrent use.
func (f *Flow) newID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(f.now()), f.entropy).String()
}
