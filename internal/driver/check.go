// Package driver ties loading, caching and analysis of one graph document together.
package driver

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"retaincheck/internal/engine"
	"retaincheck/internal/graphio"
	"retaincheck/internal/observ"
	"retaincheck/internal/policy"
	"retaincheck/internal/project"
	"retaincheck/internal/propose"
	"retaincheck/internal/trace"
)

// CheckOptions configures one analysis run.
type CheckOptions struct {
	Jobs           int
	MaxDiagnostics int
	// Fixes attaches proposed edits; such runs bypass cached results.
	Fixes   bool
	Propose propose.Options
	// Cache may be nil.
	Cache         *DiskCache
	EnableTimings bool
	Progress      engine.ProgressObserver
	Phases        PhaseObserver
}

// CheckResult is the outcome for one document.
type CheckResult struct {
	Loaded *graphio.Loaded
	*engine.Result
	// Key identifies the graph+policy pair in the cache.
	Key      project.Digest
	CacheHit bool
	Timings  *observ.Report
}

// PolicyDigest hashes the TOML form of p.
func PolicyDigest(p *policy.Policy) (project.Digest, error) {
	var buf bytes.Buffer
	if err := policy.Encode(&buf, p); err != nil {
		return project.Digest{}, fmt.Errorf("encode policy: %w", err)
	}
	return project.Sum(buf.Bytes()), nil
}

// CacheKey combines the document digest, the policy digest and the output limit.
func CacheKey(doc, pol project.Digest, maxDiagnostics int) project.Digest {
	return project.Combine(doc, pol, project.Sum([]byte(strconv.Itoa(maxDiagnostics))))
}

// Check loads path, reuses a cached result when possible, and otherwise runs
// the engine. A cancelled run returns a partial result and is never cached.
func Check(ctx context.Context, path string, pol *policy.Policy, opts CheckOptions) (*CheckResult, error) {
	if pol == nil {
		pol = policy.Default()
	}
	tr := trace.FromContext(ctx)
	root := trace.Begin(tr, trace.ScopeDriver, "check:"+path, trace.CurrentSpan(ctx))
	defer root.End("")
	ctx = trace.WithSpan(ctx, root)

	timer := observ.NewTimer(tr, root.ID())
	phase := func(name string, fn func() (string, error)) error {
		started := time.Now()
		opts.notify(PhaseEvent{Name: name, Status: PhaseStart})
		err := timer.Time(name, fn)
		opts.notify(PhaseEvent{Name: name, Status: PhaseEnd, Elapsed: time.Since(started)})
		return err
	}

	res := &CheckResult{}
	err := phase(PhaseLoad, func() (string, error) {
		l, err := graphio.Load(path)
		if err != nil {
			return "", err
		}
		res.Loaded = l
		return fmt.Sprintf("types=%d skipped=%d", len(l.Graph.Types), len(l.Graph.Skipped)), nil
	})
	if err != nil {
		return nil, err
	}

	polDigest, err := PolicyDigest(pol)
	if err != nil {
		return nil, err
	}
	res.Key = CacheKey(res.Loaded.Digest, polDigest, opts.MaxDiagnostics)

	if opts.Cache != nil && !opts.Fixes {
		err = phase(PhaseCache, func() (string, error) {
			var payload DiskPayload
			hit, err := opts.Cache.Get(res.Key, &payload)
			if err != nil {
				// a corrupt entry is just a miss
				trace.Error(tr, trace.ScopeDriver, "cache", err, root.ID())
				return "unreadable", nil
			}
			if !hit {
				return "miss", nil
			}
			res.Result = diskPayloadToResult(&payload)
			res.CacheHit = true
			return "hit " + res.Key.Short(), nil
		})
		if err != nil {
			return nil, err
		}
	}

	if !res.CacheHit {
		eng, err := engine.New(res.Loaded.Graph, pol, engine.Options{
			Jobs:           opts.Jobs,
			MaxDiagnostics: opts.MaxDiagnostics,
			Fixes:          opts.Fixes,
			Propose:        opts.Propose,
			Observer:       opts.Progress,
		})
		if err != nil {
			return nil, err
		}
		_ = phase(PhaseAnalyze, func() (string, error) { //nolint:errcheck // analysis never fails
			res.Result = eng.Run(ctx)
			note := fmt.Sprintf("units=%d findings=%d", res.Stats.Analyzed, len(res.Diagnostics))
			if res.Partial {
				note += " partial"
			}
			return note, nil
		})

		if opts.Cache != nil && !res.Partial {
			// a failed store only costs the next run its cache hit
			_ = phase(PhaseStore, func() (string, error) { //nolint:errcheck
				if err := opts.Cache.Put(res.Key, resultToDiskPayload(res.Result)); err != nil {
					trace.Error(tr, trace.ScopeDriver, "cache", err, root.ID())
					return "failed", nil
				}
				return "", nil
			})
		}
	}

	if opts.EnableTimings {
		report := timer.Report()
		res.Timings = &report
	}
	return res, nil
}

func (o CheckOptions) notify(ev PhaseEvent) {
	if o.Phases != nil {
		o.Phases(ev)
	}
}
