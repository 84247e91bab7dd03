// Package trace provides the tracing subsystem for retaincheck.
//
// Tracing records loading, the analysis passes and per-declaration work so
// slow or stuck runs can be diagnosed after the fact.
//
// # Usage
//
//	retaincheck check --trace=- --trace-level=detail app.graph.json
//
// # Tracers
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - Recorder: last N events kept in memory, written only when the run fails
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: error points only
//   - LevelPhase: driver and pass boundaries
//   - LevelDetail: one span per top-level declaration
//   - LevelDebug: everything, including skipped nodes
//
// # Context Propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	t := trace.FromContext(ctx)
//
//	span := trace.Begin(t, trace.ScopePass, "members", trace.CurrentSpan(ctx))
//	defer span.End("")
package trace
