// Package trace records what callgen does while it lowers function types.
//
// Events are spans (begin/end pairs) and points. A Tracer is carried through
// the lowering pipeline in a context.Context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "expand", 0)
//	defer span.End("")
//
// # Levels
//
//   - LevelOff: nothing
//   - LevelError: crash dumps from the ring buffer only
//   - LevelPhase: driver and pass spans
//   - LevelDetail: one span per lowered function type
//   - LevelDebug: signature cache hits and misses, emitted calls
//
// # Storage
//
// StreamTracer writes immediately, RingTracer keeps the last N events for a
// post-mortem dump, MultiTracer fans out to both.
package trace
