// Package trace provides lifecycle tracing for the cfnls server.
//
// Tracing follows documents and validator runs through the server so a slow
// or misbehaving validator can be diagnosed without attaching a debugger.
//
// # Usage
//
//	cfnls lsp --trace=- --trace-level=run
//
// # Tracers
//
//   - Nop: zero-overhead tracer when disabled
//   - StreamTracer: immediate write to a file or stderr
//   - RingTracer: bounded in-memory buffer, dumped when the server dies
//   - MultiTracer: fan-out to several tracers
//
// # Levels
//
//   - LevelOff: no tracing
//   - LevelError: ring buffer only, dumped on abnormal exit
//   - LevelEvent: server events (open, save, configuration)
//   - LevelRun: validator runs and publishes
//   - LevelDebug: everything including stream chunks
//
// # Context propagation
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopeRun, "run", 0)
//	defer span.End("")
package trace
