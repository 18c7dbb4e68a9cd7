// Package executor provides the shared execution context that every
// I/O-bound component posts its callbacks onto.
//
// A Context is a single FIFO queue drained by a fixed number of worker
// goroutines. Work posted by one poster through a Strand runs in post order
// and never concurrently with itself; work from different posters may
// interleave freely.
//
// The queue stays open while at least one WorkGuard is held. Start installs a
// standing guard that is released by Stop. If no guard is held and nothing is
// queued or running, the context closes by itself and the workers exit.
//
// # Basic Usage
//
//	ctx := executor.New(executor.WithLogger(logger))
//	if err := ctx.Start(2); err != nil { ... }
//
//	strand := executor.NewStrand(ctx)
//	strand.Post(func() { ... })
//
//	// shutdown: stop every poster first, then
//	ctx.Stop()
//	ctx.Join()
package executor
