// Package device is the boundary to the physical controller transport.
//
// Ports are registered in a Registry. The Receiver reads every input port on
// its own goroutine and posts each message onto the shared execution context
// through a Strand, where the registered callbacks run in arrival order. The
// Sender posts writes the same way.
//
// Stop on either side guarantees that nothing further is posted once it
// returns. Receiver.Stop also drops every registered callback, so components
// that registered with it can be torn down safely afterwards.
package device
