// Package service is the application lifecycle orchestrator.
//
// A Service owns the shared execution context and every component that
// posts work to it. It starts them in a fixed order once the front end has
// registered its callbacks, runs the UI dispatch loop, and on quit stops the
// callback sources before the execution context and then persists state.
//
// Startup:
//
//	Constructed → ContextRunning → ComponentsWired → ComponentsStarted → Running
//
// Shutdown:
//
//	device receiver → remote in → remote out → version checker → device sender
//	→ diagnostics → autosave → execution context → default profile → settings
package service
