// Package persistence stores the durable state files of the bridge.
//
// The controls model and profiles are XML documents written through an
// XMLFile, which replaces the target atomically so a crash mid-write never
// leaves a truncated file behind. A missing or empty file loads as "nothing
// saved yet"; a file that exists but does not parse is reported as
// ErrCorruptState.
//
// RunStateStore keeps a small JSON record of the last run, used to detect an
// unclean shutdown.
package persistence
