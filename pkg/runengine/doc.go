// Package runengine implements the single serial interpreter that drives
// Plan command sequences against registered devices and emits the
// Start/Descriptor/Event/Stop document stream.
//
// Commands are never executed concurrently: the engine is one goroutine
// walking one Builder at a time. Pause, resume and abort are modelled as
// signals observed between commands (immediate pause) or at Checkpoint
// commands (deferred pause), matching the "checkpoints are the only safe
// pause points" rule.
package runengine
