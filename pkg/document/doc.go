// Package document defines the structured record stream emitted by the
// run engine: Start, Descriptor, Event, and Stop documents, plus the
// RunStatus/ExitStatus enums shared with pkg/runengine.
//
// A run's documents are strictly ordered: one Start, one Descriptor per
// stream (emitted before that stream's first Event), any number of
// Events per stream with monotonically increasing per-stream sequence
// numbers, and exactly one terminal Stop.
package document
