// Package fakes implements in-memory devices used by the run-engine and
// plan test suites: the S1-S7 scenarios from spec.md §8 all run against
// one of these rather than real hardware. Each fake implements the
// capability interfaces directly (no mocking framework), matching the
// teacher's own test-fake style.
package fakes
