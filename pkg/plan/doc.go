// Package plan implements declarative, restartable plan generators.
// A Plan is a finite, lazy sequence of PlanCommands produced by a small
// explicit state machine per plan type (Move -> Settle -> Checkpoint ->
// Trigger -> Read* -> Emit -> advance indices); Reset returns a plan to
// its initial state and is required to be idempotent and deterministic —
// identical (params, device mapping) always yields a bit-identical
// command sequence.
//
// This mirrors the openfroyo diff-to-plan pipeline in shape
// (pkg/engine/planner.go: a registry-resolved builder turning declarative
// input into a concrete unit sequence) but produces a linear command
// stream instead of a dependency DAG, since spec.md requires plan
// commands to execute strictly in sequence rather than in parallel
// levels — pkg/engine/dag.go's topological-level builder has no use here
// (see DESIGN.md).
package plan
