// Package safetypolicy gates plan admission with Rego-evaluated safety
// rules: motion-range containment against a device's declared travel
// limits, a plan-size ceiling, and an environment-aware dry-run guard.
// Engine.EvaluatePlan is called from QueuePlan before a plan ever
// reaches the run engine's queue, never mid-run.
package safetypolicy
