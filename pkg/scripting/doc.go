// Package scripting provides a Starlark-based shim for one-off
// procedures that don't justify authoring a plan.Builder: align a stage,
// read a detector a few times, nudge a wavelength and check a power
// meter. Scripts call back into device control through a narrow
// DeviceController interface rather than the plan/run engine, so they
// run outside of, and concurrently with, anything the Run Engine is
// doing — they are an operator convenience, not a recording path.
//
// Grounded on this codebase's own Starlark evaluator
// (pkg/config/starlark_eval.go): same go.starlark.net dependency, same
// predeclared-environment-plus-timeout-goroutine execution shape, same
// Go<->Starlark value conversion helpers. What's new here is the
// Manager's script/execution bookkeeping (spec.md §6's
// ListScripts/ListExecutions/UploadScript/StartScript/StopScript) and
// the device-control builtins scripts get instead of the teacher's
// config-templating builtins.
package scripting
