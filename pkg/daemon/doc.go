// Package daemon is the composition root: it wires the registry, plan
// registry, run engine, archive store/recorder, safety policy engine,
// module host, and scripting manager into one process-wide Daemon value
// and the api.Service that fronts it, in the startup order spec.md §5
// prescribes: parameter primitives -> empty registry -> drivers register
// -> engine attached to registry -> recording path attached on demand.
//
// Nothing here is a hidden global: Build returns an explicit *Daemon a
// caller (cmd/daqd, or a test) holds and tears down itself, so parallel
// Daemon instances can coexist in the same process, matching spec.md
// §9's "implement as explicit values passed by handle from a composition
// root, not as hidden globals, so tests can instantiate parallel
// universes."
package daemon
