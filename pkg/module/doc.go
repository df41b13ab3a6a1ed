// Package module hosts dynamically loadable device drivers compiled to
// WASM, using wazero as the guest runtime. A module type is a manifest
// plus a compiled .wasm file declaring which capability.Kind values it
// answers; CreateModule instantiates one, AssignDevice binds an instance
// to a device ID in a registry.Registry using registry.RegisterDeclared,
// since a WASM instance can't be type-asserted against the
// capability.*Device Go interfaces the way a native driver can.
//
// Grounded on the host/bridge/registry/manifest split in this codebase's
// own WASM provider host package, adapted from a provider-plan-apply
// lifecycle to a device capability-call lifecycle: device_call replaces
// provider_read/plan/apply/destroy as the single exported entrypoint, and
// the manifest's capability strings gate which RPC methods a given
// instance is meaningfully called with instead of gating filesystem/host
// capabilities.
package module
