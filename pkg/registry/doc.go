// Package registry holds the authoritative, concurrent catalogue of
// devices. It is the only component allowed to hand out driver handles:
// lookups are read-lock-only in the steady state, registration is a
// short write, and per-device operations never hold the registry lock
// across an awaited hardware round-trip — the registry hands back a
// cheap handle and releases its lock before the
// caller does anything that isn't its own bookkeeping.
//
// Grounded on the openfroyo WASM provider registry
// (pkg/providers/host/registry.go): same map+RWMutex shape, same
// register-checks-for-existing-key discipline, generalized from
// name@version provider keys to DeviceId keys and from "get a Provider"
// to "get a handle narrowed to one capability".
package registry
