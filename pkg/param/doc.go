// Package param implements the Parameterized capability's data model: a
// named, insertion-ordered ParameterSet of Parameters, each carrying a
// typed value, descriptor metadata, a read-only flag, and optional
// asynchronous hardware read/write hooks.
//
// Set validates before mutating: NaN/±Inf, out-of-range, and writes to a
// read-only parameter are all rejected with daqerr.InvalidArgument and
// never touch the stored value. A validated Set applies the hardware
// write hook best-effort — its failure is returned to the caller as
// daqerr.Unavailable but not rolled back, since the in-memory value is a
// desire rather than an observed truth.
package param
