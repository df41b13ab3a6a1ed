// Package archive implements the slow, analysis-friendly back half of
// the persistence "mullet": a background writer that ticks at a
// configurable interval, decodes complete framed Documents out of the
// ring buffer's unread bytes, and appends them into a hierarchical
// SQLite-backed archive (manifest + per-run measurements), plus a raw
// framed sidecar file for downstream reconstruction when a sidecar path
// is configured.
//
// No HDF5-equivalent Go binding exists in this dependency pack, so the
// hierarchical archive layout described in spec §6 (/manifest,
// /measurements/batch_NNNNNN/...) is modeled as relational tables:
// groups become tables, extendable 1-D arrays become rows keyed by
// (run_uid, seq), and attributes become columns. See DESIGN.md for the
// full justification.
package archive
