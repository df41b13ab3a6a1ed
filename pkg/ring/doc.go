// Package ring implements the fixed-capacity, framed-binary ring buffer
// that absorbs document bytes at hardware rates between the Run Engine
// and the archive writer. Every record is a u32 little-endian length
// prefix followed by exactly that many payload bytes; producers never
// write a partial frame, and the consumer's read_snapshot hides the
// underlying circular wrap entirely.
//
// Concurrency: any number of producers serialize their writes through a
// short mutex held for each Write; exactly one consumer owns tail and
// advances it after decoding complete records.
package ring
