// Package api defines the daemon's external service contracts as plain
// Go interfaces and request/response structs — one per RPC group spec.md
// §6 describes at schema level (Control, Hardware, Plan/Run, Storage,
// Module). No .proto file or generated gRPC stub lives here: the wire
// surface is an external artifact this module implements against, per
// spec.md §1's explicit scoping of the gRPC/wire layer out of the core.
// A future transport package would implement these interfaces by
// unmarshaling wire requests into the structs below and forwarding to a
// Registry/Engine/Recorder/ModuleHost instance.
//
// Streaming methods that return StreamEnvelope values follow spec.md §6's
// envelope convention: each delivered value carries a monotonically
// increasing per-stream sequence number and a timestamp. StreamDocuments
// does not: it delivers bare document.Document values with no envelope.
package api

import "time"

// MaxMessageBytes is the 64 MiB ceiling spec.md §6 places on any single
// unary message. Frames larger than this must be delivered via the
// FrameProducer stream (StreamFrames), never a unary RPC.
const MaxMessageBytes = 64 << 20

// StreamEnvelope wraps one item of a streaming response with the
// sequence number and timestamp every streaming RPC attaches to it.
type StreamEnvelope[T any] struct {
	Seq    uint64
	TimeNS int64
	Value  T
}

// Deadline computes the absolute deadline for a unary request given a
// default (spec.md §5: 15s unless overridden).
func Deadline(d time.Duration) time.Time {
	if d <= 0 {
		d = 15 * time.Second
	}
	return time.Now().Add(d)
}
