package document

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which variant of Document a record carries.
type Kind string

const (
	// KindStart opens a run: plan metadata and a parameter snapshot.
	KindStart Kind = "start"

	// KindDescriptor declares a stream's field schema, once per stream,
	// before that stream's first Event.
	KindDescriptor Kind = "descriptor"

	// KindEvent carries one data point for one stream.
	KindEvent Kind = "event"

	// KindStop closes a run with its exit status.
	KindStop Kind = "stop"
)

// Validate reports whether k is one of the known document kinds.
func (k Kind) Validate() error {
	switch k {
	case KindStart, KindDescriptor, KindEvent, KindStop:
		return nil
	default:
		return fmt.Errorf("invalid document kind: %s", k)
	}
}

// ExitStatus is the terminal disposition of a run, carried on its Stop
// document.
type ExitStatus string

const (
	// ExitCompleted indicates every plan command executed successfully.
	ExitCompleted ExitStatus = "completed"

	// ExitAborted indicates the operator aborted the run.
	ExitAborted ExitStatus = "aborted"

	// ExitFailed indicates a command failed and the run was terminated.
	ExitFailed ExitStatus = "failed"
)

// Document is the sum type written to the ring buffer and delivered to
// document-bus subscribers. Exactly one of the Start/Descriptor/Event/Stop
// fields is populated, matching Kind.
type Document struct {
	Kind       Kind            `json:"kind"`
	RunUID     string          `json:"run_uid"`
	Stream     string          `json:"stream,omitempty"`
	Seq        uint64          `json:"seq,omitempty"`
	TimeNS     int64           `json:"time_ns"`
	Start      *StartDoc       `json:"start,omitempty"`
	Descriptor *DescriptorDoc  `json:"descriptor,omitempty"`
	Event      *EventDoc       `json:"event,omitempty"`
	Stop       *StopDoc        `json:"stop,omitempty"`
}

// StartDoc opens a run.
type StartDoc struct {
	RunUID     string                     `json:"run_uid"`
	PlanType   string                     `json:"plan_type"`
	PlanName   string                     `json:"plan_name"`
	NumPoints  int                        `json:"num_points"`
	Args       map[string]any             `json:"args,omitempty"`
	Parameters map[string]json.RawMessage `json:"parameters"` // "device.param" -> JSON-encoded value snapshot
	System     SystemInfo                 `json:"system"`
	StartedAt  time.Time                  `json:"started_at"`
}

// SystemInfo carries host/version metadata captured at run start.
type SystemInfo struct {
	SoftwareVersion string `json:"software_version"`
	Host            string `json:"host"`
}

// DescriptorDoc declares a stream's field schema, inferred from the keys
// of that stream's first Event.
type DescriptorDoc struct {
	Stream string   `json:"stream"`
	Fields []string `json:"fields"`
}

// EventDoc carries one data point.
type EventDoc struct {
	RunUID    string             `json:"run_uid"`
	Stream    string             `json:"stream"`
	Seq       uint64             `json:"seq"`
	TimeNS    int64              `json:"time_ns"`
	Data      map[string]float64 `json:"data"`
	Positions map[string]float64 `json:"positions,omitempty"`
}

// StopDoc closes a run.
type StopDoc struct {
	RunUID   string     `json:"run_uid"`
	Exit     ExitStatus `json:"exit"`
	Reason   string     `json:"reason,omitempty"`
	StoppedAt time.Time `json:"stopped_at"`
}

// NewStart builds a Start document.
func NewStart(runUID string, start *StartDoc) Document {
	return Document{Kind: KindStart, RunUID: runUID, TimeNS: start.StartedAt.UnixNano(), Start: start}
}

// NewDescriptor builds a Descriptor document for a stream.
func NewDescriptor(runUID string, d *DescriptorDoc, at time.Time) Document {
	return Document{Kind: KindDescriptor, RunUID: runUID, Stream: d.Stream, TimeNS: at.UnixNano(), Descriptor: d}
}

// NewEvent builds an Event document.
func NewEvent(runUID string, e *EventDoc) Document {
	return Document{Kind: KindEvent, RunUID: runUID, Stream: e.Stream, Seq: e.Seq, TimeNS: e.TimeNS, Event: e}
}

// NewStop builds a Stop document.
func NewStop(runUID string, s *StopDoc) Document {
	return Document{Kind: KindStop, RunUID: runUID, TimeNS: s.StoppedAt.UnixNano(), Stop: s}
}
