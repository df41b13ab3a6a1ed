package plan

// CommandKind identifies which variant of PlanCommand a step carries.
type CommandKind string

const (
	CommandMoveTo   CommandKind = "move_to"
	CommandRead     CommandKind = "read"
	CommandTrigger  CommandKind = "trigger"
	CommandWait     CommandKind = "wait"
	CommandCheckpoint CommandKind = "checkpoint"
	CommandEmitEvent CommandKind = "emit_event"
	CommandSet      CommandKind = "set"
)

// Command is the sum of the seven plan-command variants spec.md §3
// defines. Exactly the fields relevant to Kind are populated.
type Command struct {
	Kind CommandKind

	// MoveTo
	Device   string
	Position float64

	// Read / Trigger / Set share Device above.

	// Wait
	Seconds float64

	// Checkpoint
	Label string

	// EmitEvent
	Stream    string
	Data      map[string]float64
	Positions map[string]float64

	// Set
	Param string
	Value string
}

// MoveTo builds a MoveTo command.
func MoveTo(device string, position float64) Command {
	return Command{Kind: CommandMoveTo, Device: device, Position: position}
}

// Read builds a Read command.
func Read(device string) Command {
	return Command{Kind: CommandRead, Device: device}
}

// Trigger builds a Trigger command.
func Trigger(device string) Command {
	return Command{Kind: CommandTrigger, Device: device}
}

// Wait builds a Wait command.
func Wait(seconds float64) Command {
	return Command{Kind: CommandWait, Seconds: seconds}
}

// Checkpoint builds a Checkpoint command.
func Checkpoint(label string) Command {
	return Command{Kind: CommandCheckpoint, Label: label}
}

// EmitEvent builds an EmitEvent command.
func EmitEvent(stream string, data, positions map[string]float64) Command {
	return Command{Kind: CommandEmitEvent, Stream: stream, Data: data, Positions: positions}
}

// Set builds a Set command.
func Set(device, paramName, value string) Command {
	return Command{Kind: CommandSet, Device: device, Param: paramName, Value: value}
}
