package daqconfig

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages the CUE schemas configuration sources are
// checked against before being decoded into Go structs.
type SchemaRegistry struct {
	ctx     *cue.Context
	mu      sync.RWMutex
	schemas map[string]cue.Value
}

// NewSchemaRegistry returns a registry pre-loaded with the built-in
// device and daemon schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	sr.RegisterSchema("device", builtinDeviceSchema)
	sr.RegisterSchema("daemon", builtinDaemonSchema)
	return sr
}

// RegisterSchema compiles and stores schema under name, replacing any
// existing schema of the same name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("daqconfig: compile schema %s: %w", name, err)
	}
	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a previously registered schema.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	v, ok := sr.schemas[name]
	return v, ok
}

// ValidateAgainstSchema unifies data with the named schema and reports
// whether the result is a concrete, error-free value.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("daqconfig: schema %s not registered", schemaName)
	}

	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("daqconfig: encode value: %w", err)
	}

	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("daqconfig: schema %s: %w", schemaName, err)
	}
	return nil
}

// ListSchemas returns the registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()
	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions.

const builtinDeviceSchema = `
// Device schema for fleet configuration entries.
#Device: {
	id:          string & =~"^[a-zA-Z0-9_-]+$"
	driver_type: string & =~"^[a-z0-9_]+(\\.[a-z0-9_]+)*$"
	name:        string

	unit?:      string
	range_min?: number
	range_max?: number

	frame_width?:  int & >=0
	frame_height?: int & >=0
	bit_depth?:    int & >=0

	exposure_min?: number & >=0
	exposure_max?: number & >=0

	labels?:     {[string]: string}
	connection?: {[string]: string}
}
`

const builtinDaemonSchema = `
// Daemon schema for process-wide runtime settings.
#Daemon: {
	ring_size_bytes:   int & >0
	flush_interval:    string
	default_deadline:  string
	archive_path:      string
	sidecar_path?:     string
	safety_policy_dir?: string
}
`
