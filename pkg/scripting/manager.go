package scripting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.starlark.net/starlark"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/registry"
)

// DeviceController is the narrow device-control surface scripts are
// given. It is satisfied structurally by pkg/api's HardwareService, kept
// separate here so pkg/scripting never imports pkg/api (api imports
// scripting for the Control RPC group, not the other way around).
type DeviceController interface {
	MoveAbsolute(ctx context.Context, id registry.DeviceID, position float64) error
	GetPosition(ctx context.Context, id registry.DeviceID) (float64, error)
	ReadValue(ctx context.Context, id registry.DeviceID) (capability.Reading, error)
	GetParameter(ctx context.Context, id registry.DeviceID, name string) (float64, error)
	SetParameter(ctx context.Context, id registry.DeviceID, name string, value float64) error
}

// Script is one uploaded, named Starlark source.
type Script struct {
	Name       string
	Source     string
	UploadedAt time.Time
}

// ExecutionState is a script execution's lifecycle stage.
type ExecutionState string

const (
	ExecutionRunning   ExecutionState = "running"
	ExecutionCompleted ExecutionState = "completed"
	ExecutionFailed    ExecutionState = "failed"
	ExecutionStopped   ExecutionState = "stopped"
)

// Execution is one run of a Script.
type Execution struct {
	ID         string
	ScriptName string
	State      ExecutionState
	StartedAt  time.Time
	FinishedAt time.Time
	Result     *Result
	Err        string

	cancel context.CancelFunc
}

// Manager owns the uploaded script catalogue and live/past executions,
// per spec.md §6's Control RPC group.
type Manager struct {
	evaluator  *Evaluator
	controller DeviceController
	log        zerolog.Logger

	mu         sync.Mutex
	scripts    map[string]Script
	executions map[string]*Execution
}

// NewManager returns a Manager driving scripts against controller.
func NewManager(evaluator *Evaluator, controller DeviceController, log zerolog.Logger) *Manager {
	return &Manager{
		evaluator:  evaluator,
		controller: controller,
		log:        log.With().Str("component", "scripting").Logger(),
		scripts:    make(map[string]Script),
		executions: make(map[string]*Execution),
	}
}

// UploadScript stores (or replaces) a named script's source.
func (m *Manager) UploadScript(name, source string) error {
	if name == "" {
		return daqerr.NewInvalidArgument("script name is required", nil)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[name] = Script{Name: name, Source: source, UploadedAt: time.Now()}
	return nil
}

// ListScripts returns every uploaded script.
func (m *Manager) ListScripts() []Script {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Script, 0, len(m.scripts))
	for _, s := range m.scripts {
		out = append(out, s)
	}
	return out
}

// ListExecutions returns every execution, live and finished.
func (m *Manager) ListExecutions() []Execution {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Execution, 0, len(m.executions))
	for _, e := range m.executions {
		out = append(out, *e)
	}
	return out
}

// GetExecution returns one execution's current state.
func (m *Manager) GetExecution(id string) (Execution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok {
		return Execution{}, daqerr.NewNotFound(fmt.Sprintf("execution %q not found", id), nil)
	}
	return *e, nil
}

// StartScript begins evaluating an uploaded script asynchronously,
// returning its execution ID immediately.
func (m *Manager) StartScript(parent context.Context, scriptName string, input map[string]any) (string, error) {
	m.mu.Lock()
	script, ok := m.scripts[scriptName]
	m.mu.Unlock()
	if !ok {
		return "", daqerr.NewNotFound(fmt.Sprintf("script %q not found", scriptName), nil)
	}

	ctx, cancel := context.WithCancel(parent)
	exec := &Execution{
		ID:         uuid.New().String(),
		ScriptName: scriptName,
		State:      ExecutionRunning,
		StartedAt:  time.Now(),
		cancel:     cancel,
	}

	m.mu.Lock()
	m.executions[exec.ID] = exec
	m.mu.Unlock()

	go m.run(ctx, exec, script, input)
	return exec.ID, nil
}

// StopScript cancels a running execution. No-op if it already finished.
func (m *Manager) StopScript(id string) error {
	m.mu.Lock()
	exec, ok := m.executions[id]
	m.mu.Unlock()
	if !ok {
		return daqerr.NewNotFound(fmt.Sprintf("execution %q not found", id), nil)
	}
	if exec.cancel != nil {
		exec.cancel()
	}
	return nil
}

func (m *Manager) run(ctx context.Context, exec *Execution, script Script, input map[string]any) {
	result, err := m.evaluator.Evaluate(ctx, script.Source, input, m.builtins(ctx))

	m.mu.Lock()
	defer m.mu.Unlock()
	exec.Result = result
	exec.FinishedAt = time.Now()
	switch {
	case ctx.Err() != nil:
		exec.State = ExecutionStopped
	case err != nil:
		exec.State = ExecutionFailed
		exec.Err = err.Error()
		m.log.Warn().Err(err).Str("script", script.Name).Str("execution_id", exec.ID).Msg("script execution failed")
	default:
		exec.State = ExecutionCompleted
	}
}

// builtins binds the device-control functions a script body can call:
// move(device, position), position(device), read(device),
// get_param(device, name), set_param(device, name, value), and
// sleep(seconds) for pacing between steps.
func (m *Manager) builtins(ctx context.Context) starlark.StringDict {
	return starlark.StringDict{
		"move": starlark.NewBuiltin("move", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var device string
			var position float64
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "device", &device, "position", &position); err != nil {
				return nil, err
			}
			if err := m.controller.MoveAbsolute(ctx, registry.DeviceID(device), position); err != nil {
				return nil, err
			}
			return starlark.None, nil
		}),
		"position": starlark.NewBuiltin("position", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var device string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "device", &device); err != nil {
				return nil, err
			}
			v, err := m.controller.GetPosition(ctx, registry.DeviceID(device))
			if err != nil {
				return nil, err
			}
			return starlark.Float(v), nil
		}),
		"read": starlark.NewBuiltin("read", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var device string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "device", &device); err != nil {
				return nil, err
			}
			r, err := m.controller.ReadValue(ctx, registry.DeviceID(device))
			if err != nil {
				return nil, err
			}
			return starlark.Float(r.Value), nil
		}),
		"get_param": starlark.NewBuiltin("get_param", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var device, name string
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "device", &device, "name", &name); err != nil {
				return nil, err
			}
			v, err := m.controller.GetParameter(ctx, registry.DeviceID(device), name)
			if err != nil {
				return nil, err
			}
			return starlark.Float(v), nil
		}),
		"set_param": starlark.NewBuiltin("set_param", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var device, name string
			var value float64
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "device", &device, "name", &name, "value", &value); err != nil {
				return nil, err
			}
			if err := m.controller.SetParameter(ctx, registry.DeviceID(device), name, value); err != nil {
				return nil, err
			}
			return starlark.None, nil
		}),
		"sleep": starlark.NewBuiltin("sleep", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var seconds float64
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "seconds", &seconds); err != nil {
				return nil, err
			}
			select {
			case <-time.After(time.Duration(seconds * float64(time.Second))):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return starlark.None, nil
		}),
	}
}
