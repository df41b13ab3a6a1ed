package scripting

import (
	"context"
	"fmt"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Result is the outcome of one script evaluation.
type Result struct {
	Output        map[string]any
	ExecutionTime time.Duration
	Error         string
}

// Evaluator executes Starlark scripts with a bounded timeout and a
// caller-supplied set of predeclared builtins (normally device-control
// functions bound to one execution's DeviceController).
type Evaluator struct {
	timeout time.Duration
}

// NewEvaluator returns an Evaluator with the given per-script timeout
// (defaulting to 30s, matching this codebase's config-templating
// evaluator).
func NewEvaluator(timeout time.Duration) *Evaluator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Evaluator{timeout: timeout}
}

// Evaluate runs script against input and builtins, returning its globals
// as Output. Execution happens on its own goroutine so a script that
// ignores the deadline (Starlark has no preemption point other than
// UnpackArgs/builtin calls) still returns to the caller once evalCtx
// expires — the goroutine itself is abandoned, not killed, matching
// Starlark's lack of a cancellation primitive.
func (e *Evaluator) Evaluate(ctx context.Context, script string, input map[string]any, builtins starlark.StringDict) (*Result, error) {
	start := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resultCh := make(chan *Result, 1)
	errCh := make(chan error, 1)

	go func() {
		result, err := e.evaluateSync(script, input, builtins)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- result
	}()

	select {
	case <-evalCtx.Done():
		return &Result{ExecutionTime: time.Since(start), Error: fmt.Sprintf("execution timeout after %v", e.timeout)},
			fmt.Errorf("scripting: execution timeout")
	case err := <-errCh:
		return &Result{ExecutionTime: time.Since(start), Error: err.Error()}, err
	case result := <-resultCh:
		result.ExecutionTime = time.Since(start)
		return result, nil
	}
}

func (e *Evaluator) evaluateSync(script string, input map[string]any, builtins starlark.StringDict) (*Result, error) {
	thread := &starlark.Thread{
		Name:  "daqd-script",
		Print: func(_ *starlark.Thread, msg string) {},
	}

	predeclared := starlark.StringDict{"struct": starlarkstruct.Default}
	predeclared["range"] = starlark.NewBuiltin("range", builtinRange)
	for name, fn := range builtins {
		predeclared[name] = fn
	}
	for key, val := range input {
		sv, err := toStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("scripting: convert input %s: %w", key, err)
		}
		predeclared[key] = sv
	}

	globals, err := starlark.ExecFile(thread, "script.star", script, predeclared)
	if err != nil {
		return nil, fmt.Errorf("scripting: execution failed: %w", err)
	}

	output := make(map[string]any)
	for name, val := range globals {
		if len(name) > 0 && name[0] == '_' {
			continue
		}
		gv, err := fromStarlarkValue(val)
		if err != nil {
			return nil, fmt.Errorf("scripting: convert output %s: %w", name, err)
		}
		output[name] = gv
	}
	return &Result{Output: output}, nil
}

func builtinRange(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "stop", &stop); err != nil {
			return nil, err
		}
	case 2:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop); err != nil {
			return nil, err
		}
	case 3:
		if err := starlark.UnpackArgs(b.Name(), args, kwargs, "start", &start, "stop", &stop, "step", &step); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("range takes 1 to 3 arguments, got %d", len(args))
	}
	if step == 0 {
		return nil, fmt.Errorf("range step cannot be zero")
	}
	var list []starlark.Value
	if step > 0 {
		for i := start; i < stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	} else {
		for i := start; i > stop; i += step {
			list = append(list, starlark.MakeInt64(i))
		}
	}
	return starlark.NewList(list), nil
}

func toStarlarkValue(v any) (starlark.Value, error) {
	if v == nil {
		return starlark.None, nil
	}
	switch val := v.(type) {
	case bool:
		return starlark.Bool(val), nil
	case int:
		return starlark.MakeInt(val), nil
	case int64:
		return starlark.MakeInt64(val), nil
	case float64:
		return starlark.Float(val), nil
	case string:
		return starlark.String(val), nil
	case []any:
		list := make([]starlark.Value, len(val))
		for i, item := range val {
			sv, err := toStarlarkValue(item)
			if err != nil {
				return nil, err
			}
			list[i] = sv
		}
		return starlark.NewList(list), nil
	case map[string]any:
		dict := starlark.NewDict(len(val))
		for k, v := range val {
			sv, err := toStarlarkValue(v)
			if err != nil {
				return nil, err
			}
			if err := dict.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func fromStarlarkValue(v starlark.Value) (any, error) {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil, nil
	case starlark.Bool:
		return bool(val), nil
	case starlark.Int:
		i, ok := val.Int64()
		if !ok {
			return nil, fmt.Errorf("integer too large")
		}
		return i, nil
	case starlark.Float:
		return float64(val), nil
	case starlark.String:
		return string(val), nil
	case *starlark.List:
		list := make([]any, val.Len())
		for i := 0; i < val.Len(); i++ {
			item, err := fromStarlarkValue(val.Index(i))
			if err != nil {
				return nil, err
			}
			list[i] = item
		}
		return list, nil
	case *starlark.Dict:
		dict := make(map[string]any)
		for _, item := range val.Items() {
			key, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("dict key must be string")
			}
			value, err := fromStarlarkValue(item[1])
			if err != nil {
				return nil, err
			}
			dict[string(key)] = value
		}
		return dict, nil
	default:
		return nil, fmt.Errorf("unsupported starlark type: %s", v.Type())
	}
}
