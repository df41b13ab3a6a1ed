package module

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	wazeroapi "github.com/tetratelabs/wazero/api"
)

// call is the JSON envelope sent to a module's exported device_call
// function: a method name plus opaque arguments.
type call struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args,omitempty"`
}

// callResult is the JSON envelope a module returns from device_call.
type callResult struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Bridge exposes a single instantiated WASM module's device_call export
// as a Go method-call surface, using the same length-prefixed
// malloc/write/call/read/free convention as every other WASM provider
// boundary in this codebase: a packed (ptr<<32|len) uint64 return value
// marks where in linear memory the JSON result landed.
type Bridge struct {
	module  wazeroapi.Module
	memory  wazeroapi.Memory
	malloc  wazeroapi.Function
	free    wazeroapi.Function
	devCall wazeroapi.Function
	timeout time.Duration
}

// NewBridge wraps an instantiated module. The module must export malloc,
// free, and device_call.
func NewBridge(mod wazeroapi.Module, timeout time.Duration) (*Bridge, error) {
	b := &Bridge{module: mod, timeout: timeout}

	b.memory = mod.Memory()
	if b.memory == nil {
		return nil, fmt.Errorf("module: WASM module does not export memory")
	}
	b.malloc = mod.ExportedFunction("malloc")
	if b.malloc == nil {
		return nil, fmt.Errorf("module: WASM module does not export malloc")
	}
	b.free = mod.ExportedFunction("free")
	if b.free == nil {
		return nil, fmt.Errorf("module: WASM module does not export free")
	}
	b.devCall = mod.ExportedFunction("device_call")
	if b.devCall == nil {
		return nil, fmt.Errorf("module: WASM module does not export device_call")
	}
	return b, nil
}

// Call invokes method with args marshaled to JSON, unmarshaling the
// module's result into out (which may be nil to discard it).
func (b *Bridge) Call(ctx context.Context, method string, args, out any) error {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("module: marshal args for %s: %w", method, err)
	}
	reqJSON, err := json.Marshal(call{Method: method, Args: argsJSON})
	if err != nil {
		return fmt.Errorf("module: marshal call for %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	respJSON, err := b.invoke(ctx, reqJSON)
	if err != nil {
		return fmt.Errorf("module: device_call %s: %w", method, err)
	}

	var resp callResult
	if err := json.Unmarshal(respJSON, &resp); err != nil {
		return fmt.Errorf("module: unmarshal device_call response for %s: %w", method, err)
	}
	if !resp.OK {
		return fmt.Errorf("module: %s reported error: %s", method, resp.Error)
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("module: unmarshal result for %s: %w", method, err)
		}
	}
	return nil
}

func (b *Bridge) invoke(ctx context.Context, input []byte) ([]byte, error) {
	var ptr, length uint32
	if len(input) > 0 {
		p, err := b.allocate(ctx, uint32(len(input)))
		if err != nil {
			return nil, err
		}
		defer b.deallocate(ctx, p)
		if !b.memory.Write(p, input) {
			return nil, fmt.Errorf("write input to WASM memory failed")
		}
		ptr, length = p, uint32(len(input))
	}

	results, err := b.devCall.Call(ctx, uint64(ptr), uint64(length))
	if err != nil {
		return nil, fmt.Errorf("call failed: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("device_call returned no results")
	}

	packed := results[0]
	outPtr := uint32(packed >> 32)
	outLen := uint32(packed & 0xFFFFFFFF)
	if outLen == 0 {
		return []byte(`{"ok":true}`), nil
	}

	out, ok := b.memory.Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("read output from WASM memory failed")
	}
	// Copy before freeing: the module reuses this memory.
	buf := make([]byte, len(out))
	copy(buf, out)
	b.deallocate(ctx, outPtr)
	return buf, nil
}

func (b *Bridge) allocate(ctx context.Context, size uint32) (uint32, error) {
	results, err := b.malloc.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("malloc failed: %w", err)
	}
	if len(results) == 0 || uint32(results[0]) == 0 {
		return 0, fmt.Errorf("malloc returned null pointer")
	}
	return uint32(results[0]), nil
}

func (b *Bridge) deallocate(ctx context.Context, ptr uint32) {
	_, _ = b.free.Call(ctx, uint64(ptr))
}
