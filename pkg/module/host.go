package module

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/registry"
)

// defaultCallTimeout bounds every device_call invocation into a module.
const defaultCallTimeout = 5 * time.Second

// defaultMemoryLimitPages caps a module instance at 16 MiB of linear
// memory (256 pages of 64 KiB each).
const defaultMemoryLimitPages = 256

// ModuleTypeInfo describes one loadable module type, as reported by
// ListModuleTypes.
type ModuleTypeInfo struct {
	Name         string
	Version      string
	Description  string
	Capabilities []string
}

// ModuleState is an instantiated module's lifecycle stage.
type ModuleState string

const (
	ModuleCreated ModuleState = "created"
	ModuleRunning ModuleState = "running"
	ModuleStopped ModuleState = "stopped"
)

// ModuleInfo describes one instantiated module, as reported by
// ListModules.
type ModuleInfo struct {
	InstanceID string
	TypeName   string
	State      ModuleState
	Assigned   []registry.DeviceID
}

type moduleType struct {
	manifest *Manifest
	compiled wazero.CompiledModule
}

type instance struct {
	id       string
	typeName string
	state    ModuleState
	module   wazeroapi.Module
	bridge   *Bridge
	driver   *driver
	assigned map[registry.DeviceID]bool
}

// Host owns the wazero runtime and every compiled module type and live
// module instance: the device-module composition layer spec.md §6's
// Module RPC group operates on. One Host per daemon process.
type Host struct {
	runtime wazero.Runtime
	log     zerolog.Logger

	mu        sync.Mutex
	types     map[string]*moduleType
	instances map[string]*instance
}

// NewHost builds a Host with a fresh wazero runtime and WASI support
// instantiated into it.
func NewHost(ctx context.Context, log zerolog.Logger) (*Host, error) {
	cfg := wazero.NewRuntimeConfig().
		WithMemoryLimitPages(defaultMemoryLimitPages).
		WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("module: instantiate WASI: %w", err)
	}

	return &Host{
		runtime:   runtime,
		log:       log.With().Str("component", "module_host").Logger(),
		types:     make(map[string]*moduleType),
		instances: make(map[string]*instance),
	}, nil
}

// Close releases the wazero runtime and every compiled/instantiated
// module.
func (h *Host) Close(ctx context.Context) error {
	return h.runtime.Close(ctx)
}

// LoadModuleTypes scans dir non-recursively for "*.module.yaml" manifests,
// compiling each manifest's referenced WASM file. A manifest whose
// checksum fails verification is rejected and logged, not fatal to the
// scan as a whole.
func (h *Host) LoadModuleTypes(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("module: read module-types dir: %w", err)
	}

	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".module.yaml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		manifest, err := LoadManifest(path)
		if err != nil {
			h.log.Warn().Err(err).Str("path", path).Msg("skipping invalid module manifest")
			continue
		}

		wasmBytes, err := os.ReadFile(manifest.WasmPath())
		if err != nil {
			h.log.Warn().Err(err).Str("path", manifest.WasmPath()).Msg("skipping module with unreadable wasm")
			continue
		}
		if err := manifest.VerifyChecksum(wasmBytes); err != nil {
			h.log.Warn().Err(err).Str("module", manifest.Name).Msg("skipping module with checksum mismatch")
			continue
		}

		compiled, err := h.runtime.CompileModule(ctx, wasmBytes)
		if err != nil {
			h.log.Warn().Err(err).Str("module", manifest.Name).Msg("skipping module that failed to compile")
			continue
		}

		h.mu.Lock()
		h.types[manifest.Name] = &moduleType{manifest: manifest, compiled: compiled}
		h.mu.Unlock()
	}
	return nil
}

// ListModuleTypes returns every loaded module type.
func (h *Host) ListModuleTypes() []ModuleTypeInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ModuleTypeInfo, 0, len(h.types))
	for _, t := range h.types {
		out = append(out, ModuleTypeInfo{
			Name:         t.manifest.Name,
			Version:      t.manifest.Version,
			Description:  t.manifest.Description,
			Capabilities: t.manifest.Capabilities,
		})
	}
	return out
}

// ListModules returns every instantiated module.
func (h *Host) ListModules() []ModuleInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]ModuleInfo, 0, len(h.instances))
	for _, inst := range h.instances {
		assigned := make([]registry.DeviceID, 0, len(inst.assigned))
		for id := range inst.assigned {
			assigned = append(assigned, id)
		}
		out = append(out, ModuleInfo{InstanceID: inst.id, TypeName: inst.typeName, State: inst.state, Assigned: assigned})
	}
	return out
}

// CreateModule instantiates a fresh copy of typeName under instanceID,
// calling its init export with config. Fails with NotFound if typeName
// isn't loaded, InvalidArgument if instanceID is already taken.
func (h *Host) CreateModule(ctx context.Context, typeName, instanceID string, config map[string]string) error {
	h.mu.Lock()
	mt, ok := h.types[typeName]
	if !ok {
		h.mu.Unlock()
		return daqerr.NewNotFound(fmt.Sprintf("module type %q not loaded", typeName), nil)
	}
	if _, exists := h.instances[instanceID]; exists {
		h.mu.Unlock()
		return daqerr.NewInvalidArgument(fmt.Sprintf("module instance %q already exists", instanceID), nil)
	}
	h.mu.Unlock()

	modCfg := wazero.NewModuleConfig().WithName(instanceID).WithStartFunctions()
	mod, err := h.runtime.InstantiateModule(ctx, mt.compiled, modCfg)
	if err != nil {
		return fmt.Errorf("module: instantiate %s: %w", instanceID, err)
	}

	bridge, err := NewBridge(mod, defaultCallTimeout)
	if err != nil {
		_ = mod.Close(ctx)
		return fmt.Errorf("module: bridge %s: %w", instanceID, err)
	}

	if err := bridge.Call(ctx, "init", config, nil); err != nil {
		_ = mod.Close(ctx)
		return fmt.Errorf("module: init %s: %w", instanceID, err)
	}

	inst := &instance{
		id:       instanceID,
		typeName: typeName,
		state:    ModuleCreated,
		module:   mod,
		bridge:   bridge,
		driver:   newDriver(typeName, bridge),
		assigned: make(map[registry.DeviceID]bool),
	}

	h.mu.Lock()
	h.instances[instanceID] = inst
	h.mu.Unlock()
	return nil
}

// StartModule transitions instanceID to Running.
func (h *Host) StartModule(ctx context.Context, instanceID string) error {
	inst, err := h.get(instanceID)
	if err != nil {
		return err
	}
	if err := inst.bridge.Call(ctx, "start", nil, nil); err != nil {
		return err
	}
	h.mu.Lock()
	inst.state = ModuleRunning
	h.mu.Unlock()
	return nil
}

// StopModule transitions instanceID to Stopped. The underlying WASM
// instance is left alive (CreateModule is not re-callable for the same
// instanceID) so AssignDevice handles remain valid to inspect, but driver
// calls against a Stopped module return whatever the guest itself reports
// for device_call on a stopped module.
func (h *Host) StopModule(ctx context.Context, instanceID string) error {
	inst, err := h.get(instanceID)
	if err != nil {
		return err
	}
	if err := inst.bridge.Call(ctx, "stop", nil, nil); err != nil {
		return err
	}
	h.mu.Lock()
	inst.state = ModuleStopped
	h.mu.Unlock()
	return nil
}

// AssignDevice registers instanceID's module as the driver for deviceID,
// using the module type's manifest-declared capabilities (not Go type
// assertion, since a WASM module can't be asserted against) as the
// device's capability set.
func (h *Host) AssignDevice(ctx context.Context, instanceID string, reg *registry.Registry, deviceID registry.DeviceID, name string, meta registry.Metadata) error {
	inst, err := h.get(instanceID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	mt, ok := h.types[inst.typeName]
	h.mu.Unlock()
	if !ok {
		return daqerr.NewInternal(fmt.Sprintf("module type %q missing for live instance %q", inst.typeName, instanceID), nil)
	}

	caps := make([]capability.Kind, 0, len(mt.manifest.Capabilities))
	for _, c := range mt.manifest.Capabilities {
		caps = append(caps, capability.Kind(c))
	}

	if err := reg.RegisterDeclared(deviceID, name, inst.driver, meta, caps); err != nil {
		return err
	}

	h.mu.Lock()
	inst.assigned[deviceID] = true
	h.mu.Unlock()
	return nil
}

func (h *Host) get(instanceID string) (*instance, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[instanceID]
	if !ok {
		return nil, daqerr.NewNotFound(fmt.Sprintf("module instance %q not found", instanceID), nil)
	}
	return inst, nil
}
