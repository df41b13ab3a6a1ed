package api

import (
	"context"

	"github.com/photonlab/daqd/pkg/module"
	"github.com/photonlab/daqd/pkg/registry"
)

// ModuleService is the Go-level contract for spec.md §6's Module RPC
// group: the device-module composition layer that lets new device
// drivers be loaded as WASM modules at runtime rather than compiled in.
type ModuleService interface {
	// ListModuleTypes returns every loaded module type.
	ListModuleTypes(ctx context.Context) []module.ModuleTypeInfo

	// ListModules returns every instantiated module.
	ListModules(ctx context.Context) []module.ModuleInfo

	// CreateModule instantiates typeName under instanceID with config.
	CreateModule(ctx context.Context, typeName, instanceID string, config map[string]string) error

	// StartModule transitions an instance to Running.
	StartModule(ctx context.Context, instanceID string) error

	// StopModule transitions an instance to Stopped.
	StopModule(ctx context.Context, instanceID string) error

	// AssignDevice binds an instance as the driver for a device ID,
	// registering it in the hardware registry with the module type's
	// declared capability set.
	AssignDevice(ctx context.Context, instanceID string, deviceID registry.DeviceID, name string, meta registry.Metadata) error
}

// moduleService is the module.Host-backed ModuleService implementation.
type moduleService struct {
	host *module.Host
	reg  *registry.Registry
}

// NewModuleService returns a ModuleService backed by host, registering
// assigned devices into reg.
func NewModuleService(host *module.Host, reg *registry.Registry) ModuleService {
	return &moduleService{host: host, reg: reg}
}

func (s *moduleService) ListModuleTypes(ctx context.Context) []module.ModuleTypeInfo {
	return s.host.ListModuleTypes()
}

func (s *moduleService) ListModules(ctx context.Context) []module.ModuleInfo {
	return s.host.ListModules()
}

func (s *moduleService) CreateModule(ctx context.Context, typeName, instanceID string, config map[string]string) error {
	return s.host.CreateModule(ctx, typeName, instanceID, config)
}

func (s *moduleService) StartModule(ctx context.Context, instanceID string) error {
	return s.host.StartModule(ctx, instanceID)
}

func (s *moduleService) StopModule(ctx context.Context, instanceID string) error {
	return s.host.StopModule(ctx, instanceID)
}

func (s *moduleService) AssignDevice(ctx context.Context, instanceID string, deviceID registry.DeviceID, name string, meta registry.Metadata) error {
	return s.host.AssignDevice(ctx, instanceID, s.reg, deviceID, name, meta)
}
