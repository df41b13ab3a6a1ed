package api

import (
	"context"

	"github.com/photonlab/daqd/pkg/scripting"
)

// DaemonInfo reports static daemon identity, per spec.md §6's
// GetDaemonInfo.
type DaemonInfo struct {
	Name            string
	SoftwareVersion string
	Host            string
}

// ControlService is the Go-level contract for spec.md §6's Control RPC
// group: daemon identity plus the scripting shim's lifecycle.
type ControlService interface {
	// GetDaemonInfo reports static daemon identity.
	GetDaemonInfo(ctx context.Context) (DaemonInfo, error)

	// UploadScript stores (or replaces) a named script's source.
	UploadScript(ctx context.Context, name, source string) error

	// ListScripts returns every uploaded script.
	ListScripts(ctx context.Context) []scripting.Script

	// StartScript begins executing an uploaded script, returning its
	// execution ID.
	StartScript(ctx context.Context, scriptName string, input map[string]any) (string, error)

	// StopScript cancels a running execution.
	StopScript(ctx context.Context, executionID string) error

	// ListExecutions returns every script execution, live and finished.
	ListExecutions(ctx context.Context) []scripting.Execution
}

// controlService is the static-info + scripting.Manager-backed
// ControlService implementation.
type controlService struct {
	info    DaemonInfo
	scripts *scripting.Manager
}

// NewControlService returns a ControlService reporting info and driving
// scripts through mgr.
func NewControlService(info DaemonInfo, mgr *scripting.Manager) ControlService {
	return &controlService{info: info, scripts: mgr}
}

func (s *controlService) GetDaemonInfo(ctx context.Context) (DaemonInfo, error) {
	return s.info, nil
}

func (s *controlService) UploadScript(ctx context.Context, name, source string) error {
	return s.scripts.UploadScript(name, source)
}

func (s *controlService) ListScripts(ctx context.Context) []scripting.Script {
	return s.scripts.ListScripts()
}

func (s *controlService) StartScript(ctx context.Context, scriptName string, input map[string]any) (string, error) {
	return s.scripts.StartScript(ctx, scriptName, input)
}

func (s *controlService) StopScript(ctx context.Context, executionID string) error {
	return s.scripts.StopScript(executionID)
}

func (s *controlService) ListExecutions(ctx context.Context) []scripting.Execution {
	return s.scripts.ListExecutions()
}
