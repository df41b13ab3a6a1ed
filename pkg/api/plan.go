package api

import (
	"context"

	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/plan"
	"github.com/photonlab/daqd/pkg/runengine"
)

// PlanService is the Go-level contract for spec.md §6's Plan/Run RPC
// group: plan admission, run control, and the live document stream.
type PlanService interface {
	// QueuePlan admits a plan by type tag, string params, and a device
	// role mapping, returning its run UID. The plan does not start until
	// StartEngine is called.
	QueuePlan(ctx context.Context, tag string, params, deviceMapping, metadata map[string]string) (runUID string, err error)

	// StartEngine dequeues and begins the oldest admitted plan.
	StartEngine(ctx context.Context) error

	// PauseEngine requests a pause; deferPause delays it to the next
	// Checkpoint rather than the next command boundary.
	PauseEngine(ctx context.Context, deferPause bool) error

	// ResumeEngine releases a pause requested by PauseEngine.
	ResumeEngine(ctx context.Context) error

	// AbortPlan forcibly ends a run. Empty runUID aborts whichever run is
	// current.
	AbortPlan(ctx context.Context, runUID string) error

	// GetEngineStatus returns the engine's current state snapshot.
	GetEngineStatus(ctx context.Context) (runengine.Status, error)

	// StreamDocuments subscribes to the live document bus, optionally
	// filtered to specific kinds. The returned cancel func must be called
	// to release the subscription.
	StreamDocuments(ctx context.Context, kinds ...document.Kind) (<-chan document.Document, func(), error)

	// ListPlanTypes returns every plan-type tag this daemon can build.
	ListPlanTypes(ctx context.Context) []string
}

// planService is the Engine/Registry-backed PlanService implementation.
type planService struct {
	engine   *runengine.Engine
	registry *plan.Registry
}

// NewPlanService returns a PlanService wiring planRegistry's builders
// through engine.
func NewPlanService(engine *runengine.Engine, planRegistry *plan.Registry) PlanService {
	return &planService{engine: engine, registry: planRegistry}
}

func (s *planService) QueuePlan(ctx context.Context, tag string, params, deviceMapping, metadata map[string]string) (string, error) {
	return s.engine.QueuePlan(ctx, s.registry, tag, params, deviceMapping, metadata)
}

func (s *planService) StartEngine(ctx context.Context) error {
	return s.engine.StartEngine(ctx)
}

func (s *planService) PauseEngine(ctx context.Context, deferPause bool) error {
	return s.engine.PauseEngine(deferPause)
}

func (s *planService) ResumeEngine(ctx context.Context) error {
	return s.engine.ResumeEngine()
}

func (s *planService) AbortPlan(ctx context.Context, runUID string) error {
	return s.engine.AbortPlan(runUID)
}

func (s *planService) GetEngineStatus(ctx context.Context) (runengine.Status, error) {
	return s.engine.GetEngineStatus(), nil
}

func (s *planService) StreamDocuments(ctx context.Context, kinds ...document.Kind) (<-chan document.Document, func(), error) {
	ch, cancel := s.engine.Subscribe(kinds...)
	return ch, cancel, nil
}

func (s *planService) ListPlanTypes(ctx context.Context) []string {
	return s.registry.Types()
}
