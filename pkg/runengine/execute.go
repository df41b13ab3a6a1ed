package runengine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
	"github.com/photonlab/daqd/pkg/document"
	"github.com/photonlab/daqd/pkg/plan"
	"github.com/photonlab/daqd/pkg/registry"
)

// SoftwareVersion and Hostname are stamped into every StartDoc's SystemInfo.
// Overridable in tests.
var (
	SoftwareVersion = "daqd/dev"
	Hostname        = "localhost"
)

// run drives rc.builder to completion, executing each PlanCommand and
// emitting the Start/Descriptor/Event/Stop document stream. It is the
// only goroutine ever touching rc.builder.
func (e *Engine) run(rc *runContext) {
	ctx := context.Background()

	// cmdCtx is cancelled the moment rc.abortC closes, so a capability
	// call blocked mid-command (MoveAbs/WaitSettled sleeping out a move)
	// wakes immediately instead of running to completion before the loop
	// next checks rc.aborted(). stopActive is always called with the
	// plain ctx, not cmdCtx, so the stop attempt itself isn't cancelled
	// by the same abort that triggered it.
	cmdCtx, cancelOnAbort := context.WithCancel(ctx)
	defer cancelOnAbort()
	go func() {
		select {
		case <-rc.abortC:
			cancelOnAbort()
		case <-cmdCtx.Done():
		}
	}()

	seq := map[string]uint64{}
	descriptorSent := map[string]bool{}
	accumulator := map[string]float64{}
	activeMovers := map[string]bool{}

	startTime := time.Now()
	e.emit(ctx, document.NewStart(rc.runUID, &document.StartDoc{
		RunUID:     rc.runUID,
		PlanType:   rc.builder.Type(),
		PlanName:   rc.builder.Name(),
		NumPoints:  rc.builder.NumPoints(),
		Parameters: e.parameterSnapshot(ctx),
		System: document.SystemInfo{
			SoftwareVersion: SoftwareVersion,
			Host:            Hostname,
		},
		StartedAt: startTime,
	}))

	exit := document.ExitCompleted
	reason := ""

	for {
		if rc.aborted() {
			exit, reason = document.ExitAborted, "aborted by operator"
			e.stopActive(ctx, activeMovers)
			break
		}
		if rc.wantsImmediatePause() {
			if !e.waitWhilePaused(rc) {
				exit, reason = document.ExitAborted, "aborted while paused"
				e.stopActive(ctx, activeMovers)
				break
			}
		}

		cmd, ok := rc.builder.Next()
		if !ok {
			break
		}

		if cmd.Kind == plan.CommandCheckpoint && rc.wantsCheckpointPause() {
			if !e.waitWhilePaused(rc) {
				exit, reason = document.ExitAborted, "aborted while paused"
				e.stopActive(ctx, activeMovers)
				break
			}
		}

		if err := e.execCommand(cmdCtx, rc, cmd, seq, descriptorSent, accumulator, activeMovers); err != nil {
			if rc.aborted() {
				exit, reason = document.ExitAborted, "aborted by operator"
			} else {
				exit, reason = document.ExitFailed, err.Error()
			}
			e.stopActive(ctx, activeMovers)
			break
		}
	}

	e.emit(ctx, document.NewStop(rc.runUID, &document.StopDoc{
		RunUID:    rc.runUID,
		Exit:      exit,
		Reason:    reason,
		StoppedAt: time.Now(),
	}))

	lastErr := ""
	if exit == document.ExitFailed {
		lastErr = reason
	}
	e.finish(rc, lastErr)
}

// waitWhilePaused blocks until resume or abort. Returns false if aborted.
func (e *Engine) waitWhilePaused(rc *runContext) bool {
	e.setPaused()
	wait := rc.waitC()
	select {
	case <-wait:
		return true
	case <-rc.abortC:
		return false
	}
}

func (e *Engine) execCommand(
	ctx context.Context,
	rc *runContext,
	cmd plan.Command,
	seq map[string]uint64,
	descriptorSent map[string]bool,
	accumulator map[string]float64,
	activeMovers map[string]bool,
) error {
	switch cmd.Kind {
	case plan.CommandMoveTo:
		mv, err := e.reg.GetMovable(registry.DeviceID(cmd.Device))
		if err != nil {
			return fmt.Errorf("move %s: %w", cmd.Device, err)
		}
		activeMovers[cmd.Device] = true
		if err := mv.MoveAbs(ctx, cmd.Position); err != nil {
			return fmt.Errorf("move %s: %w", cmd.Device, err)
		}
		if err := mv.WaitSettled(ctx); err != nil {
			return fmt.Errorf("move %s: settle: %w", cmd.Device, err)
		}
		return nil

	case plan.CommandRead:
		rd, err := e.reg.GetReadable(registry.DeviceID(cmd.Device))
		if err != nil {
			return fmt.Errorf("read %s: %w", cmd.Device, err)
		}
		reading, err := rd.Read(ctx)
		if err != nil {
			return fmt.Errorf("read %s: %w", cmd.Device, err)
		}
		accumulator[cmd.Device] = reading.Value
		return nil

	case plan.CommandTrigger:
		tg, err := e.reg.GetTriggerable(registry.DeviceID(cmd.Device))
		if err != nil {
			return fmt.Errorf("trigger %s: %w", cmd.Device, err)
		}
		armed, err := tg.IsArmed(ctx)
		if err != nil {
			return fmt.Errorf("trigger %s: is_armed: %w", cmd.Device, err)
		}
		if !armed {
			if err := tg.Arm(ctx); err != nil {
				return fmt.Errorf("trigger %s: arm: %w", cmd.Device, err)
			}
		}
		if err := tg.Trigger(ctx); err != nil {
			return fmt.Errorf("trigger %s: %w", cmd.Device, err)
		}
		return nil

	case plan.CommandWait:
		return e.sleepCancellable(rc, cmd.Seconds)

	case plan.CommandCheckpoint:
		// Deferred-pause handling already happened in run(); this is the
		// opportunistic "drain any pending control signal" no-op otherwise.
		return nil

	case plan.CommandEmitEvent:
		merged := make(map[string]float64, len(cmd.Data)+len(accumulator))
		for k, v := range accumulator {
			merged[k] = v
		}
		for k, v := range cmd.Data {
			merged[k] = v
		}
		for k := range accumulator {
			delete(accumulator, k)
		}

		stream := cmd.Stream
		if stream == "" {
			stream = "primary"
		}
		if !descriptorSent[stream] {
			fields := make([]string, 0, len(merged))
			for k := range merged {
				fields = append(fields, k)
			}
			sort.Strings(fields)
			now := time.Now()
			e.emit(ctx, document.NewDescriptor(rc.runUID, &document.DescriptorDoc{Stream: stream, Fields: fields}, now))
			descriptorSent[stream] = true
		}

		seq[stream]++
		e.emit(ctx, document.NewEvent(rc.runUID, &document.EventDoc{
			RunUID:    rc.runUID,
			Stream:    stream,
			Seq:       seq[stream],
			TimeNS:    time.Now().UnixNano(),
			Data:      merged,
			Positions: cmd.Positions,
		}))
		return nil

	case plan.CommandSet:
		pd, err := e.reg.GetParameterized(registry.DeviceID(cmd.Device))
		if err != nil {
			return fmt.Errorf("set %s.%s: %w", cmd.Device, cmd.Param, err)
		}
		params, err := pd.Parameters(ctx)
		if err != nil {
			return fmt.Errorf("set %s.%s: %w", cmd.Device, cmd.Param, err)
		}
		value, perr := strconv.ParseFloat(cmd.Value, 64)
		if perr != nil {
			return fmt.Errorf("set %s.%s: %w", cmd.Device, cmd.Param, daqerr.NewInvalidArgument(fmt.Sprintf("value %q is not a number", cmd.Value), perr))
		}
		if err := params.SetValue(ctx, cmd.Param, value); err != nil {
			return fmt.Errorf("set %s.%s: %w", cmd.Device, cmd.Param, err)
		}
		return nil

	default:
		return daqerr.NewInternal(fmt.Sprintf("unknown command kind %q", cmd.Kind), nil)
	}
}

// sleepCancellable sleeps for seconds, waking immediately on abort.
func (e *Engine) sleepCancellable(rc *runContext, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-rc.abortC:
		return daqerr.NewUnavailable("wait cancelled by abort", nil)
	}
}

// stopActive best-effort stops every Movable the run touched, per the
// abort propagation rule (Moves receive a best-effort stop()).
func (e *Engine) stopActive(ctx context.Context, activeMovers map[string]bool) {
	for id := range activeMovers {
		mv, err := e.reg.GetMovable(registry.DeviceID(id))
		if err != nil {
			continue
		}
		if err := mv.Stop(ctx); err != nil {
			e.log.Warn().Err(err).Str("device", id).Msg("stop on abort failed")
		}
	}
}

// parameterSnapshot walks every registered Parameterized device's
// ParameterSet and serialises each value as JSON, for StartDoc.
func (e *Engine) parameterSnapshot(ctx context.Context) map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	for _, info := range e.reg.List() {
		if !info.HasCapability(capability.Parameterized) {
			continue
		}
		pd, err := e.reg.GetParameterized(info.ID)
		if err != nil {
			continue
		}
		set, err := pd.Parameters(ctx)
		if err != nil {
			continue
		}
		for _, name := range set.Names() {
			p := set.Get(name)
			if p == nil {
				continue
			}
			raw, err := json.Marshal(p.Get())
			if err != nil {
				continue
			}
			out[fmt.Sprintf("%s.%s", info.ID, name)] = raw
		}
	}
	return out
}
