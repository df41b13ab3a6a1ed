package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/photonlab/daqd/pkg/capability"
	"github.com/photonlab/daqd/pkg/daqerr"
)

// CommandTemplate maps a capability operation to the remote shell
// command that performs it. %v is substituted with the operation's
// argument, if any. A device that only declares a subset of the
// capability.*Device methods leaves the rest of these fields empty;
// calling an operation with no configured template fails with
// Unimplemented.
type CommandTemplate struct {
	Read         string // stdout parsed as a float
	MoveAbs      string // %v = target position
	Position     string // stdout parsed as a float
	GetParameter string // %v = parameter name; stdout parsed as a float
	SetParameter string // %v, %v = parameter name, value
}

// CommandDevice adapts a Client plus a CommandTemplate to the
// capability.ReadableDevice and capability.MovableDevice interfaces,
// for instruments whose only control surface is a script or CLI tool
// on the remote host.
type CommandDevice struct {
	client     *Client
	driverType string
	tmpl       CommandTemplate
}

// NewCommandDevice returns a CommandDevice driving client with tmpl.
func NewCommandDevice(client *Client, driverType string, tmpl CommandTemplate) *CommandDevice {
	return &CommandDevice{client: client, driverType: driverType, tmpl: tmpl}
}

func (d *CommandDevice) DriverType() string { return d.driverType }

var (
	_ capability.ReadableDevice = (*CommandDevice)(nil)
	_ capability.MovableDevice  = (*CommandDevice)(nil)
)

func (d *CommandDevice) Read(ctx context.Context) (capability.Reading, error) {
	if d.tmpl.Read == "" {
		return capability.Reading{}, daqerr.NewUnimplemented("device has no read command configured", nil).WithDevice(d.driverType)
	}
	out, _, err := d.client.ExecuteCommand(ctx, d.tmpl.Read)
	if err != nil {
		return capability.Reading{}, daqerr.NewUnavailable("remote read command failed", err).WithDevice(d.driverType)
	}
	v, err := parseFloat(out)
	if err != nil {
		return capability.Reading{}, daqerr.NewInternal("remote read command returned non-numeric output", err).WithDevice(d.driverType)
	}
	return capability.Reading{Value: v}, nil
}

func (d *CommandDevice) MoveAbs(ctx context.Context, position float64) error {
	if d.tmpl.MoveAbs == "" {
		return daqerr.NewUnimplemented("device has no move command configured", nil).WithDevice(d.driverType)
	}
	cmd := fmt.Sprintf(d.tmpl.MoveAbs, position)
	if _, _, err := d.client.ExecuteCommand(ctx, cmd); err != nil {
		return daqerr.NewUnavailable("remote move command failed", err).WithDevice(d.driverType)
	}
	return nil
}

func (d *CommandDevice) MoveRel(ctx context.Context, delta float64) error {
	pos, err := d.Position(ctx)
	if err != nil {
		return err
	}
	return d.MoveAbs(ctx, pos+delta)
}

func (d *CommandDevice) Position(ctx context.Context) (float64, error) {
	if d.tmpl.Position == "" {
		return 0, daqerr.NewUnimplemented("device has no position command configured", nil).WithDevice(d.driverType)
	}
	out, _, err := d.client.ExecuteCommand(ctx, d.tmpl.Position)
	if err != nil {
		return 0, daqerr.NewUnavailable("remote position command failed", err).WithDevice(d.driverType)
	}
	return parseFloat(out)
}

// WaitSettled: a remote CLI instrument exposes no sense of motion
// completion over a command round trip, so this device treats
// MoveAbs as synchronous: the remote command only returns once motion
// is complete. WaitSettled is therefore a no-op.
func (d *CommandDevice) WaitSettled(ctx context.Context) error { return nil }

// Stop has no remote equivalent for a synchronous command-driven device;
// by the time Stop could be called, MoveAbs has already returned.
func (d *CommandDevice) Stop(ctx context.Context) error {
	return daqerr.NewUnimplemented("remote command device has no in-flight motion to stop", nil).WithDevice(d.driverType)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}
