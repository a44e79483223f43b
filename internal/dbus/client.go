package dbus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/jmylchreest/compstack/internal/model"
)

// Client calls a running compstackd over the session bus.
type Client struct {
	obj dbus.BusObject
}

// NewClient connects to the session bus. It does not check that the
// service is running; calls fail with a D-Bus error when it is not.
func NewClient() (*Client, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{obj: conn.Object(DBusBusName, dbus.ObjectPath(DBusPath))}, nil
}

func (c *Client) call(ctx context.Context, method string, out ...any) error {
	call := c.obj.CallWithContext(ctx, DBusInterface+"."+method, 0)
	if call.Err != nil {
		return fmt.Errorf("failed to call %s: %w", method, call.Err)
	}
	if len(out) == 0 {
		return nil
	}
	if err := call.Store(out...); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", method, err)
	}
	return nil
}

// Stacking returns the daemon's client stacking list, bottom-first.
func (c *Client) Stacking(ctx context.Context) ([]model.SurfaceID, error) {
	var v []uint32
	if err := c.call(ctx, "GetStacking", &v); err != nil {
		return nil, err
	}
	return FromWire(v), nil
}

// MappedStacking returns every mapped surface, bottom-first.
func (c *Client) MappedStacking(ctx context.Context) ([]model.SurfaceID, error) {
	var v []uint32
	if err := c.call(ctx, "GetMappedStacking", &v); err != nil {
		return nil, err
	}
	return FromWire(v), nil
}

// Compositing reports whether the daemon is compositing.
func (c *Client) Compositing(ctx context.Context) (bool, error) {
	var on bool
	err := c.call(ctx, "IsCompositing", &on)
	return on, err
}

// Reconcile asks the daemon to run a pass now.
func (c *Client) Reconcile(ctx context.Context) error {
	return c.call(ctx, "Reconcile")
}

// Stats returns the daemon's pass and planner statistics.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var v map[string]dbus.Variant
	if err := c.call(ctx, "GetStats", &v); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = val.Value()
	}
	return out, nil
}

// SetAnimating tells the daemon whether a compositor animation is running.
func (c *Client) SetAnimating(ctx context.Context, on bool) error {
	call := c.obj.CallWithContext(ctx, DBusInterface+".SetAnimating", 0, on)
	if call.Err != nil {
		return fmt.Errorf("failed to call SetAnimating: %w", call.Err)
	}
	return nil
}
