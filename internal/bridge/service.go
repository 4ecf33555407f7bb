package bridge

import (
	"context"
	"fmt"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/tydom"
)

// CoverPosition is a named cover position.
type CoverPosition struct {
	Name     cover.Name     `json:"name"`
	Position cover.Position `json:"position"`
}

// SetPosition drives a cover to pos and waits for the hub to acknowledge.
// Unknown names fail with cover.ErrUnknownDevice.
func (b *Bridge) SetPosition(ctx context.Context, name cover.Name, pos cover.Position) error {
	return b.request(ctx, name, pos, "position")
}

// OpenCover fully opens a cover.
func (b *Bridge) OpenCover(ctx context.Context, name cover.Name) error {
	return b.request(ctx, name, cover.PositionOpen, string(cover.CommandOpen))
}

// CloseCover fully closes a cover.
func (b *Bridge) CloseCover(ctx context.Context, name cover.Name) error {
	return b.request(ctx, name, cover.PositionClosed, string(cover.CommandClose))
}

func (b *Bridge) request(ctx context.Context, name cover.Name, pos cover.Position, action string) error {
	id, err := b.registry.NameToID(name)
	if err != nil {
		return err
	}

	b.commandsReceived.Add(1)
	b.metrics.CommandReceived(SourceAPI, action)

	err = b.hub.SetPosition(ctx, id, tydom.DataPointPosition, int(pos))
	b.audit(CommandRecord{Cover: name, DeviceID: id, Source: SourceAPI, Action: action, Position: pos, Err: err})
	b.logMutation(name, pos, SourceAPI, err)
	return err
}

// CoverPosition reads one cover's position from the hub.
func (b *Bridge) CoverPosition(ctx context.Context, name cover.Name) (cover.Position, error) {
	id, err := b.registry.NameToID(name)
	if err != nil {
		return 0, err
	}

	ep, err := b.hub.GetInfo(ctx, id)
	if err != nil {
		return 0, err
	}
	pos, ok := tydom.PositionOf(ep)
	if !ok {
		return 0, fmt.Errorf("%w: cover %s", ErrPositionUnavailable, name)
	}
	return pos, nil
}

// AllPositions reads every cover position from the hub. Devices that do
// not resolve to a known cover are left out.
func (b *Bridge) AllPositions(ctx context.Context) ([]CoverPosition, error) {
	states, err := b.hub.CoverPositions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]CoverPosition, 0, len(states))
	for _, s := range states {
		name, err := b.registry.Resolve(s.ID.String())
		if err != nil {
			b.logger.Debug("skipping unmapped device", "device_id", s.ID)
			continue
		}
		out = append(out, CoverPosition{Name: name, Position: s.Position})
	}
	return out, nil
}
