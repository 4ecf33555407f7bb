package tydom

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

// Hub URIs.
const (
	uriDevicesData = "/devices/data"
	uriDeviceData  = "/device/data"
)

// Transport is the session capability the gateway drives. *Client
// implements it.
type Transport interface {
	Connect(ctx context.Context) error
	Do(ctx context.Context, method, uri string, body any) (*Message, error)
	SetOnMessage(callback func(*Message))
	IsConnected() bool
}

// GatewayOptions configures a Gateway.
type GatewayOptions struct {
	Logger Logger
}

// CoverPosition is the current position of one cover device.
type CoverPosition struct {
	ID       cover.DeviceID
	Position cover.Position
}

// Gateway exposes the hub operations the bridge needs on top of a
// Transport: reads, position writes and a filtered change subscription.
type Gateway struct {
	transport Transport
	logger    Logger

	handlerMu sync.RWMutex
	handler   func(ChangeEvent)

	filtered atomic.Uint64
}

// NewGateway wraps a transport. The gateway takes over the transport's
// message callback.
func NewGateway(transport Transport, opts GatewayOptions) *Gateway {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}

	g := &Gateway{
		transport: transport,
		logger:    logger,
	}
	transport.SetOnMessage(g.handleMessage)
	return g
}

// Connect establishes the hub session. Calling it while connected is a no-op.
func (g *Gateway) Connect(ctx context.Context) error {
	if g.transport.IsConnected() {
		return nil
	}
	if err := g.transport.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to hub: %w", err)
	}
	return nil
}

// IsConnected reports whether the hub session is up.
func (g *Gateway) IsConnected() bool {
	return g.transport.IsConnected()
}

// SetPosition writes one data point on the device's endpoint. Use
// DataPointPosition with an int or DataPointPositionCmd with a string.
//
// The result is the hub's acknowledgement, not confirmation that the cover
// moved. Before the session is up the write is dropped with ErrNotConnected.
func (g *Gateway) SetPosition(ctx context.Context, id cover.DeviceID, name string, value any) error {
	if !g.transport.IsConnected() {
		g.logger.Debug("dropping hub write, not connected", "device_id", id, "name", name)
		return ErrNotConnected
	}

	body := []dataWrite{{Name: name, Value: value}}
	if _, err := g.transport.Do(ctx, http.MethodPut, endpointDataURI(id), body); err != nil {
		return fmt.Errorf("setting %s on device %s: %w", name, id, err)
	}
	return nil
}

// GetInfo reads the current state of one device.
func (g *Gateway) GetInfo(ctx context.Context, id cover.DeviceID) (Endpoint, error) {
	msg, err := g.transport.Do(ctx, http.MethodGet, endpointDataURI(id), nil)
	if err != nil {
		return Endpoint{}, fmt.Errorf("reading device %s: %w", id, err)
	}

	var ep Endpoint
	if err := json.Unmarshal(msg.Body, &ep); err != nil {
		return Endpoint{}, fmt.Errorf("%w: device %s: %w", ErrMalformedFrame, id, err)
	}
	return ep, nil
}

// GetAllInfo reads the state of every device known to the hub.
func (g *Gateway) GetAllInfo(ctx context.Context) ([]DeviceData, error) {
	msg, err := g.transport.Do(ctx, http.MethodGet, uriDevicesData, nil)
	if err != nil {
		return nil, fmt.Errorf("reading all devices: %w", err)
	}

	var devices []DeviceData
	if err := json.Unmarshal(msg.Body, &devices); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedFrame, uriDevicesData, err)
	}
	return devices, nil
}

// CoverPositions returns the position of every cover, keyed by endpoint
// id. Covers are the devices with exactly one endpoint; those reporting no
// position are left out.
func (g *Gateway) CoverPositions(ctx context.Context) ([]CoverPosition, error) {
	devices, err := g.GetAllInfo(ctx)
	if err != nil {
		return nil, err
	}

	positions := make([]CoverPosition, 0, len(devices))
	for _, d := range devices {
		if len(d.Endpoints) != 1 {
			continue
		}
		ep := d.Endpoints[0]
		pos, ok := PositionOf(ep)
		if !ok {
			continue
		}
		positions = append(positions, CoverPosition{ID: ep.ID.DeviceID(), Position: pos})
	}
	return positions, nil
}

// SubscribeChanges registers the handler for device-data updates. Only
// PUT pushes on the device-data URI with status 200 reach it; everything
// else is dropped here. A later call replaces the handler.
func (g *Gateway) SubscribeChanges(handler func(ChangeEvent)) {
	g.handlerMu.Lock()
	g.handler = handler
	g.handlerMu.Unlock()
}

// FilteredCount returns how many pushes were dropped by the filter.
func (g *Gateway) FilteredCount() uint64 {
	return g.filtered.Load()
}

func (g *Gateway) handleMessage(msg *Message) {
	if !isDeviceDataUpdate(msg) {
		g.filtered.Add(1)
		return
	}

	g.handlerMu.RLock()
	handler := g.handler
	g.handlerMu.RUnlock()
	if handler == nil {
		return
	}

	var body []DeviceData
	if len(msg.Body) > 0 {
		if err := json.Unmarshal(msg.Body, &body); err != nil {
			g.logger.Warn("dropping undecodable device update", "uri", msg.URI, "error", err)
			return
		}
	}

	handler(ChangeEvent{
		Type:    msg.Type,
		URI:     msg.URI,
		Method:  msg.Method,
		Status:  msg.Status,
		Body:    body,
		Headers: msg.Header,
	})
}

// isDeviceDataUpdate requires all three conditions together.
func isDeviceDataUpdate(msg *Message) bool {
	if msg == nil {
		return false
	}
	path, _, _ := strings.Cut(msg.URI, "?")
	if path != uriDevicesData && path != uriDeviceData {
		return false
	}
	return msg.Method == http.MethodPut && msg.Status == http.StatusOK
}

func endpointDataURI(id cover.DeviceID) string {
	return "/devices/" + id.String() + "/endpoints/" + id.String() + "/data"
}
