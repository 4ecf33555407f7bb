package tydom

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/tydom2mqtt/internal/cover"
)

type fakeRequest struct {
	method string
	uri    string
	body   string
}

// fakeTransport records requests and answers them from canned bodies.
type fakeTransport struct {
	mu         sync.Mutex
	connected  bool
	connects   int
	connectErr error
	doErr      error
	responses  map[string]string
	requests   []fakeRequest
	onMessage  func(*Message)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{responses: make(map[string]string)}
}

func (f *fakeTransport) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeTransport) Do(_ context.Context, method, uri string, body any) (*Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var encoded []byte
	if body != nil {
		encoded, _ = json.Marshal(body)
	}
	f.requests = append(f.requests, fakeRequest{method: method, uri: uri, body: string(encoded)})

	if f.doErr != nil {
		return nil, f.doErr
	}
	return &Message{
		Type:   MessageResponse,
		Method: method,
		URI:    uri,
		Status: http.StatusOK,
		Body:   []byte(f.responses[method+" "+uri]),
	}, nil
}

func (f *fakeTransport) SetOnMessage(callback func(*Message)) {
	f.mu.Lock()
	f.onMessage = callback
	f.mu.Unlock()
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) push(msg *Message) {
	f.mu.Lock()
	callback := f.onMessage
	f.mu.Unlock()
	callback(msg)
}

func (f *fakeTransport) recorded() []fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]fakeRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

const fleetJSON = `[
	{"id": 1584296123, "endpoints": [{"id": 1584296123, "error": 0, "data": [{"name": "position", "validity": "upToDate", "value": 30}]}]},
	{"id": "1584296124", "endpoints": [{"id": 1584296124, "error": 0, "data": [{"name": "position", "validity": "upToDate", "value": 80}]}]},
	{"id": 1584296200, "endpoints": [{"id": 1, "data": []}, {"id": 2, "data": []}]},
	{"id": 1584296300, "endpoints": [{"id": 1584296300, "error": 0, "data": [{"name": "level", "value": 50}]}]}
]`

func TestGateway_Connect(t *testing.T) {
	ft := newFakeTransport()
	gw := NewGateway(ft, GatewayOptions{})

	require.NoError(t, gw.Connect(context.Background()))
	require.NoError(t, gw.Connect(context.Background()))
	assert.Equal(t, 1, ft.connects, "connect should be idempotent")
	assert.True(t, gw.IsConnected())
}

func TestGateway_ConnectError(t *testing.T) {
	ft := newFakeTransport()
	ft.connectErr = ErrConnectionFailed
	gw := NewGateway(ft, GatewayOptions{})

	err := gw.Connect(context.Background())
	assert.True(t, errors.Is(err, ErrConnectionFailed), "error = %v", err)
}

func TestGateway_SetPosition(t *testing.T) {
	tests := []struct {
		name     string
		dataName string
		value    any
		wantBody string
	}{
		{name: "position", dataName: DataPointPosition, value: 42, wantBody: `[{"name":"position","value":42}]`},
		{name: "position command", dataName: DataPointPositionCmd, value: "STOP", wantBody: `[{"name":"positionCmd","value":"STOP"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			gw := NewGateway(ft, GatewayOptions{})
			require.NoError(t, gw.Connect(context.Background()))

			require.NoError(t, gw.SetPosition(context.Background(), "1584296123", tt.dataName, tt.value))

			reqs := ft.recorded()
			require.Len(t, reqs, 1)
			assert.Equal(t, http.MethodPut, reqs[0].method)
			assert.Equal(t, "/devices/1584296123/endpoints/1584296123/data", reqs[0].uri)
			assert.JSONEq(t, tt.wantBody, reqs[0].body)
		})
	}
}

func TestGateway_SetPositionNotConnected(t *testing.T) {
	ft := newFakeTransport()
	gw := NewGateway(ft, GatewayOptions{})

	err := gw.SetPosition(context.Background(), "1", DataPointPosition, 100)

	assert.True(t, errors.Is(err, ErrNotConnected), "error = %v", err)
	assert.Empty(t, ft.recorded(), "write should be dropped, not sent")
}

func TestGateway_SetPositionTransportError(t *testing.T) {
	ft := newFakeTransport()
	gw := NewGateway(ft, GatewayOptions{})
	require.NoError(t, gw.Connect(context.Background()))
	ft.doErr = ErrTransport

	err := gw.SetPosition(context.Background(), "1", DataPointPosition, 0)
	assert.True(t, errors.Is(err, ErrTransport), "error = %v", err)
}

func TestGateway_GetInfo(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["GET /devices/7/endpoints/7/data"] = `{"id": 7, "error": 0, "data": [{"name": "position", "value": 65}]}`
	gw := NewGateway(ft, GatewayOptions{})

	ep, err := gw.GetInfo(context.Background(), "7")
	require.NoError(t, err)

	assert.Equal(t, ID("7"), ep.ID)
	pos, ok := PositionOf(ep)
	require.True(t, ok)
	assert.Equal(t, cover.Position(65), pos)
}

func TestGateway_GetInfoMalformed(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["GET /devices/7/endpoints/7/data"] = `not json`
	gw := NewGateway(ft, GatewayOptions{})

	_, err := gw.GetInfo(context.Background(), "7")
	assert.True(t, errors.Is(err, ErrMalformedFrame), "error = %v", err)
}

func TestGateway_GetAllInfo(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["GET /devices/data"] = fleetJSON
	gw := NewGateway(ft, GatewayOptions{})

	devices, err := gw.GetAllInfo(context.Background())
	require.NoError(t, err)

	require.Len(t, devices, 4)
	assert.Equal(t, ID("1584296123"), devices[0].ID)
	assert.Equal(t, ID("1584296124"), devices[1].ID)
	assert.Len(t, devices[2].Endpoints, 2)
}

func TestGateway_CoverPositions(t *testing.T) {
	ft := newFakeTransport()
	ft.responses["GET /devices/data"] = fleetJSON
	gw := NewGateway(ft, GatewayOptions{})

	got, err := gw.CoverPositions(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []CoverPosition{
		{ID: "1584296123", Position: 30},
		{ID: "1584296124", Position: 80},
	}, got, "multi-endpoint devices and devices without position are skipped")
}

func TestGateway_SubscribeChangesFilter(t *testing.T) {
	body := []byte(`[{"id": 1, "endpoints": [{"id": 1, "error": 0, "data": [{"name": "position", "value": 42}]}]}]`)

	tests := []struct {
		name      string
		msg       *Message
		delivered bool
	}{
		{
			name:      "devices data put",
			msg:       &Message{Type: MessageRequest, Method: http.MethodPut, URI: "/devices/data", Status: 200, Body: body},
			delivered: true,
		},
		{
			name:      "device data put",
			msg:       &Message{Type: MessageRequest, Method: http.MethodPut, URI: "/device/data", Status: 200, Body: body},
			delivered: true,
		},
		{
			name: "wrong uri",
			msg:  &Message{Type: MessageRequest, Method: http.MethodPut, URI: "/devices/meta", Status: 200, Body: body},
		},
		{
			name: "wrong method",
			msg:  &Message{Type: MessageResponse, Method: http.MethodGet, URI: "/devices/data", Status: 200, Body: body},
		},
		{
			name: "unsolicited response without method",
			msg:  &Message{Type: MessageResponse, URI: "/devices/data", Status: 200, Body: body},
		},
		{
			name: "error status",
			msg:  &Message{Type: MessageResponse, Method: http.MethodPut, URI: "/devices/data", Status: 500, Body: body},
		},
		{
			name: "undecodable body",
			msg:  &Message{Type: MessageRequest, Method: http.MethodPut, URI: "/devices/data", Status: 200, Body: []byte("{")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft := newFakeTransport()
			gw := NewGateway(ft, GatewayOptions{})

			var events []ChangeEvent
			gw.SubscribeChanges(func(ev ChangeEvent) { events = append(events, ev) })

			ft.push(tt.msg)

			if !tt.delivered {
				assert.Empty(t, events)
				return
			}
			require.Len(t, events, 1)
			assert.Equal(t, http.MethodPut, events[0].Method)
			require.Len(t, events[0].Body, 1)
			pos, ok := PositionOf(events[0].Body[0].Endpoints[0])
			require.True(t, ok)
			assert.Equal(t, cover.Position(42), pos)
		})
	}
}

func TestGateway_FilteredCount(t *testing.T) {
	ft := newFakeTransport()
	gw := NewGateway(ft, GatewayOptions{})

	ft.push(&Message{Method: http.MethodGet, URI: "/ping", Status: 200})
	ft.push(&Message{Method: http.MethodPut, URI: "/areas/data", Status: 200})

	assert.Equal(t, uint64(2), gw.FilteredCount())
}
