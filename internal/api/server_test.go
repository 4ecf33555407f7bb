package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/tydom2mqtt/internal/bridge"
	"github.com/nerrad567/tydom2mqtt/internal/cover"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/config"
	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/logging"
	"github.com/nerrad567/tydom2mqtt/internal/metrics"
	"github.com/nerrad567/tydom2mqtt/internal/tydom"
)

type setCall struct {
	name cover.Name
	pos  cover.Position
}

// fakeCovers implements CoverService over an in-memory position map.
type fakeCovers struct {
	mu        sync.Mutex
	positions map[cover.Name]cover.Position
	calls     []setCall
	err       error
}

func newFakeCovers() *fakeCovers {
	return &fakeCovers{positions: map[cover.Name]cover.Position{"kitchen": 30, "living": 80}}
}

func (f *fakeCovers) SetPosition(_ context.Context, name cover.Name, pos cover.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.positions[name]; !ok {
		return fmt.Errorf("%w: name %q", cover.ErrUnknownDevice, name)
	}
	f.calls = append(f.calls, setCall{name: name, pos: pos})
	f.positions[name] = pos
	return nil
}

func (f *fakeCovers) CoverPosition(_ context.Context, name cover.Name) (cover.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	pos, ok := f.positions[name]
	if !ok {
		return 0, fmt.Errorf("%w: name %q", cover.ErrUnknownDevice, name)
	}
	return pos, nil
}

func (f *fakeCovers) AllPositions(_ context.Context) ([]bridge.CoverPosition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return []bridge.CoverPosition{
		{Name: "kitchen", Position: f.positions["kitchen"]},
		{Name: "living", Position: f.positions["living"]},
	}, nil
}

func (f *fakeCovers) Status() bridge.Status {
	return bridge.Status{
		State:        bridge.State{Position: bridge.PositionSynchronized, Command: bridge.CommandListenerActive},
		HubConnected: true,
		BusConnected: true,
		Covers:       2,
	}
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func testLogger() *logging.Logger {
	return logging.NewWithWriter(io.Discard, config.LoggingConfig{Level: "error", Format: "json"}, "test")
}

func newTestServer(t *testing.T, covers *fakeCovers, checks map[string]HealthChecker) (*Server, http.Handler) {
	t.Helper()
	s, err := New(Deps{
		Logger:  testLogger(),
		Covers:  covers,
		Metrics: metrics.New(),
		Checks:  checks,
		Version: "1.0.0-test",
	})
	require.NoError(t, err)
	return s, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{Covers: newFakeCovers()})
	assert.Error(t, err)
	_, err = New(Deps{Logger: testLogger()})
	assert.Error(t, err)
}

func TestSetCover(t *testing.T) {
	covers := newFakeCovers()
	_, h := newTestServer(t, covers, nil)

	rec := do(t, h, http.MethodPut, "/api/cover", `{"id": "kitchen", "position": 65}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, []setCall{{name: "kitchen", pos: 65}}, covers.calls)
}

func TestSetCover_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		serviceErr error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid json", body: `{`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeBadRequest},
		{name: "missing id", body: `{"position": 10}`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeValidation},
		{name: "missing position", body: `{"id": "kitchen"}`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeValidation},
		{name: "position too high", body: `{"id": "kitchen", "position": 101}`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeValidation},
		{name: "position negative", body: `{"id": "kitchen", "position": -1}`, wantStatus: http.StatusBadRequest, wantCode: ErrCodeValidation},
		{name: "unknown cover", body: `{"id": "garage", "position": 10}`, wantStatus: http.StatusNotFound, wantCode: ErrCodeNotFound},
		{
			name:       "hub failure",
			body:       `{"id": "kitchen", "position": 10}`,
			serviceErr: fmt.Errorf("setting position: %w", tydom.ErrTransport),
			wantStatus: http.StatusBadGateway,
			wantCode:   ErrCodeHub,
		},
		{
			name:       "hub not connected",
			body:       `{"id": "kitchen", "position": 10}`,
			serviceErr: tydom.ErrNotConnected,
			wantStatus: http.StatusServiceUnavailable,
			wantCode:   ErrCodeUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			covers := newFakeCovers()
			covers.err = tt.serviceErr
			_, h := newTestServer(t, covers, nil)

			rec := do(t, h, http.MethodPut, "/api/cover", tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeError(t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.Empty(t, covers.calls)
		})
	}
}

func TestGetCover(t *testing.T) {
	_, h := newTestServer(t, newFakeCovers(), nil)

	rec := do(t, h, http.MethodGet, "/api/cover/living", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"position": 80}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/cover/garage", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Code)
}

func TestGetCover_PositionUnavailable(t *testing.T) {
	covers := newFakeCovers()
	covers.err = fmt.Errorf("%w: cover kitchen", bridge.ErrPositionUnavailable)
	_, h := newTestServer(t, covers, nil)

	rec := do(t, h, http.MethodGet, "/api/cover/kitchen", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestListCovers(t *testing.T) {
	_, h := newTestServer(t, newFakeCovers(), nil)

	rec := do(t, h, http.MethodGet, "/api/covers", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"name": "kitchen", "position": 30}, {"name": "living", "position": 80}]`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		_, h := newTestServer(t, newFakeCovers(), map[string]HealthChecker{
			"hub":  checkFunc(func(context.Context) error { return nil }),
			"mqtt": checkFunc(func(context.Context) error { return nil }),
		})

		rec := do(t, h, http.MethodGet, "/api/health", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var resp HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "ok", resp.Status)
		assert.Equal(t, "1.0.0-test", resp.Version)
		assert.Equal(t, map[string]string{"hub": "ok", "mqtt": "ok"}, resp.Components)
		assert.Equal(t, 2, resp.Bridge.Covers)
	})

	t.Run("degraded", func(t *testing.T) {
		_, h := newTestServer(t, newFakeCovers(), map[string]HealthChecker{
			"hub": checkFunc(func(context.Context) error { return errors.New("hub: not connected") }),
		})

		rec := do(t, h, http.MethodGet, "/api/health", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
		assert.Contains(t, rec.Body.String(), `"position_path":"synchronized"`)
	})
}

func TestRouting(t *testing.T) {
	_, h := newTestServer(t, newFakeCovers(), nil)

	rec := do(t, h, http.MethodPost, "/api/cover", `{}`)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMiddleware_RequestID(t *testing.T) {
	_, h := newTestServer(t, newFakeCovers(), nil)

	rec := do(t, h, http.MethodGet, "/api/covers", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/api/covers", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

func TestMiddleware_CORS(t *testing.T) {
	s, err := New(Deps{
		Config: config.APIConfig{CORS: config.CORSConfig{AllowedOrigins: []string{"http://ha.local"}}},
		Logger: testLogger(),
		Covers: newFakeCovers(),
	})
	require.NoError(t, err)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/cover", nil)
	req.Header.Set("Origin", "http://ha.local")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://ha.local", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/covers", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestServer(t, newFakeCovers(), nil)

	do(t, h, http.MethodGet, "/api/cover/kitchen", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/cover/{name}"`)
}

func TestServer_StartClose(t *testing.T) {
	s, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger: testLogger(),
		Covers: newFakeCovers(),
	})
	require.NoError(t, err)

	assert.Error(t, s.HealthCheck(context.Background()))
	require.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.HealthCheck(context.Background()))

	resp, err := http.Get("http://" + s.Addr() + "/api/covers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Close())
}
