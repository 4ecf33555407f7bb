package tydom

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"

	"github.com/nerrad567/tydom2mqtt/internal/infrastructure/config"
)

// Defaults applied when the configuration leaves a value unset.
const (
	defaultRequestTimeout     = 10 * time.Second
	defaultWriteTimeout       = 5 * time.Second
	defaultEventQueueSize     = 100
	defaultReconnectInitial   = time.Second
	defaultReconnectMax       = time.Minute
	defaultBreakerFailures    = 5
	defaultBreakerOpenTimeout = 30 * time.Second

	mediationHost = "mediation.tydom.com"
	clientPath    = "/mediation/client"
	httpsPort     = "443"
)

// Logger defines the logging interface used by the hub client and gateway.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Client holds the long-lived websocket session to the hub.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Pushes are delivered one at a time, in arrival order, on a dedicated goroutine.
//
// Auto-Reconnection:
//   - When the socket fails the client reconnects with exponential backoff
//     until Close is called. Requests in flight fail with ErrTransport.
type Client struct {
	cfg        config.HubConfig
	remote     bool
	httpClient *http.Client
	dialer     *websocket.Dialer

	connMu    sync.RWMutex
	conn      *websocket.Conn
	connected bool
	dialMu    sync.Mutex
	writeMu   sync.Mutex

	pendingMu   sync.Mutex
	pending     map[string]*pendingRequest
	nextTransac atomic.Uint64

	breaker *gobreaker.CircuitBreaker

	onMessage  func(*Message)
	callbackMu sync.RWMutex
	pushQueue  chan *Message

	ctx          context.Context
	cancel       context.CancelFunc
	startOnce    sync.Once
	closeOnce    sync.Once
	wg           sync.WaitGroup
	reconnecting atomic.Bool

	logger   Logger
	loggerMu sync.RWMutex

	requestsTx      atomic.Uint64
	responsesRx     atomic.Uint64
	pushesRx        atomic.Uint64
	pushesDropped   atomic.Uint64
	errorsTotal     atomic.Uint64
	reconnectsTotal atomic.Uint64
	lastActivity    atomic.Int64
}

type pendingRequest struct {
	method string
	uri    string
	ch     chan *Message
}

// Stats holds operational counters for the hub session.
type Stats struct {
	RequestsTx      uint64
	ResponsesRx     uint64
	PushesRx        uint64
	PushesDropped   uint64
	ErrorsTotal     uint64
	ReconnectsTotal uint64
	LastActivity    time.Time
	Connected       bool
	Reconnecting    bool
	BreakerState    string
}

// NewClient builds a hub client. No connection is made until Connect.
func NewClient(cfg config.HubConfig) *Client {
	applyDefaults(&cfg)

	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // local hubs use self-signed certificates
		MinVersion:         tls.VersionTLS12,
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:    cfg,
		remote: cfg.Remote || cfg.Host == mediationHost,
		httpClient: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		dialer: &websocket.Dialer{
			TLSClientConfig:  tlsConfig,
			HandshakeTimeout: cfg.RequestTimeout,
		},
		pending:   make(map[string]*pendingRequest),
		pushQueue: make(chan *Message, cfg.EventQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    noopLogger{},
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tydom-hub",
		MaxRequests: 1,
		Timeout:     cfg.Breaker.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(cfg.Breaker.Failures) //nolint:gosec // validated positive
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logWarn("hub circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

func applyDefaults(cfg *config.HubConfig) {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.EventQueueSize <= 0 {
		cfg.EventQueueSize = defaultEventQueueSize
	}
	if cfg.Reconnect.InitialInterval <= 0 {
		cfg.Reconnect.InitialInterval = defaultReconnectInitial
	}
	if cfg.Reconnect.MaxInterval <= 0 {
		cfg.Reconnect.MaxInterval = defaultReconnectMax
	}
	if cfg.Breaker.Failures <= 0 {
		cfg.Breaker.Failures = defaultBreakerFailures
	}
	if cfg.Breaker.OpenTimeout <= 0 {
		cfg.Breaker.OpenTimeout = defaultBreakerOpenTimeout
	}
}

// Connect establishes the session. It is a no-op when already connected.
// The receive, push and keep-alive goroutines are started on first success.
func (c *Client) Connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.IsConnected() {
		return nil
	}

	c.dialMu.Lock()
	defer c.dialMu.Unlock()
	if c.IsConnected() {
		return nil
	}

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.setConn(conn)

	c.startOnce.Do(func() {
		c.wg.Add(3)
		go c.receiveLoop()
		go c.pushWorker()
		go c.keepAliveLoop()
	})

	c.logInfo("connected to hub", "host", c.cfg.Host, "remote", c.remote)
	return nil
}

// requestURI is the websocket endpoint path, also used as the digest uri.
func (c *Client) requestURI() string {
	return clientPath + "?mac=" + url.QueryEscape(c.cfg.MAC) + "&appli=1"
}

func (c *Client) hostPort() string {
	if _, _, err := net.SplitHostPort(c.cfg.Host); err == nil {
		return c.cfg.Host
	}
	return net.JoinHostPort(c.cfg.Host, httpsPort)
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	auth, err := c.authorize(ctx)
	if err != nil {
		return nil, err
	}
	if auth != "" {
		header.Set("Authorization", auth)
	}

	conn, resp, err := c.dialer.DialContext(ctx, "wss://"+c.hostPort()+c.requestURI(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return conn, nil
}

// authorize performs the digest pre-flight. The hub answers an
// unauthenticated upgrade with 401 and a Digest challenge; the computed
// Authorization header is then sent with the real websocket handshake.
func (c *Client) authorize(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://"+c.hostPort()+c.requestURI(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Sec-WebSocket-Key", newNonce(16))
	req.Header.Set("Sec-WebSocket-Version", "13")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: auth challenge: %w", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	challenge := resp.Header.Get("WWW-Authenticate")
	if resp.StatusCode != http.StatusUnauthorized || challenge == "" {
		return "", nil
	}

	dc, err := parseChallenge(challenge)
	if err != nil {
		return "", err
	}
	return dc.authorization(c.cfg.MAC, c.cfg.Password, http.MethodGet, c.requestURI(), newNonce(8)), nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.connMu.Lock()
	c.conn = conn
	c.connected = true
	c.connMu.Unlock()
	c.lastActivity.Store(time.Now().Unix())
}

func (c *Client) currentConn() *websocket.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// Do sends one request and waits for the correlated response.
//
// Requests go through a circuit breaker: after repeated transport failures
// they fail fast with ErrTransport until the breaker half-opens again.
// A non-2xx status is reported as ErrRequestFailed along with the message.
func (c *Client) Do(ctx context.Context, method, uri string, body any) (*Message, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, uri, err)
		}
	}

	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, method, uri, payload)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}
		return nil, err
	}

	msg, _ := res.(*Message)
	if msg.Status < http.StatusOK || msg.Status >= http.StatusMultipleChoices {
		return msg, fmt.Errorf("%w: %s %s returned %d", ErrRequestFailed, method, uri, msg.Status)
	}
	return msg, nil
}

func (c *Client) roundTrip(ctx context.Context, method, uri string, payload []byte) (*Message, error) {
	id := transacIDString(c.nextTransac.Add(1))
	p := &pendingRequest{method: method, uri: uri, ch: make(chan *Message, 1)}

	c.pendingMu.Lock()
	c.pending[id] = p
	c.pendingMu.Unlock()
	defer c.removePending(id)

	if err := c.write(encodeRequest(method, uri, id, payload, c.remote)); err != nil {
		c.errorsTotal.Add(1)
		return nil, fmt.Errorf("%w: writing %s %s: %w", ErrTransport, method, uri, err)
	}
	c.requestsTx.Add(1)

	timer := time.NewTimer(c.cfg.RequestTimeout)
	defer timer.Stop()

	select {
	case msg, ok := <-p.ch:
		if !ok {
			return nil, fmt.Errorf("%w: connection lost during %s %s", ErrTransport, method, uri)
		}
		return msg, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
	case <-timer.C:
		return nil, fmt.Errorf("%w: no response to %s %s after %v", ErrTransport, method, uri, c.cfg.RequestTimeout)
	case <-c.ctx.Done():
		return nil, ErrClosed
	}
}

func (c *Client) write(frame []byte) error {
	conn := c.currentConn()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
	return conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *Client) takePending(id string) *pendingRequest {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	p, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	return p
}

func (c *Client) removePending(id string) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

// failPending wakes every waiting request with a closed channel.
func (c *Client) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, p := range c.pending {
		close(p.ch)
		delete(c.pending, id)
	}
}

// receiveLoop reads frames until Close, reconnecting on socket failure.
func (c *Client) receiveLoop() {
	defer c.wg.Done()

	for {
		if c.isClosed() {
			return
		}

		conn := c.currentConn()
		if conn == nil {
			if !c.reconnect() {
				return
			}
			continue
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if c.isClosed() {
				return
			}
			c.logError("hub read failed", "error", err)
			c.errorsTotal.Add(1)
			c.handleDisconnect(conn)
			if !c.reconnect() {
				return
			}
			continue
		}

		c.lastActivity.Store(time.Now().Unix())
		c.handleFrame(data)
	}
}

func (c *Client) handleFrame(data []byte) {
	msg, err := parseFrame(data)
	if err != nil {
		c.logWarn("dropping malformed hub frame", "error", err)
		c.errorsTotal.Add(1)
		return
	}

	if msg.Type == MessageResponse && msg.TransacID != "" {
		if p := c.takePending(msg.TransacID); p != nil {
			msg.Method = p.method
			if msg.URI == "" {
				msg.URI = p.uri
			}
			c.responsesRx.Add(1)
			p.ch <- msg
			return
		}
	}

	c.pushesRx.Add(1)
	c.enqueuePush(msg)
}

// enqueuePush hands a push to the single consumer. A full queue drops
// the push rather than stall the socket reader.
func (c *Client) enqueuePush(msg *Message) {
	c.callbackMu.RLock()
	hasCallback := c.onMessage != nil
	c.callbackMu.RUnlock()
	if !hasCallback {
		return
	}

	select {
	case c.pushQueue <- msg:
	default:
		c.pushesDropped.Add(1)
		c.errorsTotal.Add(1)
		c.logWarn("hub push queue full, dropping message", "uri", msg.URI)
	}
}

func (c *Client) pushWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			c.drainPushQueue()
			return
		case msg := <-c.pushQueue:
			c.deliver(msg)
		}
	}
}

func (c *Client) deliver(msg *Message) {
	c.callbackMu.RLock()
	callback := c.onMessage
	c.callbackMu.RUnlock()
	if callback == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logError("hub message callback panic", "panic", r)
		}
	}()
	callback(msg)
}

func (c *Client) drainPushQueue() {
	for {
		select {
		case <-c.pushQueue:
		default:
			return
		}
	}
}

// keepAliveLoop pings the hub so idle sessions are not dropped.
func (c *Client) keepAliveLoop() {
	defer c.wg.Done()

	if c.cfg.KeepAliveInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.KeepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if !c.IsConnected() {
				continue
			}
			ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
			if _, err := c.Do(ctx, http.MethodGet, "/ping", nil); err != nil {
				c.logDebug("hub keep-alive failed", "error", err)
			}
			cancel()
		}
	}
}

// handleDisconnect drops the given socket if it is still the current one.
func (c *Client) handleDisconnect(conn *websocket.Conn) {
	c.connMu.Lock()
	if c.conn == conn {
		c.conn.Close()
		c.conn = nil
		c.connected = false
	}
	c.connMu.Unlock()

	c.failPending()
	c.logInfo("hub connection lost, will attempt reconnection")
}

// reconnect re-establishes the session with exponential backoff.
// Returns false only when the client was closed meanwhile.
func (c *Client) reconnect() bool {
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.Reconnect.InitialInterval
	bo.MaxInterval = c.cfg.Reconnect.MaxInterval
	bo.MaxElapsedTime = 0

	attempt := 0
	err := backoff.RetryNotify(func() error {
		c.dialMu.Lock()
		defer c.dialMu.Unlock()
		if c.IsConnected() {
			return nil
		}
		conn, err := c.dial(c.ctx)
		if err != nil {
			return err
		}
		c.setConn(conn)
		return nil
	}, backoff.WithContext(bo, c.ctx), func(err error, next time.Duration) {
		attempt++
		c.errorsTotal.Add(1)
		c.logWarn("hub reconnect failed", "attempt", attempt, "retry_in", next.String(), "error", err)
	})
	if err != nil {
		return false
	}

	c.reconnectsTotal.Add(1)
	c.logInfo("hub reconnection successful", "total_reconnects", c.reconnectsTotal.Load())
	return true
}

func (c *Client) isClosed() bool {
	return c.ctx.Err() != nil
}

// Close ends the session and waits for the client goroutines.
// Safe to call multiple times.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.connected = false
		c.connMu.Unlock()

		c.failPending()
	})

	c.wg.Wait()
	c.logInfo("hub connection closed")
	return nil
}

// SetOnMessage sets the callback for unsolicited hub messages. It is
// invoked sequentially from one goroutine; panics are recovered and logged.
func (c *Client) SetOnMessage(callback func(*Message)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true while the websocket session is up.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	return Stats{
		RequestsTx:      c.requestsTx.Load(),
		ResponsesRx:     c.responsesRx.Load(),
		PushesRx:        c.pushesRx.Load(),
		PushesDropped:   c.pushesDropped.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
		ReconnectsTotal: c.reconnectsTotal.Load(),
		LastActivity:    time.Unix(c.lastActivity.Load(), 0),
		Connected:       c.IsConnected(),
		Reconnecting:    c.reconnecting.Load(),
		BreakerState:    c.breaker.State().String(),
	}
}

// HealthCheck reports whether the session is up.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

func (c *Client) logDebug(msg string, args ...any) { c.getLogger().Debug(msg, args...) }
func (c *Client) logInfo(msg string, args ...any)  { c.getLogger().Info(msg, args...) }
func (c *Client) logWarn(msg string, args ...any)  { c.getLogger().Warn(msg, args...) }
func (c *Client) logError(msg string, args ...any) { c.getLogger().Error(msg, args...) }
