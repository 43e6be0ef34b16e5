// Package notify maintains the console's realtime notification channel: a
// single logical, authenticated, auto-reconnecting WebSocket delivering push
// messages to registered listeners. Callers never observe the underlying
// socket.
package notify

import (
	"encoding/base64"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Status is the connection state of the channel.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Application close codes the server uses to reject a connection's
// credential. These are terminal: no reconnect is attempted until the
// caller supplies a new token and reconnects explicitly.
const (
	CloseUnauthorized = 4401
	CloseForbidden    = 4403
)

// credentialProtocolPrefix namespaces the connection-time credential within
// the subprotocol negotiation.
const credentialProtocolPrefix = "access_token."

const (
	defaultHeartbeatInterval     = 30 * time.Second
	defaultReconnectBaseInterval = 3 * time.Second
	defaultReconnectMaxInterval  = 30 * time.Second
	defaultMaxReconnectAttempts  = 10

	// closeWriteWait bounds the close-frame write during Disconnect.
	closeWriteWait = time.Second
)

// Envelope is one inbound notification frame: a type discriminator plus
// whatever additional fields the server sent. Raw carries the full frame
// for listeners that decode into their own types.
type Envelope struct {
	Type   string
	Fields map[string]any
	Raw    []byte
}

// MessageListener receives parsed inbound frames.
type MessageListener func(Envelope)

// StatusListener receives connection state transitions.
type StatusListener func(Status)

// Config holds the channel settings. Zero durations and counts take the
// defaults (30s heartbeat, 3s backoff base, 30s backoff cap, 10 attempts).
type Config struct {
	URL                   string
	Token                 string
	HeartbeatInterval     time.Duration
	ReconnectBaseInterval time.Duration
	ReconnectMaxInterval  time.Duration
	MaxReconnectAttempts  int
}

// Client is the notification channel client. One instance corresponds to
// one logical subscription for the lifetime of the authenticated session.
type Client struct {
	url                   string
	heartbeatInterval     time.Duration
	reconnectBaseInterval time.Duration
	reconnectMaxInterval  time.Duration
	maxReconnectAttempts  int

	instanceID string
	nowTime    func() time.Time
	jitter     func() time.Duration
	log        zerolog.Logger

	lock             sync.Mutex
	token            string
	conn             *websocket.Conn
	status           Status
	attempts         int
	generation       uint64
	intentionalClose bool
	reconnectTimer   *time.Timer
	heartbeatStop    chan struct{}

	messageListeners []MessageListener
	statusListeners  []StatusListener
}

// Option modifies a Client instance.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.log = logger
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithJitter sets the reconnect jitter source (primarily for testing).
func WithJitter(jitterFunc func() time.Duration) Option {
	return func(c *Client) {
		c.jitter = jitterFunc
	}
}

// New creates a notification client. It does not connect; call Connect.
func New(cfg Config, options ...Option) *Client {
	client := &Client{
		url:                   cfg.URL,
		token:                 cfg.Token,
		heartbeatInterval:     cfg.HeartbeatInterval,
		reconnectBaseInterval: cfg.ReconnectBaseInterval,
		reconnectMaxInterval:  cfg.ReconnectMaxInterval,
		maxReconnectAttempts:  cfg.MaxReconnectAttempts,
		instanceID:            uuid.New().String(),
		status:                StatusDisconnected,
		nowTime:               time.Now,
		log:                   log.Logger,
	}
	if client.heartbeatInterval <= 0 {
		client.heartbeatInterval = defaultHeartbeatInterval
	}
	if client.reconnectBaseInterval <= 0 {
		client.reconnectBaseInterval = defaultReconnectBaseInterval
	}
	if client.reconnectMaxInterval <= 0 {
		client.reconnectMaxInterval = defaultReconnectMaxInterval
	}
	if client.maxReconnectAttempts <= 0 {
		client.maxReconnectAttempts = defaultMaxReconnectAttempts
	}
	client.jitter = func() time.Duration {
		return time.Duration(rand.Intn(1000)) * time.Millisecond
	}
	for _, opt := range options {
		opt(client)
	}
	return client
}

// InstanceID identifies this subscription across reconnects in logs.
func (c *Client) InstanceID() string {
	return c.instanceID
}

// Status returns the current connection state.
func (c *Client) Status() Status {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.status
}

// OnMessage registers a listener for inbound notifications.
func (c *Client) OnMessage(fn MessageListener) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.messageListeners = append(c.messageListeners, fn)
}

// OnStatusChange registers a listener for state transitions.
func (c *Client) OnStatusChange(fn StatusListener) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.statusListeners = append(c.statusListeners, fn)
}

// Connect opens the channel. No-op when already connected or connecting.
// The dial happens asynchronously; the outcome arrives through status
// listeners.
func (c *Client) Connect() {
	c.lock.Lock()
	if c.status == StatusConnected || c.status == StatusConnecting {
		c.lock.Unlock()
		return
	}
	c.intentionalClose = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	// Each connect cycle gets a generation; a dial that completes after its
	// generation has been superseded must discard its connection instead of
	// installing a credential that is no longer current.
	c.generation++
	gen := c.generation
	changed := c.transitionLocked(StatusConnecting)
	c.lock.Unlock()

	c.notifyStatus(changed, StatusConnecting)
	go c.dial(gen)
}

// Disconnect closes the channel with a normal-closure code, stops the
// heartbeat, and cancels any pending reconnect. The channel stays down
// until Connect is invoked again explicitly.
func (c *Client) Disconnect() {
	c.lock.Lock()
	c.intentionalClose = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	c.stopHeartbeatLocked()
	conn := c.conn
	c.conn = nil
	changed := c.transitionLocked(StatusDisconnected)
	c.lock.Unlock()

	if conn != nil {
		deadline := time.Now().Add(closeWriteWait)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = conn.Close()
	}
	c.notifyStatus(changed, StatusDisconnected)
}

// Send serializes the message and transmits it. It returns false without
// side effects when the channel is not connected, and false when
// serialization or the write fails. It never panics or returns an error.
func (c *Client) Send(message any) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.status != StatusConnected || c.conn == nil {
		return false
	}
	data, err := json.Marshal(message)
	if err != nil {
		c.log.Warn().Err(err).Msg("notify: failed to serialize outbound message")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.log.Warn().Err(err).Msg("notify: write failed")
		return false
	}
	return true
}

// UpdateToken replaces the connection credential. A live channel cannot be
// re-authenticated, so an active connection is cycled to pick up the new
// token.
func (c *Client) UpdateToken(newToken string) {
	c.lock.Lock()
	c.token = newToken
	active := c.status == StatusConnected || c.status == StatusConnecting
	c.lock.Unlock()

	if active {
		c.Disconnect()
		c.Connect()
	}
}

// credentialProtocol encodes the bearer token into the subprotocol
// negotiation value. The token rides a handshake header rather than the
// URL, keeping it out of access logs, history, and referrers.
func credentialProtocol(token string) string {
	return credentialProtocolPrefix + base64.RawURLEncoding.EncodeToString([]byte(token))
}

func (c *Client) dial(gen uint64) {
	c.lock.Lock()
	token := c.token
	c.lock.Unlock()

	dialer := websocket.Dialer{
		Subprotocols: []string{credentialProtocol(token)},
	}
	conn, resp, err := dialer.Dial(c.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		c.log.Warn().Err(err).Str("instance", c.instanceID).Msg("notify: dial failed")
		c.handleTransportError(gen)
		return
	}

	c.lock.Lock()
	if c.intentionalClose || gen != c.generation {
		c.lock.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.attempts = 0
	stop := make(chan struct{})
	c.heartbeatStop = stop
	changed := c.transitionLocked(StatusConnected)
	c.lock.Unlock()

	c.log.Info().Str("instance", c.instanceID).Msg("notify: connected")
	c.notifyStatus(changed, StatusConnected)
	go c.heartbeatLoop(stop)
	go c.readPump(conn)
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleReadError(conn, err)
			return
		}
		c.dispatchMessage(data)
	}
}

// dispatchMessage parses one inbound frame and fans it out. A malformed
// frame is logged and dropped; it must not kill the channel.
func (c *Client) dispatchMessage(data []byte) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		c.log.Warn().Err(err).Msg("notify: dropping malformed frame")
		return
	}
	messageType, _ := fields["type"].(string)
	envelope := Envelope{Type: messageType, Fields: fields, Raw: data}

	c.lock.Lock()
	listeners := append([]MessageListener{}, c.messageListeners...)
	c.lock.Unlock()
	for _, fn := range listeners {
		fn(envelope)
	}
}

// handleReadError classifies the end of a connection and decides whether a
// reconnect is scheduled.
func (c *Client) handleReadError(conn *websocket.Conn, err error) {
	c.lock.Lock()
	if c.conn != conn {
		// A newer connection superseded this one, or Disconnect already
		// tore it down and set the final state.
		c.lock.Unlock()
		return
	}
	c.conn = nil
	c.stopHeartbeatLocked()

	if c.intentionalClose {
		changed := c.transitionLocked(StatusDisconnected)
		c.lock.Unlock()
		c.notifyStatus(changed, StatusDisconnected)
		return
	}

	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		if closeErr.Code == CloseUnauthorized || closeErr.Code == CloseForbidden {
			// The server rejected the credential. Terminal: the caller must
			// UpdateToken and Connect again.
			changed := c.transitionLocked(StatusDisconnected)
			c.lock.Unlock()
			c.log.Warn().Int("code", closeErr.Code).Str("instance", c.instanceID).
				Msg("notify: connection rejected by server")
			c.notifyStatus(changed, StatusDisconnected)
			return
		}
		changed := c.transitionLocked(StatusDisconnected)
		scheduled := c.scheduleReconnectLocked()
		c.lock.Unlock()
		c.notifyStatus(changed, StatusDisconnected)
		if !scheduled {
			c.log.Warn().Str("instance", c.instanceID).Msg("notify: reconnect attempts exhausted")
		}
		return
	}
	gen := c.generation
	c.lock.Unlock()
	c.log.Warn().Err(err).Str("instance", c.instanceID).Msg("notify: transport error")
	c.handleTransportError(gen)
}

// handleTransportError covers dial failures and non-close read errors.
// Error and close are independent signals for one failure, so the retry
// scheduling must stay idempotent: at most one pending timer exists.
func (c *Client) handleTransportError(gen uint64) {
	c.lock.Lock()
	if gen != c.generation {
		// A newer connect cycle owns the state now.
		c.lock.Unlock()
		return
	}
	if c.intentionalClose {
		changed := c.transitionLocked(StatusDisconnected)
		c.lock.Unlock()
		c.notifyStatus(changed, StatusDisconnected)
		return
	}
	changedToError := c.transitionLocked(StatusError)
	scheduled := c.scheduleReconnectLocked()
	c.lock.Unlock()

	c.notifyStatus(changedToError, StatusError)
	if !scheduled {
		c.lock.Lock()
		if gen != c.generation {
			c.lock.Unlock()
			return
		}
		changed := c.transitionLocked(StatusDisconnected)
		c.lock.Unlock()
		c.log.Warn().Str("instance", c.instanceID).Msg("notify: reconnect attempts exhausted")
		c.notifyStatus(changed, StatusDisconnected)
	}
}

// scheduleReconnectLocked arms the single reconnect timer. It reports false
// only when the attempt budget is exhausted, which is terminal until a
// manual Connect.
func (c *Client) scheduleReconnectLocked() bool {
	if c.intentionalClose || c.reconnectTimer != nil {
		return true
	}
	if c.attempts >= c.maxReconnectAttempts {
		return false
	}
	delay := c.reconnectDelay(c.attempts)
	c.attempts++
	c.reconnectTimer = time.AfterFunc(delay, c.retry)
	return true
}

// reconnectDelay is exponential backoff with jitter, capped:
// min(base * 2^attempt + jitter, cap).
func (c *Client) reconnectDelay(attempt int) time.Duration {
	if attempt > 20 {
		return c.reconnectMaxInterval
	}
	delay := c.reconnectBaseInterval<<uint(attempt) + c.jitter()
	if delay > c.reconnectMaxInterval {
		delay = c.reconnectMaxInterval
	}
	return delay
}

func (c *Client) retry() {
	c.lock.Lock()
	c.reconnectTimer = nil
	if c.intentionalClose || c.conn != nil || c.status == StatusConnecting {
		c.lock.Unlock()
		return
	}
	gen := c.generation
	changed := c.transitionLocked(StatusConnecting)
	c.lock.Unlock()

	c.notifyStatus(changed, StatusConnecting)
	c.dial(gen)
}

func (c *Client) heartbeatLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Send(pingFrame{Type: "ping", Timestamp: c.nowTime().UnixMilli()})
		}
	}
}

// pingFrame keeps intermediary proxies and load balancers from idling the
// channel out. No pong is awaited.
type pingFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func (c *Client) stopHeartbeatLocked() {
	if c.heartbeatStop != nil {
		close(c.heartbeatStop)
		c.heartbeatStop = nil
	}
}

// transitionLocked moves to the given status, reporting whether it changed.
func (c *Client) transitionLocked(status Status) bool {
	if c.status == status {
		return false
	}
	c.status = status
	return true
}

func (c *Client) notifyStatus(changed bool, status Status) {
	if !changed {
		return
	}
	c.lock.Lock()
	listeners := append([]StatusListener{}, c.statusListeners...)
	c.lock.Unlock()
	for _, fn := range listeners {
		fn(status)
	}
}
