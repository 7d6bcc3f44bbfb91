package signaling

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/BioHazard786/Huddle/internal/dns"
	"github.com/BioHazard786/Huddle/internal/logging"
	"github.com/BioHazard786/Huddle/internal/version"
)

const (
	writeWait        = 10 * time.Second
	leaveWait        = 500 * time.Millisecond
	handshakeTimeout = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	maxMessageSize   = 64 * 1024
	defaultQueueSize = 256
)

var (
	ErrClosed         = errors.New("signaling client closed")
	ErrNotConnected   = errors.New("signaling client not connected")
	ErrQueueFull      = errors.New("signaling send queue full")
	ErrAlreadyStarted = errors.New("signaling client already connected")
)

// Option configures a Client.
type Option func(*Client)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = logging.Module(log, "signaling") }
}

// WithResolver sets the resolver used to dial the relay host.
func WithResolver(r *dns.Resolver) Option {
	return func(c *Client) { c.resolver = r }
}

// WithBackoff overrides the reconnect pacing.
func WithBackoff(initial, max time.Duration, factor float64) Option {
	return func(c *Client) { c.backoff = backoff{initial: initial, max: max, factor: factor} }
}

// WithQueueSize bounds the number of envelopes waiting for a connection.
func WithQueueSize(n int) Option {
	return func(c *Client) { c.queueSize = n }
}

// Client keeps one WebSocket open to the relay bus, reconnecting until
// closed. Every successful connection starts with a join envelope.
type Client struct {
	serverURL string
	log       zerolog.Logger
	resolver  *dns.Resolver
	backoff   backoff
	queueSize int

	outgoing chan Envelope
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  chan struct{}

	mu        sync.Mutex
	identity  Identity
	started   bool
	conn      *websocket.Conn
	connected chan struct{}
	handler   func(Envelope)
	retry     *Envelope

	// writeMu serializes writers; gorilla allows a single concurrent writer.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewClient creates an idle client for serverURL.
func NewClient(serverURL string, opts ...Option) *Client {
	c := &Client{
		serverURL: serverURL,
		log:       zerolog.Nop(),
		resolver:  dns.NewResolver(),
		backoff:   backoff{initial: DefaultInitialDelay, max: DefaultMaxDelay, factor: DefaultDelayFactor},
		queueSize: defaultQueueSize,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		connected: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.outgoing = make(chan Envelope, c.queueSize)
	return c
}

// OnMessage registers the handler for inbound envelopes. It runs on the read
// goroutine and must not block.
func (c *Client) OnMessage(fn func(Envelope)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Connect starts the connection loop in the background. It returns once the
// loop is running; use WaitConnected to block until the first join is sent.
// Cancelling ctx does not stop the loop, only Close does, so a Leave issued
// during shutdown still finds the socket open.
func (c *Client) Connect(ctx context.Context, id Identity) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid server URL %q: scheme must be ws or wss", c.serverURL)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true
	c.identity = id

	ctx, c.cancel = context.WithCancel(context.WithoutCancel(ctx))
	go c.run(ctx, u.String())
	return nil
}

// WaitConnected blocks until a connection is open and joined.
func (c *Client) WaitConnected(ctx context.Context) error {
	c.mu.Lock()
	ch := c.connected
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Send queues an envelope without blocking. Queued envelopes survive
// reconnects; a full queue drops the envelope.
func (c *Client) Send(env Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- env:
		return nil
	default:
		c.log.Warn().Str("type", env.Type).Msg("send queue full, dropping envelope")
		return ErrQueueFull
	}
}

// Leave writes a user-left envelope if a connection is open. It never waits
// for a connection and gives the write at most 500ms.
func (c *Client) Leave() error {
	c.mu.Lock()
	conn, id := c.conn, c.identity
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(leaveWait))
	if err := conn.WriteJSON(id.Leave()); err != nil {
		return fmt.Errorf("write user-left: %w", err)
	}
	return nil
}

// Close stops reconnecting and closes the socket.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		close(c.done)
		started := c.started
		cancel := c.cancel
		conn := c.conn
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(leaveWait))
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			c.writeMu.Unlock()
			_ = conn.Close()
		}
		if started {
			<-c.stopped
		}
	})
	return nil
}

func (c *Client) run(ctx context.Context, serverURL string) {
	defer close(c.stopped)

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
		NetDialContext:   c.resolver.DialContext,
	}
	header := http.Header{"User-Agent": []string{version.UserAgent()}}

	attempt := 0
	for {
		conn, _, err := dialer.DialContext(ctx, serverURL, header)
		if err == nil {
			attempt = 0
			c.serve(ctx, conn)
		} else if ctx.Err() == nil {
			c.log.Warn().Err(err).Int("attempt", attempt+1).Msg("signaling dial failed")
		}
		if ctx.Err() != nil {
			return
		}

		wait := c.backoff.delay(attempt)
		attempt++
		c.log.Debug().Dur("in", wait).Msg("reconnecting")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// serve runs one connection until it drops.
func (c *Client) serve(ctx context.Context, conn *websocket.Conn) {
	defer conn.Close()

	c.mu.Lock()
	id := c.identity
	c.mu.Unlock()

	if err := c.write(conn, id.Join()); err != nil {
		c.log.Warn().Err(err).Msg("write join failed")
		return
	}

	c.mu.Lock()
	c.conn = conn
	close(c.connected)
	retry := c.retry
	c.retry = nil
	c.mu.Unlock()
	c.log.Info().Str("room", id.Room).Int64("user", id.UserID).Msg("joined room")

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.connected = make(chan struct{})
		c.mu.Unlock()
	}()

	readDone := make(chan struct{})
	go c.readPump(conn, readDone)

	if retry != nil && !c.writeOrStash(conn, *retry) {
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.outgoing:
			if !c.writeOrStash(conn, env) {
				return
			}
		case <-ticker.C:
			c.writeMu.Lock()
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		case <-readDone:
			c.log.Info().Msg("signaling connection lost")
			return
		case <-ctx.Done():
			return
		}
	}
}

// writeOrStash keeps an envelope that failed to write for the next connection.
func (c *Client) writeOrStash(conn *websocket.Conn, env Envelope) bool {
	if err := c.write(conn, env); err != nil {
		c.log.Debug().Err(err).Str("type", env.Type).Msg("write failed, keeping envelope")
		c.mu.Lock()
		c.retry = &env
		c.mu.Unlock()
		return false
	}
	return true
}

func (c *Client) write(conn *websocket.Conn, env Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(env)
}

func (c *Client) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Err(err).Msg("read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		env, err := DecodeEnvelope(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("dropping frame")
			continue
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(env)
		}
	}
}
