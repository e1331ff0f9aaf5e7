// Package link maintains the TCP connection to the rig and transmits motion commands.
package link

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gwillem/armlink/pkg/command"
)

// ErrNotConnected is returned by Send when there is no open connection.
var ErrNotConnected = errors.New("link: not connected")

// Source supplies the command that should currently be in effect.
type Source interface {
	Load() (command.Command, bool)
}

// DialFunc opens a connection. net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Config holds transport settings.
type Config struct {
	Addr            string
	DialTimeout     time.Duration
	SendInterval    time.Duration
	WriteTimeout    time.Duration
	AckTimeout      time.Duration // 0 disables reading acknowledgements
	MaxSendFailures int           // consecutive write timeouts tolerated before dropping the link
	Retry           Policy
	ConnectOnStart  bool
	Dial            DialFunc // defaults to net.Dialer
}

// DefaultConfig returns the transport defaults for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:            addr,
		DialTimeout:     time.Second,
		SendInterval:    50 * time.Millisecond,
		WriteTimeout:    200 * time.Millisecond,
		AckTimeout:      20 * time.Millisecond,
		MaxSendFailures: 3,
		Retry:           PolicyBounded(),
		ConnectOnStart:  true,
	}
}

type request int

const (
	reqConnect request = iota
	reqDisconnect
)

// Client sends the pending command whenever it differs from the last one written.
// Only the goroutine running Run touches the socket.
type Client struct {
	cfg    Config
	codec  *command.Codec
	source Source
	logger *slog.Logger

	mu       sync.RWMutex
	state    State
	lastSent command.Command
	hasSent  bool
	session  string
	sent     uint64

	conn     net.Conn
	reader   *bufio.Reader
	partial  string
	failures int

	manualOff bool      // operator disconnected; no automatic reconnects until Connect
	retryAt   time.Time // earliest automatic reconnect after a lost link

	requests chan request
	stateCh  chan State
}

// New creates a transport client reading pending commands from source.
func New(cfg Config, codec *command.Codec, source Source, logger *slog.Logger) *Client {
	if cfg.Dial == nil {
		d := &net.Dialer{}
		cfg.Dial = d.DialContext
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 50 * time.Millisecond
	}
	if cfg.MaxSendFailures <= 0 {
		cfg.MaxSendFailures = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:      cfg,
		codec:    codec,
		source:   source,
		logger:   logger,
		requests: make(chan request, 4),
		stateCh:  make(chan State, 1),
	}
}

// Addr returns the rig address.
func (c *Client) Addr() string {
	return c.cfg.Addr
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// States returns a channel that receives state changes. Only the latest is kept.
func (c *Client) States() <-chan State {
	return c.stateCh
}

// LastSent returns the last command written to the socket since the link came up.
func (c *Client) LastSent() (command.Command, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSent, c.hasSent
}

// Session returns the id of the current connection, or "" when disconnected.
func (c *Client) Session() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Sent returns the number of lines written over the client's lifetime.
func (c *Client) Sent() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sent
}

// Connect asks the client to connect. It never blocks.
func (c *Client) Connect() {
	c.request(reqConnect)
}

// Disconnect asks the client to close the link. It never blocks.
func (c *Client) Disconnect() {
	c.request(reqDisconnect)
}

func (c *Client) request(r request) {
	select {
	case c.requests <- r:
	default:
	}
}

// Run drives the connection until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	defer c.drop("shutdown")

	if c.cfg.ConnectOnStart || c.cfg.Retry.Auto {
		c.connect(ctx)
	}

	ticker := time.NewTicker(c.cfg.SendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case r := <-c.requests:
			switch r {
			case reqConnect:
				c.manualOff = false
				if c.conn == nil {
					c.connect(ctx)
				}
			case reqDisconnect:
				c.manualOff = true
				if c.conn != nil {
					c.logger.Info("disconnecting", "session", c.Session())
				}
				c.drop("operator request")
			}
		case <-ticker.C:
			if c.conn == nil {
				if c.cfg.Retry.Auto && !c.manualOff && !time.Now().Before(c.retryAt) {
					if !c.connect(ctx) {
						c.retryAt = time.Now().Add(c.cfg.Retry.Delay)
					}
				}
				continue
			}
			c.tick()
			if c.conn == nil {
				c.retryAt = time.Now().Add(c.cfg.Retry.Delay)
			}
		}
	}
}

// connect dials according to the retry policy. It returns once connected, out of attempts,
// cancelled by ctx, or aborted by a Disconnect request.
func (c *Client) connect(ctx context.Context) bool {
	c.setState(Connecting)
	c.logger.Info("connecting", "addr", c.cfg.Addr, "policy", c.cfg.Retry.Name)

	for attempt := 1; ; attempt++ {
		conn, err := c.dial(ctx)
		if err == nil {
			c.up(conn)
			return true
		}
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return false
		}
		c.logger.Warn("connect failed", "attempt", attempt, "err", err)
		if !c.cfg.Retry.more(attempt) {
			break
		}

		timer := time.NewTimer(c.cfg.Retry.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(Disconnected)
			return false
		case r := <-c.requests:
			timer.Stop()
			if r == reqDisconnect {
				c.manualOff = true
				c.logger.Info("connect cancelled")
				c.setState(Disconnected)
				return false
			}
		case <-timer.C:
		}
	}

	c.logger.Error("giving up connecting", "addr", c.cfg.Addr)
	c.setState(Disconnected)
	return false
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dctx := ctx
	if c.cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, c.cfg.DialTimeout)
		defer cancel()
	}
	conn, err := c.cfg.Dial(dctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.Addr, err)
	}
	return conn, nil
}

func (c *Client) up(conn net.Conn) {
	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.partial = ""
	c.failures = 0

	id := uuid.NewString()
	c.mu.Lock()
	c.session = id
	c.lastSent, c.hasSent = command.Command{}, false
	c.mu.Unlock()

	c.setState(Connected)
	c.logger.Info("connected", "addr", c.cfg.Addr, "session", id)
}

// drop closes the socket and forgets what was sent, so the current intent goes out again
// after a reconnect.
func (c *Client) drop(reason string) {
	if c.conn == nil {
		if c.State() != Disconnected {
			c.setState(Disconnected)
		}
		return
	}

	session := c.Session()
	if err := c.conn.Close(); err != nil {
		c.logger.Debug("close", "err", err)
	}
	c.conn = nil
	c.reader = nil
	c.partial = ""
	c.failures = 0

	c.mu.Lock()
	c.session = ""
	c.lastSent, c.hasSent = command.Command{}, false
	c.mu.Unlock()

	c.setState(Disconnected)
	c.logger.Warn("link closed", "reason", reason, "session", session)
}

// tick sends the pending command if it changed since the last successful write.
func (c *Client) tick() {
	cmd, ok := c.source.Load()
	if !ok || !cmd.Sendable() {
		return
	}
	if last, sent := c.LastSent(); sent && last == cmd {
		return
	}
	if err := c.Send(cmd); err != nil {
		c.logger.Debug("send", "cmd", cmd.String(), "err", err)
	}
}

// Send writes one command immediately. It must only be called from the goroutine running
// Run, or when Run is not running.
func (c *Client) Send(cmd command.Command) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	line, ok := c.codec.Encode(cmd)
	if !ok {
		return fmt.Errorf("encode %s: not sendable", cmd)
	}

	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	n, err := io.WriteString(c.conn, line)
	if err != nil {
		c.failures++
		if n == 0 && isTimeout(err) && c.failures < c.cfg.MaxSendFailures {
			c.logger.Warn("send timed out", "cmd", cmd.String(), "failures", c.failures)
			return fmt.Errorf("send %q: %w", strings.TrimSpace(line), err)
		}
		c.drop(fmt.Sprintf("send failed: %v", err))
		return fmt.Errorf("send %q: %w", strings.TrimSpace(line), err)
	}
	c.failures = 0

	c.mu.Lock()
	c.lastSent, c.hasSent = cmd, true
	c.sent++
	c.mu.Unlock()
	c.logger.Debug("sent", "line", strings.TrimSpace(line), "session", c.Session())

	if c.cfg.AckTimeout > 0 {
		c.readAck()
	}
	return nil
}

// readAck reads at most one reply line. A timeout is normal; any partial line is kept for
// the next read.
func (c *Client) readAck() {
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.AckTimeout))
	chunk, err := c.reader.ReadString('\n')
	if err != nil {
		c.partial += chunk
		switch {
		case isTimeout(err):
		case errors.Is(err, io.EOF):
			c.drop("peer closed connection")
		default:
			c.drop(fmt.Sprintf("read failed: %v", err))
		}
		return
	}

	reply := strings.TrimSpace(c.partial + chunk)
	c.partial = ""
	if reply == "" {
		return
	}
	if strings.HasPrefix(reply, "ERR") {
		c.logger.Warn("rig rejected command", "reply", reply)
		return
	}
	c.logger.Debug("ack", "reply", reply)
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()

	select {
	case c.stateCh <- s:
	default:
		// Drop old state if channel full, replace with new
		select {
		case <-c.stateCh:
		default:
		}
		c.stateCh <- s
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
