// Package fchat is a Go client for the F-Chat protocol. It authenticates
// over HTTP (ticket issuance), speaks the line-oriented command protocol
// over a persistent WebSocket, keeps the channel/character name registry
// consistent across reconnects, and fans incoming events out to
// subscribers.
package fchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"

	"github.com/feathrs/fchat-go/roster"
	"github.com/feathrs/fchat-go/wire"
)

// State is the connection lifecycle state. Transitions are driven solely
// by the connection manager; every transition publishes exactly one
// ConnectionStateChanged event.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	}
	return "invalid"
}

// ErrNotConnected is returned by send operations while the session is not
// in the Connected state.
var ErrNotConnected = errors.New("fchat: not connected")

// Config holds connection parameters. Zero fields take defaults.
type Config struct {
	ChatURL   string // WebSocket endpoint
	TicketURL string // HTTP ticket endpoint
	APIBase   string // base URL for the ticket-authenticated JSON endpoints

	ClientName    string // reported in the identify handshake
	ClientVersion string

	HTTPTimeout      time.Duration // ticket/API request timeout
	HandshakeTimeout time.Duration // identify round-trip deadline
	PingInterval     time.Duration // idle interval between keepalive pings
	PongGrace        time.Duration // extra silence tolerated before reconnect
	BackoffInitial   time.Duration // first reconnect delay
	BackoffMax       time.Duration // reconnect delay cap
	SubscriberBuffer int           // per-subscription event buffer bound
}

// DefaultConfig returns the production endpoints and timing defaults.
func DefaultConfig() Config {
	return Config{
		ChatURL:          "wss://chat.f-list.net/chat2",
		TicketURL:        "https://www.f-list.net/json/getApiTicket.php",
		APIBase:          "https://www.f-list.net/json/api",
		ClientName:       "fchat-go",
		ClientVersion:    "0.1.0",
		HTTPTimeout:      30 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PongGrace:        60 * time.Second,
		BackoffInitial:   2 * time.Second,
		BackoffMax:       60 * time.Second,
		SubscriberBuffer: 128,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ChatURL == "" {
		c.ChatURL = def.ChatURL
	}
	if c.TicketURL == "" {
		c.TicketURL = def.TicketURL
	}
	if c.APIBase == "" {
		c.APIBase = def.APIBase
	}
	if c.ClientName == "" {
		c.ClientName = def.ClientName
	}
	if c.ClientVersion == "" {
		c.ClientVersion = def.ClientVersion
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = def.HTTPTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.PingInterval == 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PongGrace == 0 {
		c.PongGrace = def.PongGrace
	}
	if c.BackoffInitial == 0 {
		c.BackoffInitial = def.BackoffInitial
	}
	if c.BackoffMax == 0 {
		c.BackoffMax = def.BackoffMax
	}
	if c.SubscriberBuffer == 0 {
		c.SubscriberBuffer = def.SubscriberBuffer
	}
	return c
}

// ServerVariables are the limits the server announces via VAR after the
// identify handshake.
type ServerVariables struct {
	ChatMax        int
	PrivMax        int
	AdMax          int
	ChatCooldown   float64
	AdCooldown     float64
	StatusCooldown float64
}

type dialFunc func(ctx context.Context, endpoint string) (net.Conn, error)

func wsDial(ctx context.Context, endpoint string) (net.Conn, error) {
	conn, _, _, err := ws.Dial(ctx, endpoint)
	return conn, err
}

// Client is the protocol session engine: it owns the WebSocket connection
// lifecycle, routes inbound frames, maintains the name registry, and
// publishes events to subscribers.
type Client struct {
	cfg       Config
	account   string
	password  string
	character string

	tickets *TicketClient
	reg     *roster.Registry
	disp    *dispatcher
	dial    dialFunc

	mu    sync.Mutex // guards conn, state, gen
	conn  net.Conn
	state State
	gen   uint64

	ticketMu sync.Mutex
	ticket   Ticket

	varsMu sync.Mutex
	vars   ServerVariables

	joinedMu sync.Mutex
	joined   map[string]bool // channels the own character is in

	sendCh    chan []byte
	done      chan struct{}
	closeOnce sync.Once

	lastRecv atomic.Int64 // unix nanos of last inbound frame
	lastErr  atomic.Int32 // last ERR number, for close classification
}

// Connect acquires a ticket, establishes the WebSocket session, and starts
// the read/write/keepalive loops. Authentication failures are returned
// synchronously as *AuthError.
func Connect(ctx context.Context, cfg Config, account, password, character string) (*Client, error) {
	c := newClient(cfg, account, password, character)
	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(cfg Config, account, password, character string) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:       cfg,
		account:   account,
		password:  password,
		character: character,
		tickets:   NewTicketClient(cfg.TicketURL, cfg.HTTPTimeout),
		reg:       roster.New(),
		disp:      newDispatcher(cfg.SubscriberBuffer),
		dial:      wsDial,
		joined:    make(map[string]bool),
		sendCh:    make(chan []byte, 64),
		done:      make(chan struct{}),
	}
}

func (c *Client) connect(ctx context.Context) error {
	if c.character == "" {
		return errors.New("fchat: character required")
	}
	if err := c.ensureTicket(ctx, true); err != nil {
		return err
	}
	if err := c.establish(ctx); err != nil {
		c.setState(StateDisconnected)
		return err
	}
	go c.writeLoop()
	go c.keepaliveLoop()
	return nil
}

// Close shuts the session down. Terminal: pending and future sends fail
// with ErrNotConnected and all subscription channels are closed.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.setState(StateDisconnected)
		c.disp.close()
	})
	return nil
}

// Subscribe registers a new event subscription. Every subscriber receives
// every event independently.
func (c *Client) Subscribe() *Subscription { return c.disp.subscribe() }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Character returns the character this session is identified as.
func (c *Client) Character() string { return c.character }

// Variables returns a snapshot of the server-announced limits.
func (c *Client) Variables() ServerVariables {
	c.varsMu.Lock()
	defer c.varsMu.Unlock()
	return c.vars
}

// ResolveName maps an identifier to its current display name.
func (c *Client) ResolveName(ns roster.Namespace, id string) (string, bool) {
	return c.reg.Name(ns, id)
}

// ResolveIdentifier maps a display name to its identifier.
func (c *Client) ResolveIdentifier(ns roster.Namespace, name string) (string, bool) {
	return c.reg.Identifier(ns, name)
}

// JoinedChannels returns the channels the own character is currently in.
func (c *Client) JoinedChannels() []string {
	c.joinedMu.Lock()
	defer c.joinedMu.Unlock()
	out := make([]string, 0, len(c.joined))
	for ch := range c.joined {
		out = append(out, ch)
	}
	return out
}

// Send encodes and queues one command. It fails with ErrNotConnected
// unless the session is in the Connected state; writes are serialised
// behind a single writer so frames never interleave.
func (c *Client) Send(code wire.Code, payload any) error {
	data, err := wire.Encode(code, payload)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}
	select {
	case c.sendCh <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

// setState publishes exactly one lifecycle event per transition.
func (c *Client) setState(s State) {
	c.mu.Lock()
	old := c.state
	if old == s {
		c.mu.Unlock()
		return
	}
	c.state = s
	c.mu.Unlock()
	c.disp.publish(ConnectionStateChanged{Old: old, New: s})
}

// ensureTicket acquires a fresh ticket when the held one is expired (or
// unconditionally when force is set) and seeds the character registry from
// the account's character list.
func (c *Client) ensureTicket(ctx context.Context, force bool) error {
	c.ticketMu.Lock()
	defer c.ticketMu.Unlock()
	if !force && !c.ticket.Expired() {
		return nil
	}
	t, characters, err := c.tickets.Acquire(ctx, c.account, c.password)
	if err != nil {
		return err
	}
	c.ticket = t
	for name, id := range characters {
		c.upsertName(roster.Characters, id, name)
	}
	return nil
}

func (c *Client) invalidateTicket() {
	c.ticketMu.Lock()
	c.ticket = Ticket{}
	c.ticketMu.Unlock()
}

// upsertName updates the registry and surfaces renames as events.
func (c *Client) upsertName(ns roster.Namespace, id, name string) {
	prev, renamed := c.reg.Upsert(ns, id, name)
	if renamed {
		c.disp.publish(IdentifierRenamed{Namespace: ns, ID: id, OldName: prev, NewName: name})
	}
}

// establish dials the chat endpoint and performs the identify handshake.
// On success it commits the connection and starts a read loop; on failure
// the caller decides the resulting state.
func (c *Client) establish(ctx context.Context) error {
	c.setState(StateConnecting)
	conn, err := c.dial(ctx, c.cfg.ChatURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.ChatURL, err)
	}
	c.setState(StateAuthenticating)

	c.ticketMu.Lock()
	ticket := c.ticket
	c.ticketMu.Unlock()

	idn, err := wire.Encode(wire.CmdIdentify, wire.IdentifyPayload{
		Method:        "ticket",
		Account:       c.account,
		Ticket:        ticket.Value,
		Character:     c.character,
		ClientName:    c.cfg.ClientName,
		ClientVersion: c.cfg.ClientVersion,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := wsutil.WriteClientText(conn, idn); err != nil {
		conn.Close()
		return fmt.Errorf("send identify: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	data, err := wsutil.ReadServerText(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("read identify ack: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	cmd, err := wire.Decode(data)
	if err != nil {
		conn.Close()
		return fmt.Errorf("decode identify ack: %w", err)
	}
	switch cmd.Code {
	case wire.CmdIdentify:
		// accepted
	case wire.CmdError:
		var p wire.ErrorPayload
		json.Unmarshal(cmd.Payload, &p)
		conn.Close()
		code, _ := wire.ErrorCodeFromInt(p.Number)
		c.disp.publish(ProtocolError{Code: code, Raw: p.Number, Message: p.Message})
		kind := AuthInvalidCredentials
		if code.Throttle() || code == wire.ErrorServerFull {
			kind = AuthRateLimited
		}
		return &AuthError{Kind: kind, Message: p.Message}
	default:
		conn.Close()
		return fmt.Errorf("unexpected %s during identify", cmd.Code)
	}

	c.mu.Lock()
	select {
	case <-c.done:
		c.mu.Unlock()
		conn.Close()
		return ErrNotConnected
	default:
	}
	c.conn = conn
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.lastRecv.Store(time.Now().UnixNano())
	c.lastErr.Store(int32(wire.ErrorSuccess))
	c.setState(StateConnected)
	slog.Info("identified", "character", c.character, "endpoint", c.cfg.ChatURL)

	go c.readLoop(conn, gen)
	return nil
}

// readLoop is the sole reader of the connection, the sole mutator of the
// registry, and the sole producer of frame-derived events, which keeps
// event order identical to wire order.
func (c *Client) readLoop(conn net.Conn, gen uint64) {
	for {
		data, err := wsutil.ReadServerText(conn)
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.mu.Lock()
			stale := gen != c.gen
			c.mu.Unlock()
			if stale {
				return
			}
			conn.Close()
			if last := wire.ErrorCode(c.lastErr.Load()); last.Fatal() {
				slog.Warn("server closed session after fatal error", "code", last)
				c.setState(StateDisconnected)
				return
			}
			slog.Warn("read error, reconnecting", "error", err)
			c.reconnect()
			return
		}
		c.lastRecv.Store(time.Now().UnixNano())
		c.handleFrame(data)
	}
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.mu.Lock()
			conn := c.conn
			c.mu.Unlock()
			if conn == nil {
				continue
			}
			if err := wsutil.WriteClientText(conn, data); err != nil {
				slog.Warn("write error", "error", err)
				conn.Close() // read loop observes the close and reconnects
			}
		case <-c.done:
			return
		}
	}
}

// keepaliveLoop pings on idle and forces a reconnect when the server stays
// silent past the grace window. The protocol offers no reliable half-open
// detection otherwise.
func (c *Client) keepaliveLoop() {
	interval := c.cfg.PingInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if c.State() != StateConnected {
				continue
			}
			idle := time.Since(time.Unix(0, c.lastRecv.Load()))
			if idle > interval+c.cfg.PongGrace {
				slog.Warn("keepalive timeout", "idle", idle)
				c.mu.Lock()
				conn := c.conn
				c.mu.Unlock()
				if conn != nil {
					conn.Close()
				}
				continue
			}
			if idle >= interval {
				ping, _ := wire.Encode(wire.CmdPing, nil)
				select {
				case c.sendCh <- ping:
				default:
				}
			}
		case <-c.done:
			return
		}
	}
}

// reconnect drives the Reconnecting state: exponential backoff with jitter
// and a cap, ticket refresh on expiry, and channel rejoin on success. Only
// a persistent authentication rejection (after one forced ticket
// re-acquisition) or Close ends the loop.
func (c *Client) reconnect() {
	c.setState(StateReconnecting)
	go func() {
		backoff := c.cfg.BackoffInitial
		refreshed := false
		for {
			select {
			case <-time.After(withJitter(backoff)):
			case <-c.done:
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HTTPTimeout)
			err := c.ensureTicket(ctx, false)
			if err == nil {
				err = c.establish(ctx)
			}
			cancel()

			if err == nil {
				c.rejoinChannels()
				return
			}

			var authErr *AuthError
			if errors.As(err, &authErr) {
				switch {
				case authErr.Kind == AuthUnreachable || authErr.Kind == AuthRateLimited:
					// transient; keep backing off
				case !refreshed:
					// The ticket may have expired between issue and use.
					// Force one re-acquisition before trusting the rejection.
					refreshed = true
					c.invalidateTicket()
				default:
					slog.Warn("reconnect authentication rejected", "error", authErr)
					c.setState(StateDisconnected)
					return
				}
			}

			slog.Warn("reconnect attempt failed", "error", err, "backoff", backoff)
			c.setState(StateReconnecting)
			backoff *= 2
			if backoff > c.cfg.BackoffMax {
				backoff = c.cfg.BackoffMax
			}
		}
	}()
}

func (c *Client) rejoinChannels() {
	for _, channel := range c.JoinedChannels() {
		if err := c.Send(wire.CmdJoin, wire.JoinPayload{Channel: channel}); err != nil {
			slog.Warn("channel rejoin failed", "channel", channel, "error", err)
		}
	}
}

// withJitter spreads a backoff delay over [0.75d, 1.25d] to avoid
// thundering-herd reconnection.
func withJitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.75 + rand.Float64()*0.5))
}
