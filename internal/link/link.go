// Package link owns the TCP connection to the consumer: connect with retry,
// non-blocking send and receive, fault detection and reconnect.
package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/vr_digitizer/internal/clock"
	"github.com/relabs-tech/vr_digitizer/internal/log"
	"github.com/relabs-tech/vr_digitizer/internal/observability"
)

// State is the link lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Faulted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultReconnectDelay is the fixed pause between connection attempts.
const DefaultReconnectDelay = 500 * time.Millisecond

// ErrNotConnected is returned by Send outside the Connected state.
var ErrNotConnected = errors.New("link: not connected")

// Dialer opens transport connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config is the link's runtime configuration.
type Config struct {
	Address        string
	Enabled        bool
	ConnectTimeout time.Duration
	SendTimeout    time.Duration
	ReceiveWait    time.Duration
	ReconnectDelay time.Duration
}

// DefaultConfig returns the stock link settings for addr.
func DefaultConfig(addr string) Config {
	return Config{
		Address:        addr,
		Enabled:        true,
		ConnectTimeout: 100 * time.Millisecond,
		SendTimeout:    5 * time.Millisecond,
		ReceiveWait:    time.Millisecond,
		ReconnectDelay: DefaultReconnectDelay,
	}
}

// Manager is the only owner of the connection and its state.
// It is not safe for concurrent use; the cycle loop drives it.
type Manager struct {
	cfg    Config
	dialer Dialer
	clk    clock.Clock
	lg     *slog.Logger

	state   State
	conn    net.Conn
	session string
}

// New creates a manager. A nil dialer uses net.Dialer.
func New(cfg Config, dialer Dialer, clk clock.Clock) *Manager {
	if dialer == nil {
		dialer = &net.Dialer{}
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	m := &Manager{
		cfg:    cfg,
		dialer: dialer,
		clk:    clk,
		lg:     log.Component("link"),
		state:  Disconnected,
	}
	observability.SetLinkState(int(m.state))
	return m
}

// Enabled reports whether networking is on.
func (m *Manager) Enabled() bool { return m.cfg.Enabled }

// State returns the current state.
func (m *Manager) State() State { return m.state }

// Session returns the id of the current connection, empty when none.
func (m *Manager) Session() string { return m.session }

func (m *Manager) setState(s State) {
	m.state = s
	observability.SetLinkState(int(s))
}

// Ensure makes the link Connected, retrying forever with ReconnectDelay
// between attempts. It blocks the caller until connected or ctx ends. With
// networking disabled it returns immediately.
func (m *Manager) Ensure(ctx context.Context) error {
	if !m.cfg.Enabled || m.state == Connected {
		return nil
	}

	m.setState(Connecting)
	m.lg.Info("waiting to connect", "address", m.cfg.Address)

	for attempt := 1; ; attempt++ {
		observability.RecordConnectAttempt()

		conn, err := m.dial(ctx)
		if err == nil {
			m.conn = conn
			m.session = uuid.NewString()
			m.setState(Connected)
			observability.RecordConnected()
			m.lg.Info("connected", "address", m.cfg.Address, "session", m.session, "attempts", attempt)
			return nil
		}
		m.lg.Debug("retrying connect after error", "error", err, "attempt", attempt)

		if err := m.clk.Sleep(ctx, m.cfg.ReconnectDelay); err != nil {
			m.setState(Disconnected)
			return fmt.Errorf("link connect: %w", err)
		}
	}
}

func (m *Manager) dial(ctx context.Context) (net.Conn, error) {
	dctx := ctx
	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dctx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}
	return m.dialer.DialContext(dctx, "tcp", m.cfg.Address)
}

// Send writes one frame. Any error faults the link; the next Ensure
// reconnects.
func (m *Manager) Send(frame []byte) error {
	if !m.cfg.Enabled {
		return nil
	}
	if m.state != Connected || m.conn == nil {
		return ErrNotConnected
	}

	if m.cfg.SendTimeout > 0 {
		if err := m.conn.SetWriteDeadline(time.Now().Add(m.cfg.SendTimeout)); err != nil {
			m.fault(err)
			return fmt.Errorf("link send: %w", err)
		}
	}
	if _, err := m.conn.Write(frame); err != nil {
		m.fault(err)
		return fmt.Errorf("link send: %w", err)
	}
	observability.RecordFrameSent(len(frame))
	return nil
}

// Receive tries to read one feedback byte without waiting beyond the
// configured receive window. No data and read errors both report false and
// leave the link state alone.
func (m *Manager) Receive() (byte, bool) {
	if !m.cfg.Enabled || m.state != Connected || m.conn == nil {
		return 0, false
	}

	if err := m.conn.SetReadDeadline(time.Now().Add(m.cfg.ReceiveWait)); err != nil {
		m.lg.Debug("receive deadline error", "error", err)
		return 0, false
	}
	var b [1]byte
	n, err := m.conn.Read(b[:])
	if n == 1 {
		observability.RecordFeedback()
		return b[0], true
	}
	if err != nil && !errors.Is(err, os.ErrDeadlineExceeded) {
		m.lg.Debug("receive socket error", "error", err)
	}
	return 0, false
}

func (m *Manager) fault(cause error) {
	observability.RecordSendFailure()
	m.lg.Info("send socket error, resetting connection", "error", cause, "session", m.session)
	m.closeConn()
	m.setState(Faulted)
}

func (m *Manager) closeConn() {
	if m.conn != nil {
		_ = m.conn.Close()
		m.conn = nil
	}
	m.session = ""
}

// Close drops the connection and returns to Disconnected.
func (m *Manager) Close() error {
	m.closeConn()
	m.setState(Disconnected)
	return nil
}
