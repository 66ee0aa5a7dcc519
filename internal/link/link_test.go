package link

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/vr_digitizer/internal/clock"
)

// fakeConn is an in-memory net.Conn whose writes can be made to fail.
type fakeConn struct {
	mu        sync.Mutex
	written   [][]byte
	inbound   []byte
	failWrite bool
	readErr   error
	closed    bool
}

func (c *fakeConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return 0, c.readErr
	}
	if len(c.inbound) == 0 {
		return 0, os.ErrDeadlineExceeded
	}
	n := copy(b, c.inbound)
	c.inbound = c.inbound[n:]
	return n, nil
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrite {
		return 0, errors.New("broken pipe")
	}
	c.written = append(c.written, append([]byte(nil), b...))
	return len(b), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

// fakeDialer fails the first failures dials, then hands out conns built by
// newConn.
type fakeDialer struct {
	failures int
	dials    int
	conns    []*fakeConn
	newConn  func() *fakeConn
}

func (d *fakeDialer) DialContext(_ context.Context, network, _ string) (net.Conn, error) {
	d.dials++
	if network != "tcp" {
		return nil, errors.New("unexpected network")
	}
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("connection refused")
	}
	c := &fakeConn{}
	if d.newConn != nil {
		c = d.newConn()
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func newTestManager(d Dialer, clk clock.Clock) *Manager {
	return New(DefaultConfig("127.0.0.1:3947"), d, clk)
}

func TestEnsure_Connects(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d, clock.NewFake(time.Unix(0, 0)))
	require.Equal(t, Disconnected, m.State())

	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, Connected, m.State())
	assert.NotEmpty(t, m.Session())
	assert.Equal(t, 1, d.dials)

	// Already connected: no new dial.
	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, 1, d.dials)
}

func TestEnsure_RetriesWithFixedBackoff(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := &fakeDialer{failures: 3}
	m := newTestManager(d, clk)

	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, Connected, m.State())
	assert.Equal(t, 4, d.dials)
	assert.Equal(t, []time.Duration{
		DefaultReconnectDelay, DefaultReconnectDelay, DefaultReconnectDelay,
	}, clk.Sleeps())
}

func TestEnsure_CancelledWhileConnecting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := newTestManager(&fakeDialer{failures: 1}, clock.NewFake(time.Unix(0, 0)))

	err := m.Ensure(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Disconnected, m.State())
}

func TestSend_FailureFaultsAndReconnects(t *testing.T) {
	d := &fakeDialer{newConn: func() *fakeConn { return &fakeConn{failWrite: true} }}
	m := newTestManager(d, clock.NewFake(time.Unix(0, 0)))
	ctx := context.Background()

	const n = 4
	for i := 0; i < n; i++ {
		require.NoError(t, m.Ensure(ctx))
		require.Equal(t, Connected, m.State())
		assert.Equal(t, i+1, d.dials, "reconnect happens before send %d", i)

		err := m.Send([]byte{0xFF, 0x54, 0, 0, 0, 0})
		require.Error(t, err)
		assert.Equal(t, Faulted, m.State())
		assert.Empty(t, m.Session())
		assert.True(t, d.conns[i].closed)
	}
}

func TestSend_WritesWholeFrame(t *testing.T) {
	d := &fakeDialer{}
	m := newTestManager(d, clock.NewFake(time.Unix(0, 0)))
	require.NoError(t, m.Ensure(context.Background()))

	frame := []byte{0xFF, 0x54, 0x01, 0x00, 0x00, 0x00}
	require.NoError(t, m.Send(frame))
	assert.Equal(t, [][]byte{frame}, d.conns[0].written)
	assert.Equal(t, Connected, m.State())
}

func TestSend_NotConnected(t *testing.T) {
	m := newTestManager(&fakeDialer{}, clock.NewFake(time.Unix(0, 0)))
	assert.ErrorIs(t, m.Send([]byte{1}), ErrNotConnected)
}

func TestReceive(t *testing.T) {
	d := &fakeDialer{newConn: func() *fakeConn { return &fakeConn{inbound: []byte{0x13}} }}
	m := newTestManager(d, clock.NewFake(time.Unix(0, 0)))
	require.NoError(t, m.Ensure(context.Background()))

	b, ok := m.Receive()
	require.True(t, ok)
	assert.Equal(t, byte(0x13), b)

	_, ok = m.Receive()
	assert.False(t, ok, "no data yet is silent")
	assert.Equal(t, Connected, m.State())

	d.conns[0].readErr = io.EOF
	_, ok = m.Receive()
	assert.False(t, ok)
	assert.Equal(t, Connected, m.State(), "receive errors never fault the link")
}

func TestDisabled_NoSocketOperations(t *testing.T) {
	d := &fakeDialer{}
	cfg := DefaultConfig("127.0.0.1:3947")
	cfg.Enabled = false
	m := New(cfg, d, clock.NewFake(time.Unix(0, 0)))

	require.NoError(t, m.Ensure(context.Background()))
	require.NoError(t, m.Send([]byte{1, 2, 3}))
	_, ok := m.Receive()

	assert.False(t, ok)
	assert.Zero(t, d.dials)
	assert.Equal(t, Disconnected, m.State())
}

func TestLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan []byte, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		buf := make([]byte, 6)
		if _, err := io.ReadFull(c, buf); err != nil {
			return
		}
		received <- buf
		_, _ = c.Write([]byte{0x0B})
		time.Sleep(time.Second)
	}()

	cfg := DefaultConfig(ln.Addr().String())
	cfg.ConnectTimeout = time.Second
	cfg.SendTimeout = time.Second
	cfg.ReceiveWait = 10 * time.Millisecond
	m := New(cfg, nil, clock.Real{})
	defer m.Close()

	require.NoError(t, m.Ensure(context.Background()))
	frame := []byte{0xFF, 0x54, 0x00, 0x00, 0x00, 0x00}
	require.NoError(t, m.Send(frame))

	select {
	case got := <-received:
		assert.Equal(t, frame, got)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not receive frame")
	}

	var fb byte
	require.Eventually(t, func() bool {
		b, ok := m.Receive()
		fb = b
		return ok
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, byte(0x0B), fb)
}

func TestEnsure_ConfiguredReconnectDelay(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	d := &fakeDialer{failures: 2}
	cfg := DefaultConfig("127.0.0.1:3947")
	cfg.ReconnectDelay = 250 * time.Millisecond
	m := New(cfg, d, clk)

	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, clk.Sleeps())
	assert.Equal(t, time.Unix(0, 0).Add(500*time.Millisecond), clk.Now())
}

func TestNew_ZeroReconnectDelayUsesDefault(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	cfg := DefaultConfig("127.0.0.1:3947")
	cfg.ReconnectDelay = 0
	m := New(cfg, &fakeDialer{failures: 1}, clk)

	require.NoError(t, m.Ensure(context.Background()))
	assert.Equal(t, []time.Duration{DefaultReconnectDelay}, clk.Sleeps())
}
