package server

import (
	"errors"
	"io"
	"net"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/tcpchat/internal/store"
)

const waitFor = 2 * time.Second

var errInjected = errors.New("injected write failure")

var nextPort atomic.Int32

// fakeConn is an in-memory record connection. Tests push client records into in and
// read server records from out.
type fakeConn struct {
	in         chan string
	out        chan string
	closed     chan struct{}
	closeOnce  sync.Once
	failWrites atomic.Bool
	addr       net.Addr
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan string, 64),
		out:    make(chan string, 64),
		closed: make(chan struct{}),
		addr:   &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000 + int(nextPort.Add(1))},
	}
}

func (c *fakeConn) ReadRecord() (string, error) {
	select {
	case text := <-c.in:
		return text, nil
	case <-c.closed:
		return "", io.EOF
	}
}

func (c *fakeConn) WriteRecord(text string) error {
	if c.failWrites.Load() {
		return errInjected
	}
	select {
	case c.out <- text:
		return nil
	case <-c.closed:
		return net.ErrClosed
	}
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return c.addr
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) send(records ...string) {
	for _, r := range records {
		c.in <- r
	}
}

// next returns the next record the server wrote, failing the test after waitFor.
func (c *fakeConn) next(t *testing.T) string {
	t.Helper()
	select {
	case text := <-c.out:
		return text
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for a record")
		return ""
	}
}

// quiet asserts nothing is written for d.
func (c *fakeConn) quiet(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case text := <-c.out:
		t.Fatalf("unexpected record %q", text)
	case <-time.After(d):
	}
}

func testConfig() Config {
	return defaultConfig()
}

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	dir := t.TempDir()
	credentials, err := store.LoadCredentials(filepath.Join(dir, "credentials.txt"))
	require.NoError(t, err)
	history, err := store.LoadHistory(filepath.Join(dir, "messages.txt"), store.DefaultHistoryLimit)
	require.NoError(t, err)
	hub := NewHub(credentials, history)
	t.Cleanup(func() { _ = hub.Close() })
	return hub
}

// startSession runs a session over a fake connection and returns a channel closed when
// Run returns.
func startSession(t *testing.T, hub *Hub, cfg Config) (*Session, *fakeConn, <-chan struct{}) {
	t.Helper()
	conn := newFakeConn()
	session := NewSession(conn, hub, cfg)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		session.Run()
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		<-finished
	})
	return session, conn, finished
}

func waitClosed(t *testing.T, finished <-chan struct{}) {
	t.Helper()
	select {
	case <-finished:
	case <-time.After(waitFor):
		t.Fatal("session did not finish")
	}
}
