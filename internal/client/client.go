package client

import (
	"context"
	"net"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/Tyrowin/tcpchat/internal/protocol"
)

var logger logrus.FieldLogger = logrus.StandardLogger()

// LoginResult is the server's answer to an admitted login.
type LoginResult struct {
	Status  string
	Created bool
	History []string
}

// Client is one connection to a chat server.
type Client struct {
	conn     *protocol.Conn
	loggedIn atomic.Bool
}

// Dial connects to the chat server at addr.
func Dial(ctx context.Context, addr string) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", addr)
	}
	logger.WithField("addr", addr).Debug("connected to chat server")
	return &Client{conn: protocol.NewConn(conn)}, nil
}

// Login sends one credential pair. A rejection returns an error wrapping ErrRejected
// (or ErrServerFull) with the server's status; the same Client may try again.
func (c *Client) Login(username, password string) (LoginResult, error) {
	if err := c.conn.WriteRecord(username); err != nil {
		return LoginResult{}, errors.Wrap(err, "send username")
	}
	if err := c.conn.WriteRecord(password); err != nil {
		return LoginResult{}, errors.Wrap(err, "send password")
	}

	status, err := c.conn.ReadRecord()
	if err != nil {
		return LoginResult{}, errors.Wrap(err, "read login status")
	}

	if protocol.IsTerminal(status) {
		return LoginResult{Status: status}, errors.Wrap(ErrServerFull, status)
	}
	if !protocol.IsWelcome(status) {
		return LoginResult{Status: status}, errors.Wrap(ErrRejected, status)
	}

	block, err := c.conn.ReadRecord()
	if err != nil {
		return LoginResult{Status: status}, errors.Wrap(err, "read message history")
	}

	c.loggedIn.Store(true)
	return LoginResult{
		Status:  status,
		Created: status == protocol.WelcomeCreated(username),
		History: ParseHistory(block),
	}, nil
}

// ParseHistory splits a history block into its entries, dropping the count line.
func ParseHistory(block string) []string {
	lines := strings.Split(strings.TrimSuffix(block, "\n"), "\n")
	if len(lines) <= 1 {
		return nil
	}
	return lines[1:]
}

// Send posts one chat line. Blank lines are not sent.
func (c *Client) Send(text string) error {
	if !c.loggedIn.Load() {
		return ErrNotLoggedIn
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return errors.Wrap(c.conn.WriteRecord(text), "send message")
}

// Receive blocks until the next broadcast arrives.
func (c *Client) Receive() (string, error) {
	return c.conn.ReadRecord()
}

// Quit tells the server the session is over and closes the connection.
func (c *Client) Quit() error {
	err := c.conn.WriteRecord(protocol.Quit)
	c.loggedIn.Store(false)
	if closeErr := c.conn.Close(); err == nil {
		err = closeErr
	}
	return errors.Wrap(err, "quit")
}

// LocalAddr returns the client side of the connection.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close drops the connection without saying goodbye.
func (c *Client) Close() error {
	c.loggedIn.Store(false)
	return c.conn.Close()
}
