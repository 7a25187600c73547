// Package server defines the record connection abstraction shared by the TCP
// listener and the WebSocket gateway, along with connection error helpers.
package server

import (
	"errors"
	"io"
	"net"
	"strings"
)

// Conn is a record-oriented client connection.
// ReadRecord is called from one goroutine; WriteRecord from the session's write pump.
type Conn interface {
	ReadRecord() (string, error)
	WriteRecord(text string) error
	RemoteAddr() net.Addr
	Close() error
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close") ||
		strings.Contains(errStr, "connection reset by peer") ||
		strings.Contains(errStr, "broken pipe")
}
