package protocol

import (
	"bufio"
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// MaxRecordSize is the largest payload a record can carry.
const MaxRecordSize = 1<<16 - 1

// ErrRecordTooLarge is returned when encoding text longer than MaxRecordSize bytes.
var ErrRecordTooLarge = errors.New("record exceeds maximum size")

// ReadRecord reads one length-prefixed record from r.
func ReadRecord(r io.Reader) (string, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return "", err
	}
	size := binary.BigEndian.Uint16(header[:])
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(payload), nil
}

// WriteRecord writes text to w as one length-prefixed record using a single Write call.
func WriteRecord(w io.Writer, text string) error {
	if len(text) > MaxRecordSize {
		return errors.Wrapf(ErrRecordTooLarge, "%d bytes", len(text))
	}
	buf := make([]byte, 2+len(text))
	binary.BigEndian.PutUint16(buf, uint16(len(text)))
	copy(buf[2:], text)
	_, err := w.Write(buf)
	return err
}

// Conn carries records over a stream connection.
// Reads must come from a single goroutine; writes are serialized internally.
type Conn struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// NewConn wraps a stream connection for record I/O.
func NewConn(conn net.Conn) *Conn {
	return &Conn{
		conn:   conn,
		reader: bufio.NewReader(conn),
	}
}

// ReadRecord blocks until the next record arrives.
func (c *Conn) ReadRecord() (string, error) {
	return ReadRecord(c.reader)
}

// WriteRecord sends one record.
func (c *Conn) WriteRecord(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return WriteRecord(c.conn, text)
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local address.
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	return c.conn.Close()
}
