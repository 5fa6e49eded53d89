package dnscrypt

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// deadlineConn is a [net.Conn] stub recording the deadlines set on it.
type deadlineConn struct {
	net.Conn
	readDeadline  time.Time
	writeDeadline time.Time
}

// Write implements the [net.Conn] interface for *deadlineConn.
func (c *deadlineConn) Write(b []byte) (n int, err error) { return len(b), nil }

// Read implements the [net.Conn] interface for *deadlineConn.
func (c *deadlineConn) Read(b []byte) (n int, err error) { return 0, io.EOF }

// SetWriteDeadline implements the [net.Conn] interface for *deadlineConn.
func (c *deadlineConn) SetWriteDeadline(t time.Time) (err error) {
	c.writeDeadline = t

	return nil
}

// SetReadDeadline implements the [net.Conn] interface for *deadlineConn.
func (c *deadlineConn) SetReadDeadline(t time.Time) (err error) {
	c.readDeadline = t

	return nil
}

func TestClient_timeout(t *testing.T) {
	t.Parallel()

	c := &Client{}
	assert.Equal(t, defaultTimeout, c.timeout())

	c.Timeout = time.Second
	assert.Equal(t, time.Second, c.timeout())
}

// A zero-value Client must still set read and write deadlines so that it
// never blocks forever on a silent resolver.
func TestClient_zeroValueDeadlines(t *testing.T) {
	t.Parallel()

	c := &Client{}
	conn := &deadlineConn{}

	require.NoError(t, c.writeQuery(conn, []byte{0x00}))
	assert.False(t, conn.writeDeadline.IsZero())

	_, err := c.readResponse(conn)
	require.ErrorIs(t, err, io.EOF)
	assert.False(t, conn.readDeadline.IsZero())
}
