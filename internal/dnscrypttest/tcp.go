package dnscrypttest

import (
	"encoding/binary"
	"io"
	"net"
)

// readPrefixed reads a 2-byte length-prefixed message from conn.
func readPrefixed(conn net.Conn) (b []byte, err error) {
	l := make([]byte, 2)
	_, err = io.ReadFull(conn, l)
	if err != nil {
		return nil, err
	}

	b = make([]byte, binary.BigEndian.Uint16(l))
	_, err = io.ReadFull(conn, b)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// writePrefixed writes a 2-byte length-prefixed message to conn.
func writePrefixed(b []byte, conn net.Conn) (err error) {
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(b)))
	_, err = (&net.Buffers{l, b}).WriteTo(conn)

	return err
}
