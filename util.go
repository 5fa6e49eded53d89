package dnscrypt

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/miekg/dns"
)

// readPrefixed reads a DNS message prefixed with its 2-byte big-endian
// length, as used on TCP.
func readPrefixed(conn net.Conn) (b []byte, err error) {
	l := make([]byte, 2)
	_, err = io.ReadFull(conn, l)
	if err != nil {
		return nil, err
	}

	packetLen := binary.BigEndian.Uint16(l)
	if packetLen > dns.MaxMsgSize {
		return nil, ErrQueryTooLarge
	}

	b = make([]byte, packetLen)
	_, err = io.ReadFull(conn, b)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// writePrefixed writes a DNS message prefixed with its 2-byte big-endian
// length, as used on TCP.
func writePrefixed(b []byte, conn net.Conn) (err error) {
	l := make([]byte, 2)
	binary.BigEndian.PutUint16(l, uint16(len(b)))
	_, err = (&net.Buffers{l, b}).WriteTo(conn)

	return err
}
