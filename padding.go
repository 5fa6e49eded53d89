package dnscrypt

// Queries and responses are padded using the ISO/IEC 7816-4 format before
// encryption: a single 0x80 byte followed by zero bytes.  The padded length
// is the next multiple of 64 bytes that fits the packet plus the marker, but
// never less than [minQuerySize], so that the length of a padded packet
// leaks as little as possible about the length of the original one.

// pad appends the padding to packet and returns the padded packet.
func pad(packet []byte) (padded []byte) {
	paddedLen := (len(packet)/64 + 1) * 64
	paddedLen = max(minQuerySize, paddedLen)

	padded = append(packet, 0x80)
	for len(padded) < paddedLen {
		padded = append(padded, 0)
	}

	return padded
}

// unpad removes the padding from packet.  The padding must consist of zero or
// more zero bytes preceded by exactly one 0x80 marker, and the remaining
// packet must still be a plausible DNS message.
func unpad(packet []byte) (unpadded []byte, err error) {
	for i := len(packet); ; {
		if i == 0 {
			return nil, ErrInvalidPadding
		}

		i--
		if packet[i] == 0x80 {
			if i < minDNSPacketSize {
				return nil, ErrInvalidPadding
			}

			return packet[:i], nil
		} else if packet[i] != 0x00 {
			return nil, ErrInvalidPadding
		}
	}
}
