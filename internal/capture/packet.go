// Package capture reassembles the capture card's lossy UDP byte stream
// into fixed-size radar frames and drives collection sessions to completion.
package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the raw-mode header the capture card prepends to every
// datagram: a 4-byte little-endian sequence number followed by a 6-byte
// little-endian cumulative byte count.
const HeaderSize = 10

// ErrTimeout reports that no datagram arrived within the source's read
// timeout. It is recoverable; the session watchdog decides what it means.
var ErrTimeout = errors.New("datagram read timeout")

// Datagram is one raw-mode UDP payload from the capture card.
//
// Sequence numbers are monotonically non-decreasing in emission order but
// datagrams may arrive out of order or not at all. ByteOffset is the
// cumulative byte count at which Payload begins in the logical stream and
// is what drives placement during reassembly.
type Datagram struct {
	SequenceNumber uint32
	ByteOffset     uint64
	Payload        []byte
}

// ParseDatagram decodes a raw-mode packet. The payload is copied so the
// caller may reuse its receive buffer.
func ParseDatagram(pkt []byte) (Datagram, error) {
	if len(pkt) < HeaderSize {
		return Datagram{}, fmt.Errorf("short datagram: %d bytes (need at least %d)", len(pkt), HeaderSize)
	}

	seq := binary.LittleEndian.Uint32(pkt[0:4])

	// 48-bit little-endian byte count.
	var off uint64
	for i := 5; i >= 0; i-- {
		off = off<<8 | uint64(pkt[4+i])
	}

	payload := make([]byte, len(pkt)-HeaderSize)
	copy(payload, pkt[HeaderSize:])

	return Datagram{
		SequenceNumber: seq,
		ByteOffset:     off,
		Payload:        payload,
	}, nil
}

// AppendHeader writes the raw-mode header for the given sequence number and
// byte offset into dst. It is the encoding counterpart of ParseDatagram,
// used by replay tooling and tests.
func AppendHeader(dst []byte, seq uint32, byteOffset uint64) []byte {
	var hdr [HeaderSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], seq)
	for i := 0; i < 6; i++ {
		hdr[4+i] = byte(byteOffset >> (8 * i))
	}
	return append(dst, hdr[:]...)
}
