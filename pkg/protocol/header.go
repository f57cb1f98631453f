package protocol

import (
	"encoding/binary"
	"errors"
)

// Fixed header layout (28 bytes) for fast parsing over any channel.
// All integer fields are little-endian.
//
//  0  ..1   Magic   'S''C' (0x5343)
//  2        Version u8
//  3        Kind    u8
//  4  ..7   Flags   u32
//  8  ..15  Sender  u64
//  16 ..23  Seq     u64
//  24 ..25  PayloadLen u16
//  26 ..27  Reserved u16
//
// When FlagAuthed is set a 32-byte HMAC-SHA256 tag trails the payload.
const (
	headerSize = 28
	magicWord  = uint16(0x5343) // 'S''C'

	// Version is the current wire protocol version.
	Version = uint8(1)

	// MaxPayload bounds the payload by the channel MTU.
	MaxPayload = 1024

	// TagSize is the length of the authentication tag trailer.
	TagSize = 32
)

// Header describes metadata for a packet frame.
type Header struct {
	Version    uint8
	Kind       uint8
	Flags      uint32
	Sender     uint64
	Seq        uint64
	PayloadLen uint16
}

// MarshalBinary encodes header to a 28-byte buffer.
func (h *Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:2], magicWord)
	buf[2] = h.Version
	buf[3] = h.Kind
	binary.LittleEndian.PutUint32(buf[4:8], h.Flags)
	binary.LittleEndian.PutUint64(buf[8:16], h.Sender)
	binary.LittleEndian.PutUint64(buf[16:24], h.Seq)
	binary.LittleEndian.PutUint16(buf[24:26], h.PayloadLen)
	// 26..27 reserved stays zero
	return buf, nil
}

// UnmarshalBinary decodes header from a 28-byte buffer.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) < headerSize {
		return errors.New("short header")
	}
	if binary.LittleEndian.Uint16(buf[0:2]) != magicWord {
		return errors.New("bad magic")
	}
	h.Version = buf[2]
	h.Kind = buf[3]
	h.Flags = binary.LittleEndian.Uint32(buf[4:8])
	h.Sender = binary.LittleEndian.Uint64(buf[8:16])
	h.Seq = binary.LittleEndian.Uint64(buf[16:24])
	h.PayloadLen = binary.LittleEndian.Uint16(buf[24:26])
	return nil
}
