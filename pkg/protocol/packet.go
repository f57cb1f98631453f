package protocol

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
)

// Packet is a transmissible unit: header metadata plus opaque payload.
// Tag is populated on decode when the frame carried one.
type Packet struct {
	Kind    uint8
	Sender  uint64
	Seq     uint64
	Payload []byte
	Tag     []byte
}

// Codec converts between in-memory packets and transport frames. When a
// process-wide authentication key is configured it attaches/validates a
// keyed digest over (sender, seq, payload). The key is immutable after
// construction.
type Codec struct {
	key          []byte
	acceptTagged bool
}

// NewCodec builds a codec. An empty key disables authentication; in that
// mode acceptTagged states the explicit policy for inbound frames that
// nevertheless carry a tag (accept and ignore, or drop).
func NewCodec(key string, acceptTagged bool) *Codec {
	c := &Codec{acceptTagged: acceptTagged}
	if key != "" {
		c.key = []byte(key)
	}
	return c
}

// Keyed reports whether an authentication key is configured.
func (c *Codec) Keyed() bool { return len(c.key) > 0 }

// Encode serializes a packet into a single frame, attaching the
// authentication tag when a key is configured.
func (c *Codec) Encode(p *Packet) ([]byte, error) {
	if len(p.Payload) > MaxPayload {
		return nil, malformed("payload %d exceeds MTU %d", len(p.Payload), MaxPayload)
	}
	h := Header{
		Version:    Version,
		Kind:       p.Kind,
		Sender:     p.Sender,
		Seq:        p.Seq,
		PayloadLen: uint16(len(p.Payload)),
	}
	if c.Keyed() {
		h.Flags |= FlagAuthed
	}
	hb, err := h.MarshalBinary()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, headerSize+len(p.Payload)+TagSize)
	out = append(out, hb...)
	out = append(out, p.Payload...)
	if c.Keyed() {
		out = append(out, c.tag(p.Sender, p.Seq, p.Payload)...)
	}
	return out, nil
}

// Decode parses and authenticates a single frame. It never panics on
// garbage input; failures are typed (*MalformedError, *AuthError).
func (c *Codec) Decode(frame []byte) (*Packet, error) {
	var h Header
	if err := h.UnmarshalBinary(frame); err != nil {
		return nil, malformed("%v", err)
	}
	if h.Version != Version {
		return nil, malformed("unsupported version %d", h.Version)
	}
	if int(h.PayloadLen) > MaxPayload {
		return nil, malformed("payload %d exceeds MTU %d", h.PayloadLen, MaxPayload)
	}
	need := headerSize + int(h.PayloadLen)
	tagged := h.Flags&FlagAuthed != 0
	if tagged {
		need += TagSize
	}
	if len(frame) < need {
		return nil, malformed("truncated frame: have %d, need %d", len(frame), need)
	}
	payload := append([]byte(nil), frame[headerSize:headerSize+int(h.PayloadLen)]...)
	p := &Packet{Kind: h.Kind, Sender: h.Sender, Seq: h.Seq, Payload: payload}

	switch {
	case c.Keyed() && !tagged:
		return nil, &AuthError{Reason: "missing tag on keyed channel"}
	case c.Keyed():
		got := frame[headerSize+int(h.PayloadLen) : need]
		want := c.tag(h.Sender, h.Seq, payload)
		if !hmac.Equal(got, want) {
			return nil, &AuthError{Reason: "tag mismatch"}
		}
		p.Tag = append([]byte(nil), got...)
	case tagged:
		// No key configured but the frame carries a tag: policy decision.
		if !c.acceptTagged {
			return nil, malformed("unexpected tag on keyless channel")
		}
		p.Tag = append([]byte(nil), frame[headerSize+int(h.PayloadLen):need]...)
	}
	return p, nil
}

// tag computes the keyed digest over (sender, seq, payload).
func (c *Codec) tag(sender, seq uint64, payload []byte) []byte {
	mac := hmac.New(sha256.New, c.key)
	var idbuf [16]byte
	binary.LittleEndian.PutUint64(idbuf[0:8], sender)
	binary.LittleEndian.PutUint64(idbuf[8:16], seq)
	mac.Write(idbuf[:])
	mac.Write(payload)
	return mac.Sum(nil)
}
