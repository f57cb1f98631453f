package protocol

import "testing"

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		Version:    Version,
		Kind:       KindPacket,
		Flags:      FlagAuthed,
		Sender:     42,
		Seq:        1007,
		PayloadLen: 12,
	}
	b, err := h.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var d Header
	if err := d.UnmarshalBinary(b); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d != h {
		t.Fatalf("header mismatch: %+v != %+v", d, h)
	}
}

func TestHeaderBadMagic(t *testing.T) {
	h := Header{Version: Version, Kind: KindHello}
	b, _ := h.MarshalBinary()
	b[0] ^= 0xFF
	var d Header
	if err := d.UnmarshalBinary(b); err == nil {
		t.Fatalf("expected bad magic error")
	}
}

func TestHeaderShortBuffer(t *testing.T) {
	var d Header
	if err := d.UnmarshalBinary(make([]byte, headerSize-1)); err == nil {
		t.Fatalf("expected short header error")
	}
}
