package protocol

// Packet kinds (fits in uint8)
const (
	KindUnknown uint8 = iota
	KindCommand       // operator command for the peer
	KindPacket        // application data (status/telemetry)
	KindHello         // handshake request
	KindHelloAck      // handshake acknowledgement
	KindClose         // explicit link teardown
	KindHeartbeat     // liveness keepalive
)

// KindName returns a short printable name for a packet kind.
func KindName(k uint8) string {
	switch k {
	case KindCommand:
		return "command"
	case KindPacket:
		return "packet"
	case KindHello:
		return "hello"
	case KindHelloAck:
		return "hello-ack"
	case KindClose:
		return "close"
	case KindHeartbeat:
		return "heartbeat"
	default:
		return "unknown"
	}
}

// Flags bitmask (uint32)
const (
	FlagAuthed     uint32 = 1 << 0 // frame carries an authentication tag trailer
	FlagCompressed uint32 = 1 << 1 // payload compressed
	FlagAck        uint32 = 1 << 2 // ack requested
)

// ContentType is optional hint for payload decoding.
// Kept as constants to avoid coupling; not serialized in header.
const (
	ContentUnknown = "application/octet-stream"
	ContentCBOR    = "application/cbor"
	ContentJSON    = "application/json"
	ContentProto   = "application/x-protobuf"
)
