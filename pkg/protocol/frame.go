package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Frame layout, all integers big-endian:
//
//	magic(4) version(1) serialization(1) type(1) status(2) requestId(36) bodyLength(4) body(n)
const (
	Magic         uint32 = 0xCAFEBABE
	Version       byte   = 1
	HeaderSize           = 49
	RequestIDSize        = 36

	// DefaultMaxBodySize bounds a single frame body.
	DefaultMaxBodySize = 1 << 20
)

const (
	offMagic         = 0
	offVersion       = 4
	offSerialization = 5
	offType          = 6
	offStatus        = 7
	offRequestID     = 9
	offBodyLength    = offRequestID + RequestIDSize
)

// SerializationKind selects the body encoding.
type SerializationKind uint8

const (
	SerializationJSON SerializationKind = 0
	// SerializationBinary is reserved. Frames carrying it are rejected.
	SerializationBinary SerializationKind = 1
)

func (k SerializationKind) String() string {
	switch k {
	case SerializationJSON:
		return "json"
	case SerializationBinary:
		return "binary"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Codec encodes and decodes frames. It is safe for concurrent use.
type Codec struct {
	registry    *Registry
	maxBodySize int
}

// CodecOption configures a Codec.
type CodecOption func(*Codec)

// WithMaxBodySize limits the body length accepted by Decode and produced by Encode.
func WithMaxBodySize(n int) CodecOption {
	return func(c *Codec) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}

// NewCodec creates a codec that resolves payload types through reg.
// A nil registry uses DefaultRegistry.
func NewCodec(reg *Registry, opts ...CodecOption) *Codec {
	if reg == nil {
		reg = DefaultRegistry()
	}
	c := &Codec{
		registry:    reg,
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Registry returns the registry used by the codec.
func (c *Codec) Registry() *Registry {
	return c.registry
}

// MaxBodySize returns the largest body the codec accepts.
func (c *Codec) MaxBodySize() int {
	return c.maxBodySize
}

// Encode serializes m into a complete frame. An empty RequestID is replaced
// by a freshly generated UUID in the frame; m itself is not modified.
func (c *Codec) Encode(m *Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("encode: nil message")
	}
	if _, ok := c.registry.Resolve(m.Type); !ok {
		return nil, fmt.Errorf("encode %s: %w", m.Type, protocolErrorf(ReasonUnknownType, "code %d", uint8(m.Type)))
	}

	requestID := m.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if len(requestID) != RequestIDSize {
		return nil, fmt.Errorf("encode %s: %w", m.Type,
			protocolErrorf(ReasonMalformedRequestID, "length %d, want %d", len(requestID), RequestIDSize))
	}

	body := []byte("{}")
	if m.Payload != nil {
		var err error
		body, err = json.Marshal(m.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", m.Type, err)
		}
	}
	if len(body) > c.maxBodySize {
		return nil, fmt.Errorf("encode %s: %w", m.Type,
			protocolErrorf(ReasonFrameTooLarge, "%d bytes, limit %d", len(body), c.maxBodySize))
	}

	frame := make([]byte, HeaderSize+len(body))
	binary.BigEndian.PutUint32(frame[offMagic:], Magic)
	frame[offVersion] = Version
	frame[offSerialization] = byte(SerializationJSON)
	frame[offType] = byte(m.Type)
	binary.BigEndian.PutUint16(frame[offStatus:], uint16(m.StatusCode))
	copy(frame[offRequestID:offBodyLength], requestID)
	binary.BigEndian.PutUint32(frame[offBodyLength:], uint32(len(body)))
	copy(frame[HeaderSize:], body)
	return frame, nil
}

// Decode parses one frame from the front of buf. It returns the message and
// the number of bytes consumed. When buf holds less than a full frame it
// returns ErrNeedMoreData and consumes nothing. Any other error is a
// *ProtocolError and the stream is unrecoverable.
func (c *Codec) Decode(buf []byte) (*Message, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrNeedMoreData
	}

	if magic := binary.BigEndian.Uint32(buf[offMagic:]); magic != Magic {
		return nil, 0, protocolErrorf(ReasonBadMagic, "0x%08X", magic)
	}
	if v := buf[offVersion]; v != Version {
		return nil, 0, protocolErrorf(ReasonUnsupportedVersion, "%d", v)
	}
	if kind := SerializationKind(buf[offSerialization]); kind != SerializationJSON {
		return nil, 0, protocolErrorf(ReasonUnsupportedSerialization, "%s", kind)
	}
	t := MessageType(buf[offType])
	entry, ok := c.registry.Resolve(t)
	if !ok {
		return nil, 0, protocolErrorf(ReasonUnknownType, "code %d", uint8(t))
	}

	bodyLen := binary.BigEndian.Uint32(buf[offBodyLength:])
	if uint64(bodyLen) > uint64(c.maxBodySize) {
		return nil, 0, protocolErrorf(ReasonFrameTooLarge, "%d bytes, limit %d", bodyLen, c.maxBodySize)
	}
	total := HeaderSize + int(bodyLen)
	if len(buf) < total {
		return nil, 0, ErrNeedMoreData
	}

	payload := entry.New()
	if bodyLen > 0 {
		if err := json.Unmarshal(buf[HeaderSize:total], payload); err != nil {
			return nil, 0, &ProtocolError{Reason: ReasonMalformedBody, Detail: t.String(), Err: err}
		}
	}

	return &Message{
		Type:       t,
		StatusCode: StatusCode(int16(binary.BigEndian.Uint16(buf[offStatus:]))),
		RequestID:  string(buf[offRequestID:offBodyLength]),
		Payload:    payload,
	}, total, nil
}
