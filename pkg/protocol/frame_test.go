package protocol

import (
	"encoding/binary"
	"errors"
	"testing"
)

func encodeChat(t *testing.T, c *Codec) []byte {
	t.Helper()
	frame, err := c.Encode(&Message{
		Type:      TypeChatRequest,
		RequestID: "00000000-0000-0000-0000-000000000001",
		Payload:   &ChatRequest{Content: "hello", RoomID: "R"},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	return frame
}

func TestEncode_HeaderLayout(t *testing.T) {
	c := NewCodec(nil)
	frame := encodeChat(t, c)

	if got := binary.BigEndian.Uint32(frame[0:4]); got != Magic {
		t.Errorf("magic = 0x%08X", got)
	}
	if frame[4] != Version {
		t.Errorf("version = %d", frame[4])
	}
	if SerializationKind(frame[5]) != SerializationJSON {
		t.Errorf("serialization = %d", frame[5])
	}
	if MessageType(frame[6]) != TypeChatRequest {
		t.Errorf("type = %d", frame[6])
	}
	if got := string(frame[9:45]); got != "00000000-0000-0000-0000-000000000001" {
		t.Errorf("request id = %q", got)
	}
	bodyLen := binary.BigEndian.Uint32(frame[45:49])
	if int(bodyLen) != len(frame)-HeaderSize {
		t.Errorf("bodyLength = %d, actual body %d", bodyLen, len(frame)-HeaderSize)
	}
}

func TestDecode_Corruption(t *testing.T) {
	c := NewCodec(nil)

	tests := []struct {
		name   string
		mutate func([]byte)
		reason string
	}{
		{
			name:   "bad magic",
			mutate: func(b []byte) { b[0] = 0x00 },
			reason: ReasonBadMagic,
		},
		{
			name:   "unsupported version",
			mutate: func(b []byte) { b[offVersion] = 2 },
			reason: ReasonUnsupportedVersion,
		},
		{
			name:   "binary serialization is reserved",
			mutate: func(b []byte) { b[offSerialization] = byte(SerializationBinary) },
			reason: ReasonUnsupportedSerialization,
		},
		{
			name:   "unknown serialization",
			mutate: func(b []byte) { b[offSerialization] = 9 },
			reason: ReasonUnsupportedSerialization,
		},
		{
			name:   "unknown message type",
			mutate: func(b []byte) { b[offType] = 250 },
			reason: ReasonUnknownType,
		},
		{
			name:   "body length above limit",
			mutate: func(b []byte) { binary.BigEndian.PutUint32(b[offBodyLength:], DefaultMaxBodySize+1) },
			reason: ReasonFrameTooLarge,
		},
		{
			name:   "malformed json body",
			mutate: func(b []byte) { b[HeaderSize] = '!' },
			reason: ReasonMalformedBody,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := encodeChat(t, c)
			tt.mutate(frame)

			msg, n, err := c.Decode(frame)
			if msg != nil || n != 0 {
				t.Errorf("Decode() = (%v, %d), want (nil, 0)", msg, n)
			}
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("Decode() error = %v, want *ProtocolError", err)
			}
			if pe.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", pe.Reason, tt.reason)
			}
		})
	}
}

func TestDecode_NeedMoreData(t *testing.T) {
	c := NewCodec(nil)
	frame := encodeChat(t, c)

	for _, size := range []int{0, 1, HeaderSize - 1, HeaderSize, len(frame) - 1} {
		msg, n, err := c.Decode(frame[:size])
		if !errors.Is(err, ErrNeedMoreData) {
			t.Errorf("Decode(%d bytes) error = %v, want ErrNeedMoreData", size, err)
		}
		if msg != nil || n != 0 {
			t.Errorf("Decode(%d bytes) consumed %d", size, n)
		}
	}
}

func TestDecode_MagicCheckedBeforeLength(t *testing.T) {
	c := NewCodec(nil)
	junk := make([]byte, HeaderSize)
	copy(junk, "GET / HTTP/1.1\r\n")

	_, _, err := c.Decode(junk)
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Reason != ReasonBadMagic {
		t.Fatalf("Decode() error = %v, want bad magic", err)
	}
}

func TestDecode_ConsumesOnlyOneFrame(t *testing.T) {
	c := NewCodec(nil)
	first := encodeChat(t, c)
	second := encodeChat(t, c)
	buf := append(append([]byte{}, first...), second...)

	_, n, err := c.Decode(buf)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != len(first) {
		t.Errorf("consumed %d, want %d", n, len(first))
	}
}

func TestCodec_MaxBodySizeOption(t *testing.T) {
	small := NewCodec(nil, WithMaxBodySize(8))
	_, err := small.Encode(&Message{Type: TypeChatRequest, Payload: &ChatRequest{Content: "longer than eight bytes"}})
	if !IsProtocolError(err) {
		t.Fatalf("Encode() error = %v, want protocol error", err)
	}

	frame := encodeChat(t, NewCodec(nil))
	_, _, err = small.Decode(frame)
	var pe *ProtocolError
	if !errors.As(err, &pe) || pe.Reason != ReasonFrameTooLarge {
		t.Fatalf("Decode() error = %v, want frame too large", err)
	}
}

func TestDecode_EmptyBody(t *testing.T) {
	c := NewCodec(nil)
	frame := encodeChat(t, c)[:HeaderSize]
	binary.BigEndian.PutUint32(frame[offBodyLength:], 0)
	frame[offType] = byte(TypeHeartbeatRequest)

	msg, n, err := c.Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if n != HeaderSize {
		t.Errorf("consumed %d, want %d", n, HeaderSize)
	}
	if _, ok := msg.Payload.(*HeartbeatRequest); !ok {
		t.Errorf("payload = %T", msg.Payload)
	}
}
