package protocol

import (
	"errors"
	"fmt"
)

// ErrNeedMoreData is returned by Decode when the buffer does not yet hold a
// complete frame. Nothing is consumed.
var ErrNeedMoreData = errors.New("protocol: need more data")

// Reasons reported by ProtocolError.
const (
	ReasonBadMagic                 = "bad magic"
	ReasonUnsupportedVersion       = "unsupported version"
	ReasonUnsupportedSerialization = "unsupported serialization"
	ReasonUnknownType              = "unknown message type"
	ReasonFrameTooLarge            = "frame too large"
	ReasonMalformedBody            = "malformed body"
	ReasonMalformedRequestID       = "malformed request id"
)

// ProtocolError is a fatal framing error. The connection that produced it
// cannot be resynchronized and must be closed.
type ProtocolError struct {
	Reason string
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol: " + e.Reason
	if e.Detail != "" {
		msg += " (" + e.Detail + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func protocolErrorf(reason, format string, args ...any) *ProtocolError {
	return &ProtocolError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// IsProtocolError reports whether err is or wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
