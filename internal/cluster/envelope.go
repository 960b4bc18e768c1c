// Package cluster fans deliveries out to other server nodes over NATS.
//
// A node that delivers a frame to its own sessions also publishes it, with
// the target user ids, on a shared subject. Every other node delivers the
// frame to whatever sessions of those users it holds.
package cluster

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Envelope field numbers.
const (
	fieldOrigin         protowire.Number = 1
	fieldUserIDs        protowire.Number = 2
	fieldExcludeSession protowire.Number = 3
	fieldFrame          protowire.Number = 4
)

var errWireType = errors.New("unexpected wire type")

// Envelope carries one encoded frame between nodes.
type Envelope struct {
	// Origin is the node id of the publisher.
	Origin  string
	UserIDs []string
	// ExcludeSession is a session id that must not receive the frame.
	ExcludeSession string
	Frame          []byte
}

// Marshal encodes e in protobuf wire format.
func (e *Envelope) Marshal() []byte {
	size := len(e.Origin) + len(e.ExcludeSession) + len(e.Frame) + 16
	for _, id := range e.UserIDs {
		size += len(id) + 2
	}
	b := make([]byte, 0, size)

	if e.Origin != "" {
		b = protowire.AppendTag(b, fieldOrigin, protowire.BytesType)
		b = protowire.AppendString(b, e.Origin)
	}
	for _, id := range e.UserIDs {
		b = protowire.AppendTag(b, fieldUserIDs, protowire.BytesType)
		b = protowire.AppendString(b, id)
	}
	if e.ExcludeSession != "" {
		b = protowire.AppendTag(b, fieldExcludeSession, protowire.BytesType)
		b = protowire.AppendString(b, e.ExcludeSession)
	}
	if len(e.Frame) > 0 {
		b = protowire.AppendTag(b, fieldFrame, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Frame)
	}
	return b
}

// UnmarshalEnvelope decodes b. Unknown fields are skipped.
func UnmarshalEnvelope(b []byte) (*Envelope, error) {
	e := &Envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("envelope tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch num {
		case fieldOrigin, fieldUserIDs, fieldExcludeSession, fieldFrame:
			if typ != protowire.BytesType {
				return nil, fmt.Errorf("envelope field %d: %w", num, errWireType)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldOrigin:
				e.Origin = string(v)
			case fieldUserIDs:
				e.UserIDs = append(e.UserIDs, string(v))
			case fieldExcludeSession:
				e.ExcludeSession = string(v)
			case fieldFrame:
				e.Frame = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	return e, nil
}
