package protocol

import "errors"

// Stream reassembles frames from arbitrarily chunked transport reads.
// It is not safe for concurrent use; each connection owns one Stream.
type Stream struct {
	codec *Codec
	buf   []byte
}

// NewStream creates a Stream decoding with c.
func NewStream(c *Codec) *Stream {
	return &Stream{codec: c}
}

// Feed appends bytes read from the transport.
func (s *Stream) Feed(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next complete message. It returns ErrNeedMoreData when
// the buffered bytes do not form a full frame yet.
func (s *Stream) Next() (*Message, error) {
	msg, n, err := s.codec.Decode(s.buf)
	if err != nil {
		if !errors.Is(err, ErrNeedMoreData) {
			s.buf = nil
		}
		return nil, err
	}
	s.consume(n)
	return msg, nil
}

// Buffered returns the number of bytes waiting for a complete frame.
func (s *Stream) Buffered() int {
	return len(s.buf)
}

func (s *Stream) consume(n int) {
	rest := len(s.buf) - n
	if rest == 0 {
		s.buf = s.buf[:0]
		return
	}
	// Compact so the backing array does not grow without bound.
	copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]
}
