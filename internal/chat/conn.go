// Package chat owns connection sessions: it turns transport bytes into
// protocol messages for a Handler and serializes writes back to the peer.
package chat

import "context"

// Conn abstracts a bidirectional connection for both TCP and WebSocket.
// This interface isolates transport details from session logic.
type Conn interface {
	// Read returns the next chunk of frame bytes. Chunks need not align
	// with frame boundaries. Returns io.EOF when the peer closes.
	Read(ctx context.Context) ([]byte, error)

	// Write sends bytes holding one or more complete frames.
	Write(ctx context.Context, data []byte) error

	// Close closes the connection.
	Close() error

	// RemoteAddr returns the remote address for logging.
	RemoteAddr() string
}
