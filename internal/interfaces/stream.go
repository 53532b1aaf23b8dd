package interfaces

import "context"

// StreamConn is one live push connection.
type StreamConn interface {
	// ReadMessage blocks until the next text frame or a close/error.
	ReadMessage() ([]byte, error)
	Close() error
}

type StreamDialer interface {
	Dial(ctx context.Context, url string) (StreamConn, error)
}
