package stream

import (
	"context"

	"visionpro-worker-go/internal/models"
)

// FrameSource opens network video connections. Implementations may block on
// I/O; the supervisor calls them from its own goroutine.
type FrameSource interface {
	Open(ctx context.Context, address string) (FrameReader, error)
}

// FrameReader yields raster frames from one open connection. The supervisor
// owns the reader and always closes it before reconnecting or stopping.
type FrameReader interface {
	Read() (*models.RawFrame, error)
	Close() error
}

// Encoder turns a raw frame into transport-friendly JPEG bytes.
type Encoder interface {
	EncodeJPEG(frame *models.RawFrame, quality int) ([]byte, error)
}
