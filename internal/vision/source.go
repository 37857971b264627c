package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"visionpro-worker-go/internal/models"
	"visionpro-worker-go/internal/stream"
)

// Source opens RTSP (or file/device) streams through OpenCV's FFmpeg
// backend. The capture buffer is pinned to one frame so readers always get
// the freshest frame instead of a backlog.
type Source struct{}

func NewSource() *Source {
	return &Source{}
}

func (s *Source) Open(ctx context.Context, address string) (stream.FrameReader, error) {
	capture, err := gocv.OpenVideoCaptureWithAPI(address, gocv.VideoCaptureFFmpeg)
	if err != nil {
		return nil, fmt.Errorf("open capture %s: %w", address, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("capture %s did not open", address)
	}
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	return &reader{capture: capture, mat: gocv.NewMat()}, nil
}

type reader struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

func (r *reader) Read() (*models.RawFrame, error) {
	if ok := r.capture.Read(&r.mat); !ok {
		return nil, errors.New("capture read failed")
	}
	if r.mat.Empty() {
		return nil, errors.New("capture returned an empty frame")
	}

	// ToBytes copies, so the returned frame is independent of the reused mat.
	return &models.RawFrame{
		Data:      r.mat.ToBytes(),
		Width:     r.mat.Cols(),
		Height:    r.mat.Rows(),
		Timestamp: time.Now(),
	}, nil
}

func (r *reader) Close() error {
	r.mat.Close()
	return r.capture.Close()
}
