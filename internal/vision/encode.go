package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"visionpro-worker-go/internal/models"
)

// Encoder turns raw BGR frames into JPEG via OpenCV.
type Encoder struct{}

func NewEncoder() *Encoder {
	return &Encoder{}
}

func (Encoder) EncodeJPEG(frame *models.RawFrame, quality int) ([]byte, error) {
	mat, err := matFromFrame(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("jpeg encode: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func matFromFrame(frame *models.RawFrame) (gocv.Mat, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return gocv.Mat{}, fmt.Errorf("invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}
	if len(frame.Data) < frame.Width*frame.Height*3 {
		return gocv.Mat{}, fmt.Errorf("frame data shorter than %dx%d BGR", frame.Width, frame.Height)
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("mat from frame: %w", err)
	}
	return mat, nil
}
