package vision

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"visionpro-worker-go/internal/models"
)

var boxColor = color.RGBA{R: 0, G: 200, B: 80, A: 255}

// SnapshotWriter persists event snapshots, drawing detection boxes and
// labels when the raw frame is available.
type SnapshotWriter struct {
	basePath string
	quality  int
}

func NewSnapshotWriter(basePath string, quality int) (*SnapshotWriter, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir %s: %w", basePath, err)
	}
	return &SnapshotWriter{basePath: basePath, quality: quality}, nil
}

// WriteAnnotated draws each detection on a copy of the frame and writes it
// as JPEG. Returns the stored path.
func (w *SnapshotWriter) WriteAnnotated(frame *models.RawFrame, objects []models.DetectedObject, name string) (string, error) {
	mat, err := matFromFrame(frame)
	if err != nil {
		return "", err
	}
	defer mat.Close()

	for _, obj := range objects {
		rect := image.Rect(obj.Box.X, obj.Box.Y, obj.Box.X+obj.Box.W, obj.Box.Y+obj.Box.H)
		gocv.Rectangle(&mat, rect, boxColor, 2)

		label := fmt.Sprintf("%s %.0f%%", obj.Class, obj.Confidence*100)
		origin := image.Pt(obj.Box.X, obj.Box.Y-6)
		if origin.Y < 12 {
			origin.Y = obj.Box.Y + 14
		}
		gocv.PutText(&mat, label, origin, gocv.FontHersheySimplex, 0.5, boxColor, 1)
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, w.quality})
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	defer buf.Close()

	return w.store(buf.GetBytes(), name)
}

// WriteJPEG stores already-encoded JPEG bytes as-is. Used for bridge events
// where only the encoded frame travels.
func (w *SnapshotWriter) WriteJPEG(jpeg []byte, name string) (string, error) {
	return w.store(jpeg, name)
}

func (w *SnapshotWriter) store(data []byte, name string) (string, error) {
	path := filepath.Join(w.basePath, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	return path, nil
}
