package models

import "time"

// RawFrame is a decoded BGR frame as produced by the frame source.
type RawFrame struct {
	CameraID  string
	Data      []byte // BGR24, row-major
	Width     int
	Height    int
	Timestamp time.Time
}

// Rect is an axis-aligned pixel region within a frame.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// PadClamped grows the rect by pct on every side and clamps it to the
// frame bounds. Used for face crops (20% padding around the primary box).
func (r Rect) PadClamped(pct float64, frameW, frameH int) Rect {
	padW := int(float64(r.W) * pct)
	padH := int(float64(r.H) * pct)

	x1 := r.X - padW
	y1 := r.Y - padH
	x2 := r.X + r.W + padW
	y2 := r.Y + r.H + padH

	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > frameW {
		x2 = frameW
	}
	if y2 > frameH {
		y2 = frameH
	}

	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}
