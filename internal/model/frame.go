package model

import "time"

// Frame is a packed BGR pixel buffer captured from a device.
// A published Frame is never mutated; consumers receive Clone() copies.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	Channels   int
	Seq        uint64
	CapturedAt time.Time
}

// Empty reports whether the frame carries no pixels.
func (f Frame) Empty() bool {
	return len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// Clone returns a copy that shares no memory with f.
func (f Frame) Clone() Frame {
	out := f
	if f.Data != nil {
		out.Data = make([]byte, len(f.Data))
		copy(out.Data, f.Data)
	}
	return out
}

// BoundingBox is a pixel-space region of interest.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// ClipTo intersects the box with a width x height frame. The second return
// value is false when nothing of the box remains inside the frame.
func (b BoundingBox) ClipTo(width, height int) (BoundingBox, bool) {
	x0, y0 := max(b.X, 0), max(b.Y, 0)
	x1, y1 := min(b.X+b.W, width), min(b.Y+b.H, height)
	if x1 <= x0 || y1 <= y0 {
		return BoundingBox{}, false
	}
	return BoundingBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}, true
}
