// Package overlay draws enrichment results onto frames with OpenCV.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"arlens/internal/model"
	"arlens/internal/service/render"
)

const (
	fontScale     = 0.5
	fontThickness = 1
	boxThickness  = 2
)

var (
	boxColor         = color.RGBA{G: 255}
	originalColor    = color.RGBA{G: 255}
	translationColor = color.RGBA{R: 255, G: 255}
	backgroundColor  = color.RGBA{}
)

// Renderer draws boxes and labels and encodes the result as JPEG.
type Renderer struct {
	quality int
}

func NewRenderer(quality int) *Renderer {
	if quality <= 0 || quality > 100 {
		quality = 80
	}
	return &Renderer{quality: quality}
}

// Render implements render.Renderer.
func (r *Renderer) Render(frame model.Frame, results []model.EnrichedResult) ([]byte, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("frame %d is empty", frame.Seq)
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer mat.Close()

	for _, result := range results {
		b := result.Box
		rect := image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
		if err := gocv.Rectangle(&mat, rect, boxColor, boxThickness); err != nil {
			return nil, fmt.Errorf("failed to draw rectangle: %w", err)
		}
	}

	for _, label := range render.Layout(results) {
		textColor := originalColor
		if label.Translation {
			textColor = translationColor
		}
		if err := drawLabel(&mat, label, textColor); err != nil {
			return nil, err
		}
	}

	buf, err := gocv.IMEncodeWithParams(".jpg", mat, []int{gocv.IMWriteJpegQuality, r.quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	encoded := make([]byte, len(buf.GetBytes()))
	copy(encoded, buf.GetBytes())
	return encoded, nil
}

// drawLabel writes text over a filled background so it stays readable.
func drawLabel(mat *gocv.Mat, label render.Label, textColor color.RGBA) error {
	size := gocv.GetTextSize(label.Text, gocv.FontHersheySimplex, fontScale, fontThickness)
	background := image.Rect(label.X-2, label.Y-size.Y-4, label.X+size.X+2, label.Y+4)
	if err := gocv.Rectangle(mat, background, backgroundColor, -1); err != nil {
		return fmt.Errorf("failed to draw label background: %w", err)
	}

	pt := image.Pt(label.X, label.Y)
	if err := gocv.PutText(mat, label.Text, pt, gocv.FontHersheySimplex, fontScale, textColor, fontThickness); err != nil {
		return fmt.Errorf("failed to draw text: %w", err)
	}
	return nil
}
