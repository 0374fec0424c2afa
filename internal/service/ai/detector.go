package ai

import (
	"context"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"

	"arlens/internal/config"
	"arlens/internal/logger"
	"arlens/internal/model"
)

const (
	// ocrUpscale enlarges frames before recognition; small text reads better.
	ocrUpscale = 1.5
	// ocrMaxDimension caps the upscaled image size.
	ocrMaxDimension = 2048
)

// OCRDetector finds text lines in a frame with Tesseract. A detector owns a
// Tesseract client and must not be shared between goroutines.
type OCRDetector struct {
	client *gosseract.Client
	logger *logger.Logger
}

// NewOCRDetector creates a detector for the configured OCR language.
func NewOCRDetector(config *config.Config, logger *logger.Logger) (*OCRDetector, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(config.OCRLanguage); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	logger.Info("OCR detector initialized (language %s)", config.OCRLanguage)
	return &OCRDetector{client: client, logger: logger}, nil
}

// Detect returns one detection per recognized text line, in reading order,
// with boxes in frame coordinates and confidence on a [0,1] scale.
func (d *OCRDetector) Detect(ctx context.Context, frame model.Frame) ([]model.Detection, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("frame %d is empty", frame.Seq)
	}

	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap frame: %w", err)
	}
	defer mat.Close()

	processed, scale, err := preprocess(mat)
	if err != nil {
		return nil, err
	}
	defer processed.Close()

	buf, err := gocv.IMEncode(".png", processed)
	if err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return nil, fmt.Errorf("failed to set OCR image: %w", err)
	}

	boxes, err := d.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("failed to get bounding boxes: %w", err)
	}

	detections := make([]model.Detection, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		detections = append(detections, model.Detection{
			Text:       text,
			Box:        unscaleBox(box.Box, scale),
			Confidence: box.Confidence / 100,
		})
	}
	return detections, nil
}

// Close releases the Tesseract client.
func (d *OCRDetector) Close() error {
	return d.client.Close()
}

// preprocess converts to grayscale, upscales, and applies an adaptive
// threshold. The caller closes the returned Mat.
func preprocess(src gocv.Mat) (gocv.Mat, float64, error) {
	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(src, &gray, gocv.ColorBGRToGray); err != nil {
		return gocv.Mat{}, 0, fmt.Errorf("failed to convert image to grayscale: %w", err)
	}

	scale := upscaleFactor(gray.Cols(), gray.Rows())
	resized := gocv.NewMat()
	defer resized.Close()
	size := image.Pt(int(float64(gray.Cols())*scale), int(float64(gray.Rows())*scale))
	if err := gocv.Resize(gray, &resized, size, 0, 0, gocv.InterpolationLinear); err != nil {
		return gocv.Mat{}, 0, fmt.Errorf("failed to resize image: %w", err)
	}

	thresholded := gocv.NewMat()
	if err := gocv.AdaptiveThreshold(resized, &thresholded, 255, gocv.AdaptiveThresholdMean, gocv.ThresholdBinary, 11, 2); err != nil {
		thresholded.Close()
		return gocv.Mat{}, 0, fmt.Errorf("failed to threshold image: %w", err)
	}
	return thresholded, scale, nil
}

func upscaleFactor(width, height int) float64 {
	scale := ocrUpscale
	if float64(width)*scale > ocrMaxDimension || float64(height)*scale > ocrMaxDimension {
		scale = math.Min(float64(ocrMaxDimension)/float64(width), float64(ocrMaxDimension)/float64(height))
	}
	return scale
}

// unscaleBox maps a rectangle in the preprocessed image back to frame pixels.
func unscaleBox(r image.Rectangle, scale float64) model.BoundingBox {
	x0 := int(math.Floor(float64(r.Min.X) / scale))
	y0 := int(math.Floor(float64(r.Min.Y) / scale))
	x1 := int(math.Ceil(float64(r.Max.X) / scale))
	y1 := int(math.Ceil(float64(r.Max.Y) / scale))
	return model.BoundingBox{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}
