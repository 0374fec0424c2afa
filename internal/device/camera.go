// Package device implements capture.Device on top of OpenCV.
package device

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"arlens/internal/model"
)

var errEmptyRead = errors.New("device returned an empty frame")

// CameraDevice reads frames from a local camera index, a video file, or a stream URL.
type CameraDevice struct {
	id     string
	width  int
	height int
	fps    float64

	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// NewCameraDevice creates a camera device; nothing is opened until Open.
func NewCameraDevice(id string, width, height int, fps float64) *CameraDevice {
	return &CameraDevice{id: id, width: width, height: height, fps: fps}
}

// Open opens the capture and requests the configured resolution and rate.
func (d *CameraDevice) Open() error {
	capture, err := gocv.OpenVideoCapture(d.id)
	if err != nil {
		return fmt.Errorf("failed to open video capture %s: %w", d.id, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("video capture %s is not opened", d.id)
	}

	capture.Set(gocv.VideoCaptureFrameWidth, float64(d.width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(d.height))
	capture.Set(gocv.VideoCaptureFPS, d.fps)
	// Keep the driver queue short so reads return the freshest frame.
	capture.Set(gocv.VideoCaptureBufferSize, 1)

	d.capture = capture
	d.mat = gocv.NewMat()
	return nil
}

// Read grabs the next frame and copies its pixels out of OpenCV memory.
func (d *CameraDevice) Read() (model.Frame, error) {
	if d.capture == nil {
		return model.Frame{}, errors.New("camera device is not open")
	}
	if ok := d.capture.Read(&d.mat); !ok {
		return model.Frame{}, fmt.Errorf("failed to read frame from %s", d.id)
	}
	if d.mat.Empty() {
		return model.Frame{}, errEmptyRead
	}
	return frameFromMat(d.mat)
}

// Close releases the capture and the read buffer.
func (d *CameraDevice) Close() error {
	if d.capture == nil {
		return nil
	}
	err := d.capture.Close()
	d.mat.Close()
	d.capture = nil
	return err
}

// IsUDP reports whether a device identifier names the UDP JPEG receiver.
func IsUDP(id string) bool {
	return strings.HasPrefix(id, "udp://")
}

// frameFromMat converts a decoded image to a packed 3-channel BGR frame.
func frameFromMat(mat gocv.Mat) (model.Frame, error) {
	src := mat
	if mat.Channels() != 3 {
		converted := gocv.NewMat()
		defer converted.Close()

		code := gocv.ColorGrayToBGR
		if mat.Channels() == 4 {
			code = gocv.ColorBGRAToBGR
		}
		if err := gocv.CvtColor(mat, &converted, code); err != nil {
			return model.Frame{}, fmt.Errorf("failed to convert frame to BGR: %w", err)
		}
		src = converted
	}

	return model.Frame{
		Data:       src.ToBytes(),
		Width:      src.Cols(),
		Height:     src.Rows(),
		Channels:   3,
		CapturedAt: time.Now(),
	}, nil
}
