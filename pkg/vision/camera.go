// Package vision provides the gocv camera and pose model used by the teleop pipeline.
package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"github.com/gwillem/armlink/pkg/pose"
)

// ErrCapture is returned when the camera keeps delivering no frames.
var ErrCapture = errors.New("camera delivered no frames")

// Frame wraps a captured image.
type Frame struct {
	Mat gocv.Mat
}

// Close releases the image.
func (f *Frame) Close() error {
	return f.Mat.Close()
}

// CameraConfig holds camera settings.
type CameraConfig struct {
	Device      int `json:"device"`
	Width       int `json:"width"`
	Height      int `json:"height"`
	MaxFailures int `json:"max_failures"` // consecutive empty reads before giving up
}

// DefaultCameraConfig returns settings for the first webcam at 640x480.
func DefaultCameraConfig() CameraConfig {
	return CameraConfig{
		Width:       640,
		Height:      480,
		MaxFailures: 30,
	}
}

// Camera reads frames from a video device.
type Camera struct {
	cap *gocv.VideoCapture
	cfg CameraConfig
}

var _ pose.Source = (*Camera)(nil)

// OpenCamera opens the configured video device.
func OpenCamera(cfg CameraConfig) (*Camera, error) {
	vc, err := gocv.OpenVideoCapture(cfg.Device)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", cfg.Device, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("open camera %d: device not available", cfg.Device)
	}
	if cfg.Width > 0 {
		vc.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	}
	if cfg.Height > 0 {
		vc.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 1
	}
	return &Camera{cap: vc, cfg: cfg}, nil
}

// Read returns the next frame. Empty reads are retried up to MaxFailures times.
func (c *Camera) Read(ctx context.Context) (pose.Frame, error) {
	for failures := 0; failures < c.cfg.MaxFailures; failures++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		mat := gocv.NewMat()
		if ok := c.cap.Read(&mat); ok && !mat.Empty() {
			return &Frame{Mat: mat}, nil
		}
		mat.Close()
		time.Sleep(10 * time.Millisecond)
	}
	return nil, ErrCapture
}

// Close releases the device.
func (c *Camera) Close() error {
	return c.cap.Close()
}
