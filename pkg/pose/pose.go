// Package pose defines the boundary to the camera and the pose-estimation model.
package pose

import (
	"context"

	"github.com/gwillem/armlink/pkg/gesture"
)

// NumLandmarks is the size of a full body landmark set.
const NumLandmarks = 33

// Landmark indices consumed by the classifier (MediaPipe body topology).
const (
	LeftShoulder  = 11
	RightShoulder = 12
	LeftWrist     = 15
	RightWrist    = 16
)

// Landmarks is one detected person, positions normalized to the image size.
type Landmarks [NumLandmarks]gesture.Point

// Arm returns the shoulder/wrist sample of one arm.
func (l *Landmarks) Arm(arm gesture.Arm) gesture.Sample {
	if arm == gesture.RightArm {
		return gesture.Sample{Shoulder: l[RightShoulder], Wrist: l[RightWrist]}
	}
	return gesture.Sample{Shoulder: l[LeftShoulder], Wrist: l[LeftWrist]}
}

// COCO keypoint indices as produced by OpenPose-style body models.
const (
	COCORightShoulder = 2
	COCORightWrist    = 4
	COCOLeftShoulder  = 5
	COCOLeftWrist     = 7
	COCOKeypoints     = 18
)

// FromCOCO converts an 18-keypoint COCO set into Landmarks. Only the arm joints are mapped.
// It returns nil if any of them is missing.
func FromCOCO(kp []gesture.Point, found []bool) *Landmarks {
	if len(kp) < COCOKeypoints || len(found) < COCOKeypoints {
		return nil
	}
	for _, i := range []int{COCORightShoulder, COCORightWrist, COCOLeftShoulder, COCOLeftWrist} {
		if !found[i] {
			return nil
		}
	}
	var l Landmarks
	l[LeftShoulder] = kp[COCOLeftShoulder]
	l[LeftWrist] = kp[COCOLeftWrist]
	l[RightShoulder] = kp[COCORightShoulder]
	l[RightWrist] = kp[COCORightWrist]
	return &l
}

// Frame is a captured image. The holder must Close it once done.
type Frame interface {
	Close() error
}

// Source produces camera frames.
type Source interface {
	// Read blocks until the next frame is available.
	Read(ctx context.Context) (Frame, error)
	Close() error
}

// Oracle estimates body landmarks from a frame.
type Oracle interface {
	// Estimate returns nil landmarks when no person is detected.
	Estimate(frame Frame) (*Landmarks, error)
	Close() error
}
