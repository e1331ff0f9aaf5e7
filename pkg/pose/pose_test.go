package pose

import (
	"testing"

	"github.com/gwillem/armlink/pkg/gesture"
)

func TestFromCOCO(t *testing.T) {
	kp := make([]gesture.Point, COCOKeypoints)
	found := make([]bool, COCOKeypoints)
	set := func(i int, x, y float64) {
		kp[i] = gesture.Point{X: x, Y: y}
		found[i] = true
	}
	set(COCORightShoulder, 0.4, 0.5)
	set(COCORightWrist, 0.3, 0.2)
	set(COCOLeftShoulder, 0.6, 0.5)
	set(COCOLeftWrist, 0.8, 0.5)

	lm := FromCOCO(kp, found)
	if lm == nil {
		t.Fatal("FromCOCO returned nil with all arm joints present")
	}

	right := lm.Arm(gesture.RightArm)
	if right.Shoulder != kp[COCORightShoulder] || right.Wrist != kp[COCORightWrist] {
		t.Errorf("right arm = %+v", right)
	}
	left := lm.Arm(gesture.LeftArm)
	if left.Shoulder != kp[COCOLeftShoulder] || left.Wrist != kp[COCOLeftWrist] {
		t.Errorf("left arm = %+v", left)
	}

	found[COCOLeftWrist] = false
	if FromCOCO(kp, found) != nil {
		t.Error("FromCOCO accepted a missing wrist")
	}
	if FromCOCO(kp[:5], found[:5]) != nil {
		t.Error("FromCOCO accepted a short keypoint set")
	}
}
