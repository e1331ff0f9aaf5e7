package vision

import (
	"math"
	"testing"

	"github.com/gwillem/armlink/pkg/pose"
)

func TestPeaks(t *testing.T) {
	const h, w = 4, 5
	data := make([]float32, pose.COCOKeypoints*h*w)
	set := func(k, y, x int, v float32) {
		data[k*h*w+y*w+x] = v
	}

	set(pose.COCORightShoulder, 1, 1, 0.9)
	set(pose.COCORightShoulder, 3, 4, 0.5) // weaker second peak
	set(pose.COCOLeftWrist, 3, 0, 0.05)    // below threshold

	kp, found := peaks(data, h, w, 0.1)

	if !found[pose.COCORightShoulder] {
		t.Fatal("right shoulder not found")
	}
	got := kp[pose.COCORightShoulder]
	if math.Abs(got.X-0.3) > 1e-9 || math.Abs(got.Y-0.375) > 1e-9 {
		t.Errorf("right shoulder at %+v, want (0.3, 0.375)", got)
	}
	if found[pose.COCOLeftWrist] {
		t.Error("keypoint below threshold reported as found")
	}
	if pose.FromCOCO(kp, found) != nil {
		t.Error("FromCOCO returned landmarks with missing arm joints")
	}
}

func TestPeaks_ShortOutput(t *testing.T) {
	kp, found := peaks(make([]float32, 3), 2, 2, 0.1)
	if len(kp) != pose.COCOKeypoints || len(found) != pose.COCOKeypoints {
		t.Fatalf("got %d points", len(kp))
	}
	for k, ok := range found {
		if ok {
			t.Errorf("keypoint %d found in truncated output", k)
		}
	}
}
