package vision

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/gwillem/armlink/pkg/gesture"
	"github.com/gwillem/armlink/pkg/pose"
)

// OpenPoseConfig holds pose model configuration.
type OpenPoseConfig struct {
	ModelPath   string  `json:"model_path"`  // caffemodel or onnx
	ConfigPath  string  `json:"config_path"` // prototxt, empty for onnx
	InputWidth  int     `json:"input_width"`
	InputHeight int     `json:"input_height"`
	Threshold   float32 `json:"threshold"` // minimum heatmap confidence per keypoint
}

// DefaultOpenPoseConfig returns defaults for the COCO body model.
func DefaultOpenPoseConfig() OpenPoseConfig {
	return OpenPoseConfig{
		ModelPath:   "models/pose_iter_440000.caffemodel",
		ConfigPath:  "models/pose_deploy_linevec.prototxt",
		InputWidth:  368,
		InputHeight: 368,
		Threshold:   0.1,
	}
}

// OpenPose estimates COCO keypoints with an OpenPose network.
type OpenPose struct {
	net       gocv.Net
	cfg       OpenPoseConfig
	mu        sync.Mutex
	inputSize image.Point
}

var _ pose.Oracle = (*OpenPose)(nil)

// NewOpenPose loads the pose network.
func NewOpenPose(cfg OpenPoseConfig) (*OpenPose, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load pose model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &OpenPose{
		net:       net,
		cfg:       cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Estimate runs the network on a camera frame. It returns nil when the arm joints are not
// all visible.
func (o *OpenPose) Estimate(frame pose.Frame) (*pose.Landmarks, error) {
	f, ok := frame.(*Frame)
	if !ok {
		return nil, fmt.Errorf("unsupported frame type %T", frame)
	}
	if f.Mat.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	blob := gocv.BlobFromImage(f.Mat, 1.0/255.0, o.inputSize, gocv.NewScalar(0, 0, 0, 0), false, false)
	defer blob.Close()

	o.net.SetInput(blob, "")
	out := o.net.Forward("")
	defer out.Close()

	// Output shape: [1, channels, H, W]; the first 18 channels are keypoint heatmaps.
	size := out.Size()
	if len(size) != 4 || size[1] < pose.COCOKeypoints {
		return nil, fmt.Errorf("unexpected output shape %v", size)
	}
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}

	kp, found := peaks(data, size[2], size[3], o.cfg.Threshold)
	return pose.FromCOCO(kp, found), nil
}

// peaks finds the strongest location of each keypoint heatmap, normalized to [0, 1].
func peaks(data []float32, h, w int, threshold float32) ([]gesture.Point, []bool) {
	kp := make([]gesture.Point, pose.COCOKeypoints)
	found := make([]bool, pose.COCOKeypoints)
	plane := h * w

	for k := 0; k < pose.COCOKeypoints; k++ {
		if (k+1)*plane > len(data) {
			break
		}
		heat := data[k*plane : (k+1)*plane]
		best, at := float32(0), -1
		for i, v := range heat {
			if v > best {
				best, at = v, i
			}
		}
		if at < 0 || best < threshold {
			continue
		}
		kp[k] = gesture.Point{
			X: (float64(at%w) + 0.5) / float64(w),
			Y: (float64(at/w) + 0.5) / float64(h),
		}
		found[k] = true
	}
	return kp, found
}

// Close releases the network.
func (o *OpenPose) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.net.Close()
}
