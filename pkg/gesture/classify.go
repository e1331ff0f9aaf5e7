package gesture

import "math"

// Thresholds are the geometric limits of the classification regions, in normalized units.
type Thresholds struct {
	Center  float64 `json:"center"`   // |dx| and |dy| below this: wrist held at the shoulder
	RaiseDY float64 `json:"raise_dy"` // dy below this (negative) counts as raised
	RaiseDX float64 `json:"raise_dx"` // ...as long as |dx| stays below this
	Lateral float64 `json:"lateral"`  // |dx| beyond this is a sideways gesture
}

// DefaultThresholds returns the tuned thresholds for a webcam at arm's length.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Center:  0.05,
		RaiseDY: -0.1,
		RaiseDX: 0.1,
		Lateral: 0.15,
	}
}

// Classifier maps arm samples to gesture codes. The zero value is not useful; use NewClassifier.
type Classifier struct {
	Thresholds Thresholds
	// Mirror swaps Left and Right, for cameras that deliver a mirrored image.
	Mirror bool
}

// NewClassifier returns a classifier using the default thresholds.
func NewClassifier(mirror bool) Classifier {
	return Classifier{Thresholds: DefaultThresholds(), Mirror: mirror}
}

// Classify returns the gesture code for one arm. Rules are tested in order and the first
// match wins, since the regions overlap at their boundaries.
func (c Classifier) Classify(arm Arm, s Sample) Code {
	t := c.Thresholds
	dx, dy := s.Delta()

	if math.Abs(dy) < t.Center && math.Abs(dx) < t.Center {
		return Back
	}
	if dy < t.RaiseDY && math.Abs(dx) < t.RaiseDX {
		return Raised
	}

	// Unmirrored image: the operator's right side appears at lower x.
	toRight, toLeft := Right, Left
	if c.Mirror {
		toRight, toLeft = Left, Right
	}
	if dx < -t.Lateral {
		return toRight
	}
	if dx > t.Lateral {
		return toLeft
	}
	return Still
}

// Classify uses the default thresholds without mirroring.
func Classify(arm Arm, s Sample) Code {
	return NewClassifier(false).Classify(arm, s)
}
