// Package gesture classifies one arm's shoulder/wrist landmarks into a discrete gesture code.
package gesture

import "fmt"

// Arm identifies one of the operator's arms.
type Arm int

const (
	LeftArm Arm = iota
	RightArm
)

// Arms returns both arms in display order.
func Arms() []Arm {
	return []Arm{LeftArm, RightArm}
}

func (a Arm) String() string {
	switch a {
	case LeftArm:
		return "left"
	case RightArm:
		return "right"
	default:
		return fmt.Sprintf("arm(%d)", int(a))
	}
}

// Valid reports whether a is LeftArm or RightArm.
func (a Arm) Valid() bool {
	return a == LeftArm || a == RightArm
}

// ParseArm parses "left"/"right" (or "l"/"r").
func ParseArm(s string) (Arm, error) {
	switch s {
	case "left", "l", "L":
		return LeftArm, nil
	case "right", "r", "R":
		return RightArm, nil
	}
	return 0, fmt.Errorf("unknown arm %q", s)
}

// Code is the discrete gesture of one arm in one detection cycle.
type Code int

// Gesture codes. Still is the zero value so an unset arm is at rest.
const (
	Still  Code = iota
	Raised      // forward on the left arm, up on the right arm
	Left
	Right
	Back // back on the left arm, down on the right arm
)

// Codes returns every gesture code in wire-digit order.
func Codes() []Code {
	return []Code{Still, Raised, Left, Right, Back}
}

func (c Code) String() string {
	switch c {
	case Still:
		return "still"
	case Raised:
		return "raised"
	case Left:
		return "left"
	case Right:
		return "right"
	case Back:
		return "back"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Valid reports whether c is one of the defined codes.
func (c Code) Valid() bool {
	return c >= Still && c <= Back
}

var labels = map[Arm][5]string{
	LeftArm:  {"Still", "Forward", "Left", "Right", "Back"},
	RightArm: {"Still", "Up", "Left", "Right", "Down"},
}

// Label returns the operator-facing name of c for the given arm.
func (c Code) Label(arm Arm) string {
	l, ok := labels[arm]
	if !ok || !c.Valid() {
		return "?"
	}
	return l[c]
}

// Point is a landmark in normalized image coordinates: x grows to the right, y grows downward.
type Point struct {
	X, Y float64
}

// Sample holds the two joints of one arm used for classification.
type Sample struct {
	Shoulder Point
	Wrist    Point
}

// Delta returns wrist minus shoulder.
func (s Sample) Delta() (dx, dy float64) {
	return s.Wrist.X - s.Shoulder.X, s.Wrist.Y - s.Shoulder.Y
}
