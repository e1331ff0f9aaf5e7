// Package robot drives the rig's feetech servos from decoded motion commands.
package robot

// ServoName identifies a servo on the rig.
type ServoName string

// Servo names for the four-servo rig. The left operator arm moves the linear axes, the right
// arm the rotations.
const (
	LinearA ServoName = "linear_a" // forward/back
	LinearB ServoName = "linear_b" // left/right
	RotateA ServoName = "rotate_a" // up/down
	RotateB ServoName = "rotate_b" // turn left/right
)

// AllServos returns all servo names in order (matching servo IDs 1-4).
func AllServos() []ServoName {
	return []ServoName{
		LinearA,
		LinearB,
		RotateA,
		RotateB,
	}
}

// MaxDeg is the upper end of every servo's travel; the lower end is 0.
const MaxDeg = 180.0
