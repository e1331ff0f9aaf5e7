package robot

import "time"

// Pose is a set of servo targets in degrees.
type Pose map[ServoName]float64

// RigConfig holds configuration for the servo rig.
type RigConfig struct {
	Port        string      `json:"port"`
	Calibration Calibration `json:"calibration,omitempty"`
	StepDeg     float64     `json:"step_deg"` // travel per tick while a direction is held
	HomeDeg     float64     `json:"home_deg"` // rotation servos' rest angle
	Hz          int         `json:"hz"`
	GestureA    Pose        `json:"gesture_a,omitempty"`
	GestureB    Pose        `json:"gesture_b,omitempty"`
}

// DefaultRigConfig returns the rig defaults.
func DefaultRigConfig() RigConfig {
	return RigConfig{
		Calibration: DefaultCalibration(),
		StepDeg:     2,
		HomeDeg:     110,
		Hz:          20,
		GestureA:    Pose{LinearA: 150, LinearB: 90, RotateA: 150, RotateB: 90},
		GestureB:    Pose{LinearA: 30, LinearB: 90, RotateA: 30, RotateB: 90},
	}
}

// IsCalibrated returns true if the rig has calibration data for every servo.
func (c *RigConfig) IsCalibrated() bool {
	for _, name := range AllServos() {
		if _, ok := c.Calibration[name]; !ok {
			return false
		}
	}
	return true
}

func (c *RigConfig) interval() time.Duration {
	if c.Hz <= 0 {
		return 50 * time.Millisecond
	}
	return time.Second / time.Duration(c.Hz)
}
