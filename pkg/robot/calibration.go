package robot

import "math"

// ServoCalibration maps a servo's raw position range onto 0-180 degrees.
type ServoCalibration struct {
	ID        int `json:"id"`
	DriveMode int `json:"drive_mode"` // 1 inverts the direction
	RangeMin  int `json:"range_min"`
	RangeMax  int `json:"range_max"`
}

// Calibration holds calibration data for all servos, keyed by servo name.
type Calibration map[ServoName]ServoCalibration

// DefaultCalibration assumes STS servos (4096 counts per turn) centered at mid travel.
func DefaultCalibration() Calibration {
	cal := make(Calibration, 4)
	for i, name := range AllServos() {
		cal[name] = ServoCalibration{ID: i + 1, RangeMin: 1024, RangeMax: 3072}
	}
	return cal
}

// Degrees converts a raw servo position to degrees in [0, 180].
func (c ServoCalibration) Degrees(raw int) float64 {
	rangeSize := float64(c.RangeMax - c.RangeMin)
	if rangeSize == 0 {
		return 0
	}
	deg := float64(raw-c.RangeMin) / rangeSize * MaxDeg
	if c.DriveMode == 1 {
		deg = MaxDeg - deg
	}
	return deg
}

// Raw converts degrees to a raw servo position. Degrees outside [0, 180] are clamped.
func (c ServoCalibration) Raw(deg float64) int {
	deg = clampDeg(deg)
	if c.DriveMode == 1 {
		deg = MaxDeg - deg
	}
	rangeSize := float64(c.RangeMax - c.RangeMin)
	return int(math.Round(deg/MaxDeg*rangeSize)) + c.RangeMin
}

// ServoIDs returns the servo IDs for all servos in the calibration.
func (c Calibration) ServoIDs() []int {
	ids := make([]int, 0, len(c))
	// Use AllServos() to ensure consistent ordering
	for _, name := range AllServos() {
		if sc, ok := c[name]; ok {
			ids = append(ids, sc.ID)
		}
	}
	return ids
}

// ByID returns servo name and calibration for a given servo ID.
func (c Calibration) ByID(id int) (ServoName, ServoCalibration, bool) {
	for name, sc := range c {
		if sc.ID == id {
			return name, sc, true
		}
	}
	return "", ServoCalibration{}, false
}

func clampDeg(deg float64) float64 {
	return math.Max(0, math.Min(MaxDeg, deg))
}
