// Package units provides the canonical length, angle and time units of the
// world model and the conversions applied where raw detections enter it.
//
// Canonical units: metres for length, degrees for published orientation,
// int64 microseconds for timestamps.
package units

import "math"

// Conversion constants
const (
	MillimetresPerMetre = 1000.0
	MicrosPerSecond     = 1e6

	RadiansToDegrees = 180.0 / math.Pi
	DegreesToRadians = math.Pi / 180.0
)

// MillimetresToMetres converts a detection-unit length into metres.
func MillimetresToMetres(mm float64) float64 {
	return mm / MillimetresPerMetre
}

// PointFromMillimetres builds a canonical Point from millimetre coordinates.
func PointFromMillimetres(x, y float64) Point {
	return Point{X: MillimetresToMetres(x), Y: MillimetresToMetres(y)}
}

// SecondsToMicros scales an external capture time in seconds into the
// internal microsecond clock. Sub-microsecond fractions are truncated.
func SecondsToMicros(s float64) int64 {
	return int64(s * MicrosPerSecond)
}

// MicrosToSeconds converts an internal timestamp or interval to seconds.
func MicrosToSeconds(us int64) float64 {
	return float64(us) / MicrosPerSecond
}

// NormalizeDegrees wraps an angle into (-180, 180].
func NormalizeDegrees(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg <= -180 {
		deg += 360
	} else if deg > 180 {
		deg -= 360
	}
	return deg
}
