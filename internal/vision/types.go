// Package vision receives overhead-camera detection packets, decodes them
// and hands complete frames to the world model.
//
// Positions in this package stay in the camera system's native units
// (millimetres, radians, seconds). Conversion to metres and microseconds
// happens once, inside the world model.
package vision

// BallDetection is one ball blob seen by a camera.
type BallDetection struct {
	Confidence float32
	Area       uint32  // pixels
	X, Y       float64 // millimetres
	Z          float64 // millimetres, zero unless the vision system estimates height
	PixelX     float32
	PixelY     float32
}

// RobotDetection is one robot pattern seen by a camera.
type RobotDetection struct {
	Confidence  float32
	ID          int
	X, Y        float64 // millimetres
	Orientation float64 // radians
	PixelX      float32
	PixelY      float32
	Height      float64 // millimetres
}

// Frame is one camera's detection frame.
type Frame struct {
	FrameNumber uint32
	CaptureTime float64 // seconds, vision host clock
	SentTime    float64 // seconds, vision host clock
	CameraID    uint32
	Balls       []BallDetection
	Yellow      []RobotDetection
	Blue        []RobotDetection
}

// Teams splits the frame's robots into our own and the opponent's,
// given our team color.
func (f *Frame) Teams(blueTeam bool) (self, opp []RobotDetection) {
	if blueTeam {
		return f.Blue, f.Yellow
	}
	return f.Yellow, f.Blue
}

// DetectionCount returns the number of balls plus robots in the frame.
func (f *Frame) DetectionCount() int {
	return len(f.Balls) + len(f.Yellow) + len(f.Blue)
}
