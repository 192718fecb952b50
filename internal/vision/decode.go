package vision

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrMalformedPacket is returned for packets that are not valid
	// protobuf wire data.
	ErrMalformedPacket = errors.New("vision: malformed packet")
	// ErrNoDetection is returned for wrapper packets that carry no
	// detection frame, e.g. geometry-only packets.
	ErrNoDetection = errors.New("vision: packet has no detection frame")
)

// Field numbers of the SSL-Vision wrapper and detection messages.
const (
	wrapperDetection = 1
	wrapperGeometry  = 2

	frameNumber   = 1
	frameTCapture = 2
	frameTSent    = 3
	frameCameraID = 4
	frameBalls    = 5
	frameYellow   = 6
	frameBlue     = 7

	ballConfidence = 1
	ballArea       = 2
	ballX          = 3
	ballY          = 4
	ballZ          = 5
	ballPixelX     = 6
	ballPixelY     = 7

	robotConfidence  = 1
	robotID          = 2
	robotX           = 3
	robotY           = 4
	robotOrientation = 5
	robotPixelX      = 6
	robotPixelY      = 7
	robotHeight      = 8
)

// DecodeWrapper decodes an SSL-Vision wrapper packet and returns its
// detection frame. Robots without an id get ID -1.
func DecodeWrapper(b []byte) (*Frame, error) {
	var frame *Frame
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, _ uint64) error {
		if num != wrapperDetection || typ != protowire.BytesType {
			return nil
		}
		f, err := decodeFrame(v)
		if err != nil {
			return err
		}
		frame = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return nil, ErrNoDetection
	}
	return frame, nil
}

func decodeFrame(b []byte) (*Frame, error) {
	f := &Frame{}
	err := walk(b, func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error {
		switch {
		case num == frameNumber && typ == protowire.VarintType:
			f.FrameNumber = uint32(scalar)
		case num == frameTCapture && typ == protowire.Fixed64Type:
			f.CaptureTime = math.Float64frombits(scalar)
		case num == frameTSent && typ == protowire.Fixed64Type:
			f.SentTime = math.Float64frombits(scalar)
		case num == frameCameraID && typ == protowire.VarintType:
			f.CameraID = uint32(scalar)
		case num == frameBalls && typ == protowire.BytesType:
			ball, err := decodeBall(v)
			if err != nil {
				return err
			}
			f.Balls = append(f.Balls, ball)
		case (num == frameYellow || num == frameBlue) && typ == protowire.BytesType:
			robot, err := decodeRobot(v)
			if err != nil {
				return err
			}
			if num == frameYellow {
				f.Yellow = append(f.Yellow, robot)
			} else {
				f.Blue = append(f.Blue, robot)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("detection frame: %w", err)
	}
	return f, nil
}

func decodeBall(b []byte) (BallDetection, error) {
	var d BallDetection
	err := walk(b, func(num protowire.Number, typ protowire.Type, _ []byte, scalar uint64) error {
		if num == ballArea && typ == protowire.VarintType {
			d.Area = uint32(scalar)
			return nil
		}
		if typ != protowire.Fixed32Type {
			return nil
		}
		v := math.Float32frombits(uint32(scalar))
		switch num {
		case ballConfidence:
			d.Confidence = v
		case ballX:
			d.X = float64(v)
		case ballY:
			d.Y = float64(v)
		case ballZ:
			d.Z = float64(v)
		case ballPixelX:
			d.PixelX = v
		case ballPixelY:
			d.PixelY = v
		}
		return nil
	})
	if err != nil {
		return BallDetection{}, fmt.Errorf("ball: %w", err)
	}
	return d, nil
}

func decodeRobot(b []byte) (RobotDetection, error) {
	d := RobotDetection{ID: -1}
	err := walk(b, func(num protowire.Number, typ protowire.Type, _ []byte, scalar uint64) error {
		if num == robotID && typ == protowire.VarintType {
			d.ID = int(scalar)
			return nil
		}
		if typ != protowire.Fixed32Type {
			return nil
		}
		v := math.Float32frombits(uint32(scalar))
		switch num {
		case robotConfidence:
			d.Confidence = v
		case robotX:
			d.X = float64(v)
		case robotY:
			d.Y = float64(v)
		case robotOrientation:
			d.Orientation = float64(v)
		case robotPixelX:
			d.PixelX = v
		case robotPixelY:
			d.PixelY = v
		case robotHeight:
			d.Height = float64(v)
		}
		return nil
	})
	if err != nil {
		return RobotDetection{}, fmt.Errorf("robot: %w", err)
	}
	return d, nil
}

// walk calls fn for every field in a message. For length-delimited fields
// v holds the bytes; for varint and fixed fields scalar holds the value.
// Unknown wire types are skipped.
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, v []byte, scalar uint64) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedPacket, protowire.ParseError(n))
		}
		b = b[n:]

		var (
			v      []byte
			scalar uint64
		)
		switch typ {
		case protowire.VarintType:
			scalar, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var x uint32
			x, n = protowire.ConsumeFixed32(b)
			scalar = uint64(x)
		case protowire.Fixed64Type:
			scalar, n = protowire.ConsumeFixed64(b)
		case protowire.BytesType:
			v, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return fmt.Errorf("%w: field %d: %v", ErrMalformedPacket, num, protowire.ParseError(n))
		}
		b = b[n:]

		if err := fn(num, typ, v, scalar); err != nil {
			return err
		}
	}
	return nil
}

// EncodeWrapper encodes f as an SSL-Vision wrapper packet, the inverse of
// DecodeWrapper. Tests use it to build packets from frames.
func EncodeWrapper(f *Frame) []byte {
	var frame []byte
	frame = protowire.AppendTag(frame, frameNumber, protowire.VarintType)
	frame = protowire.AppendVarint(frame, uint64(f.FrameNumber))
	frame = protowire.AppendTag(frame, frameTCapture, protowire.Fixed64Type)
	frame = protowire.AppendFixed64(frame, math.Float64bits(f.CaptureTime))
	frame = protowire.AppendTag(frame, frameTSent, protowire.Fixed64Type)
	frame = protowire.AppendFixed64(frame, math.Float64bits(f.SentTime))
	frame = protowire.AppendTag(frame, frameCameraID, protowire.VarintType)
	frame = protowire.AppendVarint(frame, uint64(f.CameraID))

	for _, b := range f.Balls {
		var m []byte
		m = appendFloat(m, ballConfidence, b.Confidence)
		if b.Area > 0 {
			m = protowire.AppendTag(m, ballArea, protowire.VarintType)
			m = protowire.AppendVarint(m, uint64(b.Area))
		}
		m = appendFloat(m, ballX, float32(b.X))
		m = appendFloat(m, ballY, float32(b.Y))
		m = appendFloat(m, ballZ, float32(b.Z))
		m = appendFloat(m, ballPixelX, b.PixelX)
		m = appendFloat(m, ballPixelY, b.PixelY)
		frame = protowire.AppendTag(frame, frameBalls, protowire.BytesType)
		frame = protowire.AppendBytes(frame, m)
	}
	frame = appendRobots(frame, frameYellow, f.Yellow)
	frame = appendRobots(frame, frameBlue, f.Blue)

	var out []byte
	out = protowire.AppendTag(out, wrapperDetection, protowire.BytesType)
	out = protowire.AppendBytes(out, frame)
	return out
}

func appendRobots(b []byte, field protowire.Number, robots []RobotDetection) []byte {
	for _, r := range robots {
		var m []byte
		m = appendFloat(m, robotConfidence, r.Confidence)
		if r.ID >= 0 {
			m = protowire.AppendTag(m, robotID, protowire.VarintType)
			m = protowire.AppendVarint(m, uint64(r.ID))
		}
		m = appendFloat(m, robotX, float32(r.X))
		m = appendFloat(m, robotY, float32(r.Y))
		m = appendFloat(m, robotOrientation, float32(r.Orientation))
		m = appendFloat(m, robotPixelX, r.PixelX)
		m = appendFloat(m, robotPixelY, r.PixelY)
		m = appendFloat(m, robotHeight, float32(r.Height))
		b = protowire.AppendTag(b, field, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b
}

func appendFloat(b []byte, num protowire.Number, v float32) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed32Type)
	return protowire.AppendFixed32(b, math.Float32bits(v))
}
