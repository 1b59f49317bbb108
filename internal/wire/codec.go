// Package wire converts between raw UDP payloads and the typed messages
// exchanged with the external environment process.
//
// Inbound control signals and outbound status signals are both single bytes
// but are kept as distinct types: they travel in opposite directions and
// their values are assigned independently.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// PoseSize is the exact wire size of a TelemetryPose datagram.
const PoseSize = 24

// ErrMalformedPacket is returned when a payload does not have the layout
// required by its channel.
var ErrMalformedPacket = errors.New("malformed packet")

// ControlSignal is a command received on the control channel.
type ControlSignal byte

const (
	StartEnvironment ControlSignal = 0x01
	StopEnvironment  ControlSignal = 0x02
)

func (c ControlSignal) String() string {
	switch c {
	case StartEnvironment:
		return "start_environment"
	case StopEnvironment:
		return "stop_environment"
	default:
		return fmt.Sprintf("control(0x%02x)", byte(c))
	}
}

// StatusSignal is a simulation lifecycle notification sent on the status
// channel.
type StatusSignal byte

const (
	SimulationStarted     StatusSignal = 0x01
	SimulationStopped     StatusSignal = 0x02
	SimulationInitialized StatusSignal = 0x04
)

func (s StatusSignal) String() string {
	switch s {
	case SimulationStarted:
		return "simulation_started"
	case SimulationStopped:
		return "simulation_stopped"
	case SimulationInitialized:
		return "simulation_initialized"
	default:
		return fmt.Sprintf("status(0x%02x)", byte(s))
	}
}

// TelemetryPose is a vehicle pose as sent on the telemetry channel.
type TelemetryPose struct {
	Latitude  float32 `json:"latitude"`
	Longitude float32 `json:"longitude"`
	Altitude  float32 `json:"altitude"`
	Roll      float32 `json:"roll"`
	Pitch     float32 `json:"pitch"`
	Yaw       float32 `json:"yaw"`
}

// DecodeControlByte maps a received control byte to its signal. The second
// return value is false for unrecognised bytes.
func DecodeControlByte(b byte) (ControlSignal, bool) {
	switch c := ControlSignal(b); c {
	case StartEnvironment, StopEnvironment:
		return c, true
	default:
		return 0, false
	}
}

// EncodeControl returns the single-byte wire form of c.
func EncodeControl(c ControlSignal) [1]byte {
	return [1]byte{byte(c)}
}

// DecodeStatusByte maps a received status byte to its signal.
func DecodeStatusByte(b byte) (StatusSignal, bool) {
	switch s := StatusSignal(b); s {
	case SimulationStarted, SimulationStopped, SimulationInitialized:
		return s, true
	default:
		return 0, false
	}
}

// EncodeStatus returns the single-byte wire form of s.
func EncodeStatus(s StatusSignal) [1]byte {
	return [1]byte{byte(s)}
}

// DecodePose reads six little-endian float32 values in the order latitude,
// longitude, altitude, roll, pitch, yaw. The payload must be exactly
// PoseSize bytes long.
func DecodePose(b []byte) (TelemetryPose, error) {
	if len(b) != PoseSize {
		return TelemetryPose{}, fmt.Errorf("%w: pose payload is %d bytes, want %d", ErrMalformedPacket, len(b), PoseSize)
	}
	f := func(off int) float32 {
		return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
	}
	return TelemetryPose{
		Latitude:  f(0),
		Longitude: f(4),
		Altitude:  f(8),
		Roll:      f(12),
		Pitch:     f(16),
		Yaw:       f(20),
	}, nil
}

// EncodePose is the inverse of DecodePose.
func EncodePose(p TelemetryPose) []byte {
	b := make([]byte, PoseSize)
	for i, v := range [6]float32{p.Latitude, p.Longitude, p.Altitude, p.Roll, p.Pitch, p.Yaw} {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
