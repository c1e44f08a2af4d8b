package transmission

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Broadcast is the destination id that addresses every participant.
const Broadcast = 0

var (
	ErrFrameBudgetExceeded = errors.New("transmission: frames exceed max_frame_bytes")
	ErrAckWithFrames       = errors.New("transmission: ack must not carry frames")
	ErrInvalidID           = errors.New("transmission: invalid participant id")
)

// Type classifies one channel event.
type Type int

const (
	TypeUnknown Type = iota
	TypeData
	TypeAck
	TypeDriverSpecific
)

func (t Type) String() string {
	switch t {
	case TypeData:
		return "DATA"
	case TypeAck:
		return "ACK"
	case TypeDriverSpecific:
		return "DRIVER_SPECIFIC"
	default:
		return "UNKNOWN"
	}
}

// ParseType maps a wire/config name back to a Type.
func ParseType(raw string) (Type, error) {
	switch raw {
	case "DATA", "data":
		return TypeData, nil
	case "ACK", "ack":
		return TypeAck, nil
	case "DRIVER_SPECIFIC", "driver_specific":
		return TypeDriverSpecific, nil
	default:
		return TypeUnknown, fmt.Errorf("transmission: unknown type %q", raw)
	}
}

// ReceiveStatistics is optional receive-side metadata a driver may attach.
type ReceiveStatistics struct {
	Source      string
	SNRIn       float64
	SNROut      float64
	MSE         float64
	Doppler     float64
	StdDevNoise float64
	BadFrames   int
}

// Transmission describes one channel access opportunity or event.
type Transmission struct {
	Src           int
	Dest          int
	Type          Type
	Rate          int
	MaxFrameBytes int
	SlotDuration  time.Duration
	AckRequested  bool
	Frames        [][]byte

	// Set by drivers on the receive path.
	RxStats *ReceiveStatistics
	Time    time.Time
}

// NewAck builds the acknowledgment local sends back to the originator.
func NewAck(local, to int) *Transmission {
	return &Transmission{
		Src:  local,
		Dest: to,
		Type: TypeAck,
	}
}

// FrameBytes returns the total payload size across all frames.
func (t *Transmission) FrameBytes() int {
	n := 0
	for _, f := range t.Frames {
		n += len(f)
	}
	return n
}

// HasData reports whether at least one frame carries bytes.
func (t *Transmission) HasData() bool {
	for _, f := range t.Frames {
		if len(f) > 0 {
			return true
		}
	}
	return false
}

// Validate enforces the frame budget and ack shape.
func (t *Transmission) Validate() error {
	if t.Src < 0 || t.Dest < 0 {
		return fmt.Errorf("%w: src=%d dest=%d", ErrInvalidID, t.Src, t.Dest)
	}
	if t.Type == TypeAck && len(t.Frames) > 0 {
		return ErrAckWithFrames
	}
	if t.MaxFrameBytes > 0 {
		if n := t.FrameBytes(); n > t.MaxFrameBytes {
			return fmt.Errorf("%w: %d > %d", ErrFrameBudgetExceeded, n, t.MaxFrameBytes)
		}
	}
	return nil
}

// Clone returns a deep copy; frames and rx stats are never shared.
func (t *Transmission) Clone() *Transmission {
	if t == nil {
		return nil
	}
	out := *t
	if t.Frames != nil {
		out.Frames = make([][]byte, len(t.Frames))
		for i, f := range t.Frames {
			buf := make([]byte, len(f))
			copy(buf, f)
			out.Frames[i] = buf
		}
	}
	if t.RxStats != nil {
		stats := *t.RxStats
		out.RxStats = &stats
	}
	return &out
}

// AddFrame appends a copy of b.
func (t *Transmission) AddFrame(b []byte) {
	buf := make([]byte, len(b))
	copy(buf, b)
	t.Frames = append(t.Frames, buf)
}

func (t *Transmission) MarshalZerologObject(e *zerolog.Event) {
	e.Int("src", t.Src).
		Int("dest", t.Dest).
		Str("type", t.Type.String()).
		Int("rate", t.Rate).
		Int("frames", len(t.Frames)).
		Int("bytes", t.FrameBytes()).
		Bool("ack_requested", t.AckRequested)
	if t.MaxFrameBytes > 0 {
		e.Int("max_frame_bytes", t.MaxFrameBytes)
	}
	if t.RxStats != nil {
		e.Object("rx_stats", t.RxStats)
	}
}

func (s *ReceiveStatistics) MarshalZerologObject(e *zerolog.Event) {
	e.Str("source", s.Source).
		Float64("snr_in", s.SNRIn).
		Float64("snr_out", s.SNROut).
		Float64("mse", s.MSE).
		Float64("doppler", s.Doppler).
		Float64("stddev_noise", s.StdDevNoise).
		Int("bad_frames", s.BadFrames)
}
