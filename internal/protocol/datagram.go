package protocol

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/danmuck/tdmalink/internal/protocol/frame"
	"github.com/danmuck/tdmalink/internal/protocol/tlv"
	"github.com/danmuck/tdmalink/internal/transmission"
)

// Field ids inside the datagram payload.
const (
	FieldRate          uint16 = 1
	FieldMaxFrameBytes uint16 = 2
	FieldSlotMillis    uint16 = 3
	FieldTimeUnixNano  uint16 = 4
	FieldFrame         uint16 = 10
)

var (
	ErrInvalidAddress = errors.New("protocol: address out of range")
	ErrMalformed      = errors.New("protocol: malformed datagram")
)

// Encode maps t onto one datagram. seq is echoed in the header for tracing.
func Encode(t *transmission.Transmission, seq uint32) ([]byte, error) {
	if t.Src < 0 || t.Src > math.MaxUint16 || t.Dest < 0 || t.Dest > math.MaxUint16 {
		return nil, fmt.Errorf("%w: src=%d dest=%d", ErrInvalidAddress, t.Src, t.Dest)
	}
	fields := []tlv.Field{
		tlv.U8(FieldRate, uint8(t.Rate)),
		tlv.U32(FieldMaxFrameBytes, uint32(t.MaxFrameBytes)),
		tlv.U32(FieldSlotMillis, uint32(t.SlotDuration/time.Millisecond)),
	}
	if !t.Time.IsZero() {
		fields = append(fields, tlv.I64(FieldTimeUnixNano, t.Time.UnixNano()))
	}
	for _, f := range t.Frames {
		fields = append(fields, tlv.Bytes(FieldFrame, f))
	}

	var flags uint8
	if t.AckRequested {
		flags |= frame.FlagAckRequested
	}
	return frame.Marshal(frame.Frame{
		Header: frame.Header{
			Type:  uint8(t.Type),
			Flags: flags,
			Src:   uint16(t.Src),
			Dest:  uint16(t.Dest),
			Seq:   seq,
		},
		Payload: tlv.EncodeFields(fields),
	})
}

// Decode parses a datagram back into a transmission and its sequence number.
// Unknown field ids are ignored.
func Decode(b []byte) (*transmission.Transmission, uint32, error) {
	f, err := frame.Unmarshal(b)
	if err != nil {
		return nil, 0, err
	}
	fields, err := tlv.DecodeFields(f.Payload)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	t := &transmission.Transmission{
		Src:          int(f.Header.Src),
		Dest:         int(f.Header.Dest),
		Type:         transmission.Type(f.Header.Type),
		AckRequested: f.Header.Flags&frame.FlagAckRequested != 0,
	}
	for _, field := range fields {
		switch field.ID {
		case FieldRate:
			v, err := field.AsU8()
			if err != nil {
				return nil, 0, fmt.Errorf("%w: rate: %w", ErrMalformed, err)
			}
			t.Rate = int(v)
		case FieldMaxFrameBytes:
			v, err := field.AsU32()
			if err != nil {
				return nil, 0, fmt.Errorf("%w: max_frame_bytes: %w", ErrMalformed, err)
			}
			t.MaxFrameBytes = int(v)
		case FieldSlotMillis:
			v, err := field.AsU32()
			if err != nil {
				return nil, 0, fmt.Errorf("%w: slot_ms: %w", ErrMalformed, err)
			}
			t.SlotDuration = time.Duration(v) * time.Millisecond
		case FieldTimeUnixNano:
			v, err := field.AsI64()
			if err != nil {
				return nil, 0, fmt.Errorf("%w: time: %w", ErrMalformed, err)
			}
			t.Time = time.Unix(0, v)
		case FieldFrame:
			if field.Type != tlv.TypeBytes {
				return nil, 0, fmt.Errorf("%w: frame field type %d", ErrMalformed, field.Type)
			}
			t.Frames = append(t.Frames, field.Value)
		}
	}
	return t, f.Header.Seq, nil
}
