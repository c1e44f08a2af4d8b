package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic is "TDMA".
	Magic   uint32 = 0x54444D41
	Version uint16 = 1

	HeaderLen = 20

	FlagAckRequested uint8 = 0x01
)

var (
	ErrShortHeader        = errors.New("frame: short fixed header")
	ErrInvalidMagic       = errors.New("frame: invalid magic")
	ErrUnsupportedVersion = errors.New("frame: unsupported version")
	ErrPayloadTooLarge    = errors.New("frame: payload too large")
	ErrPayloadLenMismatch = errors.New("frame: payload length mismatch")
)

// Header is the fixed datagram header.
type Header struct {
	Magic      uint32
	Version    uint16
	Type       uint8
	Flags      uint8
	Src        uint16
	Dest       uint16
	Seq        uint32
	PayloadLen uint32
}

// Frame is one complete datagram.
type Frame struct {
	Header  Header
	Payload []byte
}

// MaxPayloadBytes bounds a single datagram below the UDP maximum.
const MaxPayloadBytes = 65507 - HeaderLen

// Marshal stamps magic, version and payload length into the header.
func Marshal(f Frame) ([]byte, error) {
	if len(f.Payload) > MaxPayloadBytes {
		return nil, ErrPayloadTooLarge
	}
	h := f.Header
	h.Magic = Magic
	h.Version = Version
	h.PayloadLen = uint32(len(f.Payload))

	buf := make([]byte, HeaderLen, HeaderLen+len(f.Payload))
	EncodeHeader(buf, h)
	return append(buf, f.Payload...), nil
}

// Unmarshal parses one datagram. The payload is copied out of b.
func Unmarshal(b []byte) (Frame, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Frame{}, err
	}
	if h.Magic != Magic {
		return Frame{}, ErrInvalidMagic
	}
	if h.Version != Version {
		return Frame{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	if int(h.PayloadLen) != len(b)-HeaderLen {
		return Frame{}, fmt.Errorf("%w: header=%d datagram=%d", ErrPayloadLenMismatch, h.PayloadLen, len(b)-HeaderLen)
	}
	payload := make([]byte, h.PayloadLen)
	copy(payload, b[HeaderLen:])
	return Frame{Header: h, Payload: payload}, nil
}

func EncodeHeader(buf []byte, h Header) {
	binary.BigEndian.PutUint32(buf[0:4], h.Magic)
	binary.BigEndian.PutUint16(buf[4:6], h.Version)
	buf[6] = h.Type
	buf[7] = h.Flags
	binary.BigEndian.PutUint16(buf[8:10], h.Src)
	binary.BigEndian.PutUint16(buf[10:12], h.Dest)
	binary.BigEndian.PutUint32(buf[12:16], h.Seq)
	binary.BigEndian.PutUint32(buf[16:20], h.PayloadLen)
}

func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	return Header{
		Magic:      binary.BigEndian.Uint32(b[0:4]),
		Version:    binary.BigEndian.Uint16(b[4:6]),
		Type:       b[6],
		Flags:      b[7],
		Src:        binary.BigEndian.Uint16(b[8:10]),
		Dest:       binary.BigEndian.Uint16(b[10:12]),
		Seq:        binary.BigEndian.Uint32(b[12:16]),
		PayloadLen: binary.BigEndian.Uint32(b[16:20]),
	}, nil
}
