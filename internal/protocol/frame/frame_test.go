package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/danmuck/tdmalink/internal/protocol/tlv"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	payload := tlv.EncodeFields([]tlv.Field{tlv.Bytes(1, []byte("frame-1"))})
	in := Frame{
		Header:  Header{Type: 1, Flags: FlagAckRequested, Src: 1, Dest: 2, Seq: 42},
		Payload: payload,
	}
	b, err := Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := Unmarshal(b)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Header.Magic != Magic || out.Header.Src != 1 || out.Header.Dest != 2 || out.Header.Seq != 42 {
		t.Fatalf("header mismatch: %+v", out.Header)
	}
	if out.Header.Flags&FlagAckRequested == 0 {
		t.Fatalf("ack flag lost")
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestUnmarshalMalformedHeaderIsDeterministic(t *testing.T) {
	if _, err := Unmarshal([]byte{1, 2, 3}); !errors.Is(err, ErrShortHeader) {
		t.Fatalf("expected ErrShortHeader, got %v", err)
	}
}

func TestUnmarshalRejectsForeignMagic(t *testing.T) {
	buf := make([]byte, HeaderLen)
	EncodeHeader(buf, Header{Magic: 0xEDCE1001, Version: Version})
	if _, err := Unmarshal(buf); !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestUnmarshalPayloadLengthMismatch(t *testing.T) {
	b, err := Marshal(Frame{Payload: []byte{1, 2, 3}})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Unmarshal(b[:len(b)-1]); !errors.Is(err, ErrPayloadLenMismatch) {
		t.Fatalf("expected ErrPayloadLenMismatch, got %v", err)
	}
}
