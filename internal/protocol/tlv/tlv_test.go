package tlv

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncodeDecodeFieldsKeepsRepeatedIDs(t *testing.T) {
	in := []Field{
		Bytes(10, []byte{0xAA}),
		Bytes(10, []byte{0xBB, 0xCC}),
		U16(2, 513),
		I64(3, -42),
		Bool(4, true),
	}
	out, err := DecodeFields(EncodeFields(in))
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("expected %d fields, got %d", len(in), len(out))
	}
	if !bytes.Equal(out[1].Value, []byte{0xBB, 0xCC}) {
		t.Fatalf("repeated field not preserved: %+v", out[1])
	}
	if v, err := out[2].AsU16(); err != nil || v != 513 {
		t.Fatalf("u16=%d err=%v", v, err)
	}
	if v, err := out[3].AsI64(); err != nil || v != -42 {
		t.Fatalf("i64=%d err=%v", v, err)
	}
	if v, err := out[4].AsBool(); err != nil || !v {
		t.Fatalf("bool=%v err=%v", v, err)
	}
}

func TestDecodeFieldsMalformedHeaderIsDeterministic(t *testing.T) {
	_, err := DecodeFields([]byte{1, 2, 3})
	if !errors.Is(err, ErrShortFieldHeader) {
		t.Fatalf("expected ErrShortFieldHeader, got %v", err)
	}
}

func TestDecodeFieldsMalformedLengthIsDeterministic(t *testing.T) {
	// id=1, type=bytes, len=5, value only 2 bytes
	payload := []byte{0, 1, TypeBytes, 0, 0, 0, 5, 'a', 'b'}
	_, err := DecodeFields(payload)
	if !errors.Is(err, ErrShortFieldValue) {
		t.Fatalf("expected ErrShortFieldValue, got %v", err)
	}
}

func TestAccessorTypeMismatch(t *testing.T) {
	if _, err := U8(1, 7).AsU32(); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}
