package codec

import (
	"errors"
	"fmt"
)

var (
	ErrEncoding    = errors.New("codec: encoding failed")
	ErrDecoding    = errors.New("codec: decoding failed")
	ErrDuplicateID = errors.New("codec: duplicate message id")
	ErrSchema      = errors.New("codec: invalid schema")
)

// EncodingError reports a message that violates its declared field constraints
// or was never registered.
type EncodingError struct {
	Message string
	Field   string
	Reason  string
}

func (e EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("codec: encode %s: %s", e.Message, e.Reason)
	}
	return fmt.Sprintf("codec: encode %s.%s: %s", e.Message, e.Field, e.Reason)
}

func (e EncodingError) Unwrap() error { return ErrEncoding }

// DecodingError reports bytes that cannot be turned back into a registered message.
type DecodingError struct {
	ID     uint16
	Field  string
	Reason string
}

func (e DecodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("codec: decode id=%d: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("codec: decode id=%d field=%s: %s", e.ID, e.Field, e.Reason)
}

func (e DecodingError) Unwrap() error { return ErrDecoding }

// DuplicateIDError reports two distinct message types claiming one id.
type DuplicateIDError struct {
	ID       uint16
	Existing string
	Incoming string
}

func (e DuplicateIDError) Error() string {
	return fmt.Sprintf("codec: id %d already registered by %s, cannot register %s", e.ID, e.Existing, e.Incoming)
}

func (e DuplicateIDError) Unwrap() error { return ErrDuplicateID }

// SchemaError reports an unusable message declaration.
type SchemaError struct {
	Message string
	Field   string
	Reason  string
}

func (e SchemaError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("codec: schema %s: %s", e.Message, e.Reason)
	}
	return fmt.Sprintf("codec: schema %s.%s: %s", e.Message, e.Field, e.Reason)
}

func (e SchemaError) Unwrap() error { return ErrSchema }
