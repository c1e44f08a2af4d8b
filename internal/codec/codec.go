// Package codec turns bounded application messages into compact byte strings
// that carry their own type id.
//
// Wire layout:
// - id prefix: one byte for ids below 128, otherwise two bytes with the high bit set
// - fields in declaration order, bit packed MSB first, zero padded to a byte
//
// Field widths come from struct tags, e.g. `codec:"min=-5000,max=5000,precision=1"`
// or `codec:"max_length=16"`. Bool fields take one bit and need no tag.
package codec

import (
	"errors"
	"math"
	"reflect"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

// MaxID is the largest id the two-byte prefix can carry.
const MaxID = 0x7fff

// Message is implemented by every registrable type; the id is part of the
// message declaration and must be stable across builds.
type Message interface {
	CodecID() uint16
}

// Codec is the registry of message types. Safe for concurrent use; the
// registry is read-mostly after startup.
type Codec struct {
	mu     sync.RWMutex
	byID   map[uint16]*schema
	byType map[reflect.Type]*schema
	logger zerolog.Logger
}

type Option func(*Codec)

func WithLogger(l zerolog.Logger) Option {
	return func(c *Codec) { c.logger = l }
}

func New(opts ...Option) *Codec {
	c := &Codec{
		byID:   make(map[uint16]*schema),
		byType: make(map[reflect.Type]*schema),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register loads the schema for m's type. Registering the same type twice is
// a no-op; a second type claiming a taken id is a DuplicateIDError.
func (c *Codec) Register(m Message) error {
	s, err := parseSchema(m)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.byID[s.id]; ok {
		if existing.typ == s.typ {
			return nil
		}
		return DuplicateIDError{ID: s.id, Existing: existing.name, Incoming: s.name}
	}
	if existing, ok := c.byType[s.typ]; ok {
		return SchemaError{Message: s.name, Reason: "already registered with id " + itoa(int(existing.id))}
	}
	c.byID[s.id] = s
	c.byType[s.typ] = s
	c.logger.Debug().
		Str("msg_type", s.name).
		Uint16("id", s.id).
		Int("fields", len(s.fields)).
		Int("max_bytes", prefixLen(s.id)+(s.maxBits()+7)/8).
		Msg("codec.Register")
	return nil
}

// Registered lists registered ids in ascending order.
func (c *Codec) Registered() []uint16 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]uint16, 0, len(c.byID))
	for id := range c.byID {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Name returns the Go type name registered under id.
func (c *Codec) Name(id uint16) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[id]
	if !ok {
		return "", false
	}
	return s.name, true
}

// ID returns the id m's type was registered under.
func (c *Codec) ID(m Message) (uint16, error) {
	s, err := c.lookupType(m)
	if err != nil {
		return 0, err
	}
	return s.id, nil
}

// MaxSize is the largest encoding any value of m's type can produce.
func (c *Codec) MaxSize(m Message) (int, error) {
	s, err := c.lookupType(m)
	if err != nil {
		return 0, err
	}
	return prefixLen(s.id) + (s.maxBits()+7)/8, nil
}

// Encode serializes m behind its id prefix. Output is deterministic.
func (c *Codec) Encode(m Message) ([]byte, error) {
	s, err := c.lookupType(m)
	if err != nil {
		return nil, err
	}
	v := reflect.ValueOf(m)
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, EncodingError{Message: s.name, Reason: "nil message"}
		}
		v = v.Elem()
	}

	w := &bitWriter{}
	w.buf = appendPrefix(make([]byte, 0, prefixLen(s.id)+(s.maxBits()+7)/8), s.id)
	w.nbit = len(w.buf) * 8
	for _, f := range s.fields {
		if err := encodeField(w, f, v.Field(f.index)); err != nil {
			return nil, EncodingError{Message: s.name, Field: f.name, Reason: err.Error()}
		}
	}
	return w.bytes(), nil
}

// Identify reads only the id prefix of b.
func (c *Codec) Identify(b []byte) (uint16, error) {
	id, _, err := readPrefix(b)
	return id, err
}

// Decode parses b into a new value of whichever registered type its prefix names.
// The result is a pointer to the registered struct type.
func (c *Codec) Decode(b []byte) (Message, error) {
	id, n, err := readPrefix(b)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	s, ok := c.byID[id]
	c.mu.RUnlock()
	if !ok {
		return nil, DecodingError{ID: id, Reason: "unregistered id"}
	}
	ptr := reflect.New(s.typ)
	if err := decodeFields(s, b[n:], ptr.Elem()); err != nil {
		return nil, err
	}
	msg, ok := ptr.Interface().(Message)
	if !ok {
		return nil, DecodingError{ID: id, Reason: "registered type does not implement Message"}
	}
	return msg, nil
}

// DecodeInto parses b into m, failing if b's prefix names a different type.
func (c *Codec) DecodeInto(b []byte, m Message) error {
	id, n, err := readPrefix(b)
	if err != nil {
		return err
	}
	v := reflect.ValueOf(m)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return DecodingError{ID: id, Reason: "target must be a non-nil pointer"}
	}
	s, err := c.lookupType(m)
	if err != nil {
		return DecodingError{ID: id, Reason: err.Error()}
	}
	if s.id != id {
		return DecodingError{ID: id, Reason: "id does not match " + s.name + " (" + itoa(int(s.id)) + ")"}
	}
	return decodeFields(s, b[n:], v.Elem())
}

func (c *Codec) lookupType(m Message) (*schema, error) {
	t, err := messageType(m)
	if err != nil {
		return nil, EncodingError{Message: "<nil>", Reason: err.Error()}
	}
	c.mu.RLock()
	s, ok := c.byType[t]
	c.mu.RUnlock()
	if !ok {
		return nil, EncodingError{Message: t.String(), Reason: "type not registered"}
	}
	return s, nil
}

func prefixLen(id uint16) int {
	if id < 0x80 {
		return 1
	}
	return 2
}

func appendPrefix(buf []byte, id uint16) []byte {
	if id < 0x80 {
		return append(buf, byte(id))
	}
	return append(buf, 0x80|byte(id>>8), byte(id))
}

func readPrefix(b []byte) (uint16, int, error) {
	if len(b) == 0 {
		return 0, 0, DecodingError{Reason: "empty frame"}
	}
	if b[0]&0x80 == 0 {
		return uint16(b[0]), 1, nil
	}
	if len(b) < 2 {
		return 0, 0, DecodingError{Reason: "truncated id prefix"}
	}
	id := uint16(b[0]&0x7f)<<8 | uint16(b[1])
	if id < 0x80 {
		return 0, 0, DecodingError{ID: id, Reason: "non-canonical two-byte id prefix"}
	}
	return id, 2, nil
}

func encodeField(w *bitWriter, f field, v reflect.Value) error {
	switch f.kind {
	case kindBool:
		if v.Bool() {
			w.write(1, 1)
		} else {
			w.write(0, 1)
		}
		return nil
	case kindString:
		return encodeBytes(w, f, []byte(v.String()))
	case kindBytes:
		return encodeBytes(w, f, v.Bytes())
	}

	switch f.kind {
	case kindInt:
		n := v.Int()
		if n < f.ilo || n > f.ihi {
			return errValue("value " + strconv.FormatInt(n, 10) + " outside [" +
				strconv.FormatInt(f.ilo, 10) + ", " + strconv.FormatInt(f.ihi, 10) + "]")
		}
		w.write(uint64(n)-uint64(f.ilo), f.bits)
		return nil
	case kindUint:
		n := v.Uint()
		if n < f.ulo || n > f.uhi {
			return errValue("value " + strconv.FormatUint(n, 10) + " outside [" +
				strconv.FormatUint(f.ulo, 10) + ", " + strconv.FormatUint(f.uhi, 10) + "]")
		}
		w.write(n-f.ulo, f.bits)
		return nil
	}

	x := v.Float()
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return errValue("not a finite number")
	}
	if x < f.min || x > f.max {
		return errValue("value " + ftoa(x) + " outside [" + ftoa(f.min) + ", " + ftoa(f.max) + "]")
	}
	code := math.Round((x - f.min) * f.scale)
	if code < 0 {
		code = 0
	}
	u := uint64(code)
	if u > f.span {
		u = f.span
	}
	w.write(u, f.bits)
	return nil
}

func encodeBytes(w *bitWriter, f field, b []byte) error {
	if len(b) > f.maxLength {
		return errValue("length " + itoa(len(b)) + " exceeds max_length " + itoa(f.maxLength))
	}
	w.write(uint64(len(b)), f.bits)
	for _, c := range b {
		w.write(uint64(c), 8)
	}
	return nil
}

func decodeFields(s *schema, payload []byte, v reflect.Value) error {
	r := &bitReader{buf: payload}
	for _, f := range s.fields {
		if err := decodeField(r, f, v.Field(f.index)); err != nil {
			return DecodingError{ID: s.id, Field: f.name, Reason: err.Error()}
		}
	}
	return nil
}

func decodeField(r *bitReader, f field, v reflect.Value) error {
	switch f.kind {
	case kindBool:
		bit, err := r.read(1)
		if err != nil {
			return err
		}
		v.SetBool(bit == 1)
		return nil
	case kindString, kindBytes:
		n, err := r.read(f.bits)
		if err != nil {
			return err
		}
		if int(n) > f.maxLength {
			return errValue("length code " + itoa(int(n)) + " exceeds max_length")
		}
		buf := make([]byte, n)
		for i := range buf {
			c, err := r.read(8)
			if err != nil {
				return err
			}
			buf[i] = byte(c)
		}
		switch {
		case f.kind == kindString:
			v.SetString(string(buf))
		case n == 0:
			v.SetBytes(nil)
		default:
			v.SetBytes(buf)
		}
		return nil
	}

	code, err := r.read(f.bits)
	if err != nil {
		return err
	}
	if code > f.span {
		return errValue("field code " + strconv.FormatUint(code, 10) + " outside range")
	}
	switch f.kind {
	case kindInt:
		n := int64(uint64(f.ilo) + code)
		if v.OverflowInt(n) {
			return errValue("value overflows " + v.Type().String())
		}
		v.SetInt(n)
		return nil
	case kindUint:
		n := f.ulo + code
		if v.OverflowUint(n) {
			return errValue("value overflows " + v.Type().String())
		}
		v.SetUint(n)
		return nil
	}
	x := f.min + float64(code)/f.scale
	x = math.Round(x*f.scale) / f.scale
	if v.OverflowFloat(x) {
		return errValue("value overflows " + v.Type().String())
	}
	v.SetFloat(x)
	return nil
}

func errValue(reason string) error { return errors.New(reason) }

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
