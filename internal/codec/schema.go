package codec

import (
	"fmt"
	"math"
	"math/bits"
	"reflect"
	"strconv"
	"strings"
)

const tagName = "codec"

type fieldKind int

const (
	kindInt fieldKind = iota
	kindUint
	kindFloat
	kindBool
	kindString
	kindBytes
)

// field is one packed member of a message, derived from its struct tag.
type field struct {
	name      string
	index     int
	kind      fieldKind
	min       float64
	max       float64
	ilo, ihi  int64
	ulo, uhi  uint64
	precision int
	scale     float64
	span      uint64
	maxLength int
	bits      int
}

// schema is the resolved wire layout of one registered message type.
type schema struct {
	id     uint16
	name   string
	typ    reflect.Type
	fields []field
}

// maxBits is the worst-case payload size excluding the id prefix.
func (s *schema) maxBits() int {
	n := 0
	for _, f := range s.fields {
		n += f.bits
		if f.kind == kindString || f.kind == kindBytes {
			n += 8 * f.maxLength
		}
	}
	return n
}

func messageType(m Message) (reflect.Type, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrSchema)
	}
	t := reflect.TypeOf(m)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, SchemaError{Message: t.String(), Reason: "message must be a struct"}
	}
	return t, nil
}

func parseSchema(m Message) (*schema, error) {
	t, err := messageType(m)
	if err != nil {
		return nil, err
	}
	id := m.CodecID()
	if id == 0 || id > MaxID {
		return nil, SchemaError{Message: t.String(), Reason: fmt.Sprintf("id %d outside 1..%d", id, MaxID)}
	}
	s := &schema{id: id, name: t.String(), typ: t}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag, hasTag := sf.Tag.Lookup(tagName)
		if tag == "-" {
			continue
		}
		f, err := parseField(s.name, sf, tag, hasTag)
		if err != nil {
			return nil, err
		}
		f.index = i
		s.fields = append(s.fields, f)
	}
	return s, nil
}

func parseField(msg string, sf reflect.StructField, tag string, hasTag bool) (field, error) {
	f := field{name: sf.Name}
	schemaErr := func(reason string) error {
		return SchemaError{Message: msg, Field: sf.Name, Reason: reason}
	}

	switch sf.Type.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f.kind = kindInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f.kind = kindUint
	case reflect.Float32, reflect.Float64:
		f.kind = kindFloat
	case reflect.Bool:
		f.kind = kindBool
		f.bits = 1
		return f, nil
	case reflect.String:
		f.kind = kindString
	case reflect.Slice:
		if sf.Type.Elem().Kind() != reflect.Uint8 {
			return field{}, schemaErr("only []byte slices are supported")
		}
		f.kind = kindBytes
	default:
		return field{}, schemaErr("unsupported field type " + sf.Type.String())
	}
	if !hasTag {
		return field{}, schemaErr("missing codec tag")
	}

	opts, err := parseTag(tag)
	if err != nil {
		return field{}, schemaErr(err.Error())
	}

	if f.kind == kindString || f.kind == kindBytes {
		raw, ok := opts["max_length"]
		if !ok {
			return field{}, schemaErr("max_length is required")
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > math.MaxUint16 {
			return field{}, schemaErr("invalid max_length " + raw)
		}
		f.maxLength = n
		f.bits = bits.Len(uint(n))
		return f, nil
	}

	minRaw, okMin := opts["min"]
	maxRaw, okMax := opts["max"]
	if !okMin || !okMax {
		return field{}, schemaErr("min and max are required")
	}
	if _, ok := opts["precision"]; ok && f.kind != kindFloat {
		return field{}, schemaErr("precision requires a float field")
	}
	switch f.kind {
	case kindInt:
		if f.ilo, err = strconv.ParseInt(minRaw, 10, 64); err != nil {
			return field{}, schemaErr("invalid integer min " + minRaw)
		}
		if f.ihi, err = strconv.ParseInt(maxRaw, 10, 64); err != nil {
			return field{}, schemaErr("invalid integer max " + maxRaw)
		}
		if f.ihi < f.ilo {
			return field{}, schemaErr("max below min")
		}
		if zero := reflect.New(sf.Type).Elem(); zero.OverflowInt(f.ilo) || zero.OverflowInt(f.ihi) {
			return field{}, schemaErr("bounds do not fit " + sf.Type.String())
		}
		// Two's complement subtraction yields the exact span even across zero.
		f.span = uint64(f.ihi) - uint64(f.ilo)
		f.bits = bits.Len64(f.span)
		return f, nil
	case kindUint:
		if f.ulo, err = strconv.ParseUint(minRaw, 10, 64); err != nil {
			return field{}, schemaErr("invalid unsigned min " + minRaw)
		}
		if f.uhi, err = strconv.ParseUint(maxRaw, 10, 64); err != nil {
			return field{}, schemaErr("invalid unsigned max " + maxRaw)
		}
		if f.uhi < f.ulo {
			return field{}, schemaErr("max below min")
		}
		if reflect.New(sf.Type).Elem().OverflowUint(f.uhi) {
			return field{}, schemaErr("bounds do not fit " + sf.Type.String())
		}
		f.span = f.uhi - f.ulo
		f.bits = bits.Len64(f.span)
		return f, nil
	}

	if f.min, err = strconv.ParseFloat(minRaw, 64); err != nil {
		return field{}, schemaErr("invalid min " + minRaw)
	}
	if f.max, err = strconv.ParseFloat(maxRaw, 64); err != nil {
		return field{}, schemaErr("invalid max " + maxRaw)
	}
	if f.max < f.min {
		return field{}, schemaErr("max below min")
	}
	if raw, ok := opts["precision"]; ok {
		p, err := strconv.Atoi(raw)
		if err != nil || p < 0 || p > 9 {
			return field{}, schemaErr("invalid precision " + raw)
		}
		f.precision = p
	}
	f.scale = math.Pow10(f.precision)
	span := math.Round((f.max - f.min) * f.scale)
	if span >= math.MaxInt64 {
		return field{}, schemaErr("range too wide")
	}
	f.span = uint64(span)
	f.bits = bits.Len64(f.span)
	return f, nil
}

func parseTag(tag string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("malformed tag option %q", part)
		}
		k = strings.TrimSpace(k)
		switch k {
		case "min", "max", "precision", "max_length":
		default:
			return nil, fmt.Errorf("unknown tag option %q", k)
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}
