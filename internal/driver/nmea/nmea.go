// Package nmea encodes and parses NMEA-0183 style sentences
// ("$CCCYC,0,1,2,0,0,1*5A").
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrNotSentence  = errors.New("nmea: not a sentence")
	ErrBadChecksum  = errors.New("nmea: checksum mismatch")
	ErrShortAddress = errors.New("nmea: address shorter than talker+type")
)

// Sentence is one parsed line. Talker is two characters, Type three.
type Sentence struct {
	Talker string
	Type   string
	Fields []string
}

func New(talker, typ string, fields ...string) Sentence {
	return Sentence{Talker: talker, Type: typ, Fields: fields}
}

// Address is Talker+Type, e.g. "CACYC".
func (s Sentence) Address() string { return s.Talker + s.Type }

// Field returns field i or "" when absent.
func (s Sentence) Field(i int) string {
	if i < 0 || i >= len(s.Fields) {
		return ""
	}
	return s.Fields[i]
}

// Int parses field i as a base-10 integer.
func (s Sentence) Int(i int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s.Field(i)))
	if err != nil {
		return 0, fmt.Errorf("nmea: %s field %d: %w", s.Address(), i, err)
	}
	return v, nil
}

// Float parses field i; an empty field reads as 0.
func (s Sentence) Float(i int) (float64, error) {
	raw := strings.TrimSpace(s.Field(i))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("nmea: %s field %d: %w", s.Address(), i, err)
	}
	return v, nil
}

func (s Sentence) body() string {
	var b strings.Builder
	b.WriteString(s.Address())
	for _, f := range s.Fields {
		b.WriteByte(',')
		b.WriteString(f)
	}
	return b.String()
}

// String renders the sentence with its checksum.
func (s Sentence) String() string {
	body := s.body()
	return fmt.Sprintf("$%s*%02X", body, Checksum(body))
}

// Checksum XORs every byte of body.
func Checksum(body string) byte {
	var c byte
	for i := 0; i < len(body); i++ {
		c ^= body[i]
	}
	return c
}

// Parse reads one line. A checksum, when present, must match.
func Parse(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return Sentence{}, fmt.Errorf("%w: %q", ErrNotSentence, line)
	}
	body := line[1:]
	if star := strings.LastIndexByte(body, '*'); star >= 0 {
		sum := body[star+1:]
		body = body[:star]
		want, err := strconv.ParseUint(sum, 16, 8)
		if err != nil {
			return Sentence{}, fmt.Errorf("%w: %q", ErrBadChecksum, sum)
		}
		if got := Checksum(body); byte(want) != got {
			return Sentence{}, fmt.Errorf("%w: got %02X want %02X", ErrBadChecksum, got, want)
		}
	}
	parts := strings.Split(body, ",")
	addr := parts[0]
	if len(addr) < 5 {
		return Sentence{}, fmt.Errorf("%w: %q", ErrShortAddress, addr)
	}
	return Sentence{
		Talker: addr[:2],
		Type:   addr[2:],
		Fields: parts[1:],
	}, nil
}
