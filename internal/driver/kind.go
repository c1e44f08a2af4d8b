package driver

import (
	"fmt"
	"strings"
)

// Kind selects a transport variant.
type Kind int

const (
	KindUnknown Kind = iota
	KindUDP
	KindMicromodem
	KindATM900
	KindLoopback
)

var kindNames = map[Kind]string{
	KindUDP:        "DRIVER_UDP",
	KindMicromodem: "DRIVER_WHOI_MICROMODEM",
	KindATM900:     "DRIVER_BENTHOS_ATM900",
	KindLoopback:   "DRIVER_LOOPBACK",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "DRIVER_UNKNOWN"
}

// Kinds lists every constructible variant in declaration order.
func Kinds() []Kind {
	return []Kind{KindUDP, KindMicromodem, KindATM900, KindLoopback}
}

// ParseKind accepts the enum name, case-insensitively, with or without the
// DRIVER_ prefix.
func ParseKind(raw string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	if !strings.HasPrefix(name, "DRIVER_") {
		name = "DRIVER_" + name
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, raw)
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
