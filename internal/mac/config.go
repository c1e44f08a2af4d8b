package mac

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/tdmalink/internal/transmission"
)

// ScheduleType selects the medium access discipline.
type ScheduleType int

const (
	ScheduleUnknown ScheduleType = iota
	// FixedDecentralized rotates through a static slot list shared by every
	// participant; no control traffic is exchanged.
	FixedDecentralized
)

func (t ScheduleType) String() string {
	switch t {
	case FixedDecentralized:
		return "MAC_FIXED_DECENTRALIZED"
	default:
		return "MAC_UNKNOWN"
	}
}

func ParseScheduleType(raw string) (ScheduleType, error) {
	name := strings.ToUpper(strings.TrimSpace(raw))
	switch name {
	case "MAC_FIXED_DECENTRALIZED", "FIXED_DECENTRALIZED":
		return FixedDecentralized, nil
	default:
		return ScheduleUnknown, fmt.Errorf("mac: unknown schedule type %q", raw)
	}
}

func (t ScheduleType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *ScheduleType) UnmarshalText(b []byte) error {
	parsed, err := ParseScheduleType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Slot is one schedule entry. Template carries rate, max_frame_bytes,
// slot duration and type; Src and Dest are filled when the slot fires.
type Slot struct {
	Owner    int
	Template transmission.Transmission
}

// Duration is the slot's time budget.
func (s Slot) Duration() time.Duration { return s.Template.SlotDuration }

// Config is the static schedule every participant shares.
type Config struct {
	Type    ScheduleType
	ModemID int
	Slots   []Slot
	// Synchronized derives the active slot from wall-clock time so that
	// independently started participants agree on it.
	Synchronized bool
}

// CycleDuration is the sum of all slot durations.
func (c Config) CycleDuration() time.Duration {
	var total time.Duration
	for _, s := range c.Slots {
		total += s.Duration()
	}
	return total
}

// Owns reports whether id owns at least one slot.
func (c Config) Owns(id int) bool {
	for _, s := range c.Slots {
		if s.Owner == id {
			return true
		}
	}
	return false
}
