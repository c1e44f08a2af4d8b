// Package mac implements the fixed decentralized TDMA scheduler.
//
// Every participant runs the same static schedule and decides locally, from
// its own clock, which slot is active. The owner of the active slot offers
// exactly one transmission opportunity to its driver per slot activation;
// everyone else listens.
//
// Scheduler is not safe for concurrent use. The runtime loop owns it.
package mac

import (
	"time"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

// Initiator is the slice of a driver the scheduler talks to.
type Initiator interface {
	Ready() bool
	Limits() driver.Limits
	InitiateTransmission(t *transmission.Transmission) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Status is a point-in-time view of the scheduler.
type Status struct {
	Started      bool          `json:"started"`
	LocalID      int           `json:"local_id"`
	Index        int           `json:"slot"`
	Owner        int           `json:"owner"`
	SlotStart    time.Time     `json:"slot_start"`
	SlotDuration time.Duration `json:"slot_duration"`
	Cycles       uint64        `json:"cycles"`
	LocalActive  bool          `json:"local_active"`
}

func (s Status) MarshalZerologObject(e *zerolog.Event) {
	e.Int("slot", s.Index).
		Int("owner", s.Owner).
		Int("local_id", s.LocalID).
		Dur("slot_duration", s.SlotDuration).
		Uint64("cycles", s.Cycles).
		Bool("local_active", s.LocalActive)
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// OnRotate registers fn to run after every slot change, on the DoWork goroutine.
func OnRotate(fn func(Status)) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.onRotate = append(s.onRotate, fn)
		}
	}
}

type Scheduler struct {
	drv      Initiator
	clock    Clock
	logger   zerolog.Logger
	onRotate []func(Status)

	cfg       Config
	cycle     time.Duration
	started   bool
	current   int
	slotStart time.Time
	cycles    uint64
	// initiated marks the current local slot activation as consumed.
	initiated bool
}

func New(d Initiator, opts ...Option) *Scheduler {
	s := &Scheduler{
		drv:    d,
		clock:  SystemClock{},
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Startup validates cfg against the driver's limits and activates slot 0.
func (s *Scheduler) Startup(cfg Config) error {
	if err := validate(cfg, s.drv.Limits()); err != nil {
		return err
	}
	cfg.Slots = cloneSlots(cfg.Slots)

	s.cfg = cfg
	s.cycle = cfg.CycleDuration()
	s.current = 0
	s.slotStart = s.clock.Now()
	s.cycles = 0
	s.initiated = false
	if cfg.Synchronized {
		s.current, s.slotStart = s.alignToWallClock(s.slotStart)
	}
	s.started = true

	if !cfg.Owns(cfg.ModemID) {
		s.logger.Warn().Int("local_id", cfg.ModemID).Msg("mac.Startup local id owns no slot; listen only")
	}
	s.logger.Info().
		Str("type", cfg.Type.String()).
		Int("local_id", cfg.ModemID).
		Int("slots", len(cfg.Slots)).
		Dur("cycle", s.cycle).
		Bool("synchronized", cfg.Synchronized).
		Msg("mac.Startup schedule active")
	return nil
}

func validate(cfg Config, limits driver.Limits) error {
	if cfg.Type != FixedDecentralized {
		return configErr(-1, "type", "unsupported schedule type %s", cfg.Type)
	}
	if cfg.ModemID <= 0 {
		return configErr(-1, "modem_id", "must be positive, got %d", cfg.ModemID)
	}
	if len(cfg.Slots) == 0 {
		return configErr(-1, "slots", "schedule is empty")
	}
	for i, slot := range cfg.Slots {
		tmpl := slot.Template
		switch {
		case slot.Owner <= 0:
			return configErr(i, "owner", "must be positive, got %d", slot.Owner)
		case tmpl.SlotDuration <= 0:
			return configErr(i, "slot_duration", "must be positive, got %s", tmpl.SlotDuration)
		case tmpl.Rate < 0 || tmpl.Rate > limits.MaxRate:
			return configErr(i, "rate", "%d outside driver range 0..%d", tmpl.Rate, limits.MaxRate)
		case tmpl.MaxFrameBytes <= 0 || tmpl.MaxFrameBytes > limits.MaxFrameBytes:
			return configErr(i, "max_frame_bytes", "%d outside driver range 1..%d", tmpl.MaxFrameBytes, limits.MaxFrameBytes)
		case tmpl.Type == transmission.TypeAck:
			return configErr(i, "type", "ACK slots are not schedulable")
		case len(tmpl.Frames) > 0:
			return configErr(i, "frames", "template must not carry frames")
		}
	}
	return nil
}

func cloneSlots(in []Slot) []Slot {
	out := make([]Slot, len(in))
	for i, slot := range in {
		out[i] = Slot{Owner: slot.Owner, Template: *slot.Template.Clone()}
		if out[i].Template.Type == transmission.TypeUnknown {
			out[i].Template.Type = transmission.TypeData
		}
	}
	return out
}

// alignToWallClock maps now onto the schedule with the Unix epoch as the
// start of cycle zero.
func (s *Scheduler) alignToWallClock(now time.Time) (int, time.Time) {
	offset := time.Duration(now.UnixNano() % int64(s.cycle))
	var acc time.Duration
	for i, slot := range s.cfg.Slots {
		if offset < acc+slot.Duration() {
			return i, now.Add(-(offset - acc))
		}
		acc += slot.Duration()
	}
	return 0, now.Add(-offset)
}

// DoWork rotates the schedule to the current time and, when the local
// participant owns the active slot and has not used it yet, hands a copy of
// the slot template to the driver. Driver errors are returned as-is; the slot
// activation is consumed either way.
func (s *Scheduler) DoWork() error {
	if !s.started {
		return ErrNotStarted
	}
	s.advance(s.clock.Now())

	slot := s.cfg.Slots[s.current]
	if slot.Owner != s.cfg.ModemID || s.initiated {
		return nil
	}
	if !s.drv.Ready() {
		s.logger.Debug().Int("slot", s.current).Msg("mac.DoWork driver busy; holding slot")
		return nil
	}
	s.initiated = true

	t := slot.Template.Clone()
	t.Src = s.cfg.ModemID
	s.logger.Debug().Int("slot", s.current).Object("tx", t).Msg("mac.DoWork initiating transmission")
	return s.drv.InitiateTransmission(t)
}

func (s *Scheduler) advance(now time.Time) {
	elapsed := now.Sub(s.slotStart)
	if elapsed < 0 {
		return
	}
	if elapsed >= s.cycle {
		skipped := elapsed / s.cycle
		s.slotStart = s.slotStart.Add(skipped * s.cycle)
		s.cycles += uint64(skipped)
		s.initiated = false
		s.logger.Warn().Int64("cycles", int64(skipped)).Msg("mac.DoWork skipped whole cycles")
	}
	for now.Sub(s.slotStart) >= s.cfg.Slots[s.current].Duration() {
		s.slotStart = s.slotStart.Add(s.cfg.Slots[s.current].Duration())
		s.current = (s.current + 1) % len(s.cfg.Slots)
		if s.current == 0 {
			s.cycles++
		}
		s.initiated = false
		st := s.Status()
		s.logger.Debug().Object("status", st).Msg("mac.DoWork slot rotated")
		for _, fn := range s.onRotate {
			fn(st)
		}
	}
}

// Authorized reports whether the local participant may transmit at this
// instant. It does not advance the schedule.
func (s *Scheduler) Authorized() bool {
	if !s.started {
		return false
	}
	idx := s.current
	start := s.slotStart
	now := s.clock.Now()
	if elapsed := now.Sub(start); elapsed >= s.cycle {
		start = start.Add((elapsed / s.cycle) * s.cycle)
	}
	for now.Sub(start) >= s.cfg.Slots[idx].Duration() {
		start = start.Add(s.cfg.Slots[idx].Duration())
		idx = (idx + 1) % len(s.cfg.Slots)
	}
	return s.cfg.Slots[idx].Owner == s.cfg.ModemID
}

// ActiveSlot returns the slot selected by the last DoWork.
func (s *Scheduler) ActiveSlot() (int, Slot) {
	if !s.started {
		return -1, Slot{}
	}
	return s.current, s.cfg.Slots[s.current]
}

func (s *Scheduler) Status() Status {
	if !s.started {
		return Status{LocalID: s.cfg.ModemID, Index: -1}
	}
	slot := s.cfg.Slots[s.current]
	return Status{
		Started:      true,
		LocalID:      s.cfg.ModemID,
		Index:        s.current,
		Owner:        slot.Owner,
		SlotStart:    s.slotStart,
		SlotDuration: slot.Duration(),
		Cycles:       s.cycles,
		LocalActive:  slot.Owner == s.cfg.ModemID,
	}
}

// Shutdown stops offering slots to the driver.
func (s *Scheduler) Shutdown() {
	if s.started {
		s.logger.Info().Uint64("cycles", s.cycles).Msg("mac.Shutdown")
	}
	s.started = false
}
