package mac

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/driver/drivermock"
	"github.com/danmuck/tdmalink/internal/testutil/testlog"
	"github.com/danmuck/tdmalink/internal/transmission"
	"go.uber.org/mock/gomock"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) set(t0 time.Time, d time.Duration) { c.now = t0.Add(d) }

func dataSlot(owner int, d time.Duration) Slot {
	return Slot{Owner: owner, Template: transmission.Transmission{
		Type:          transmission.TypeData,
		Rate:          1,
		MaxFrameBytes: 64,
		SlotDuration:  d,
	}}
}

func scenarioConfig(local int) Config {
	return Config{
		Type:    FixedDecentralized,
		ModemID: local,
		Slots: []Slot{
			dataSlot(1, 20*time.Second),
			dataSlot(2, 20*time.Second),
			dataSlot(2, 20*time.Second),
		},
	}
}

func newScheduler(t *testing.T, d Initiator, clock Clock) *Scheduler {
	t.Helper()
	return New(d, WithClock(clock), WithLogger(testlog.Logger(t)))
}

func limits() driver.Limits { return driver.Limits{MaxRate: 5, MaxFrameBytes: 2048} }

func TestScenarioOwnerAThenB(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()
	d.EXPECT().Ready().Return(true).AnyTimes()
	d.EXPECT().InitiateTransmission(gomock.Any()).DoAndReturn(func(tx *transmission.Transmission) error {
		if tx.Src != 1 || tx.MaxFrameBytes != 64 || tx.Rate != 1 || tx.SlotDuration != 20*time.Second {
			t.Fatalf("unexpected template specialization: %+v", tx)
		}
		return nil
	}).Times(1)

	t0 := time.Unix(1000, 0)
	clock := &fakeClock{now: t0}
	s := newScheduler(t, d, clock)
	if err := s.Startup(scenarioConfig(1)); err != nil {
		t.Fatalf("startup: %v", err)
	}

	clock.set(t0, 5*time.Second)
	if err := s.DoWork(); err != nil {
		t.Fatalf("do work t+5s: %v", err)
	}
	if !s.Authorized() {
		t.Fatalf("A must be authorized at t+5s")
	}
	// Still inside the same activation: no second offer.
	clock.set(t0, 6*time.Second)
	if err := s.DoWork(); err != nil {
		t.Fatalf("do work t+6s: %v", err)
	}

	clock.set(t0, 25*time.Second)
	if err := s.DoWork(); err != nil {
		t.Fatalf("do work t+25s: %v", err)
	}
	idx, slot := s.ActiveSlot()
	if idx != 1 || slot.Owner != 2 {
		t.Fatalf("expected slot 1 owned by B, got %d owner %d", idx, slot.Owner)
	}
	if s.Authorized() {
		t.Fatalf("A must not be authorized in B's slot")
	}
}

func TestSlotIndexCyclesWithPeriodN(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()
	d.EXPECT().Ready().Return(true).AnyTimes()
	d.EXPECT().InitiateTransmission(gomock.Any()).Return(nil).AnyTimes()

	t0 := time.Unix(0, 0)
	clock := &fakeClock{now: t0}
	var rotations []int
	s := New(d, WithClock(clock), WithLogger(testlog.Logger(t)), OnRotate(func(st Status) {
		rotations = append(rotations, st.Index)
	}))
	cfg := scenarioConfig(3)
	cfg.Slots = append(cfg.Slots, dataSlot(3, 10*time.Second))
	if err := s.Startup(cfg); err != nil {
		t.Fatalf("startup: %v", err)
	}

	// Poll at 10 Hz for two full cycles.
	cycle := cfg.CycleDuration()
	for elapsed := time.Duration(0); elapsed <= 2*cycle; elapsed += 100 * time.Millisecond {
		clock.set(t0, elapsed)
		if err := s.DoWork(); err != nil {
			t.Fatalf("do work: %v", err)
		}
	}
	want := []int{1, 2, 3, 0, 1, 2, 3, 0}
	if len(rotations) != len(want) {
		t.Fatalf("rotations=%v want %v", rotations, want)
	}
	for i := range want {
		if rotations[i] != want[i] {
			t.Fatalf("rotations=%v want %v", rotations, want)
		}
	}
	if st := s.Status(); st.Cycles != 2 || st.Index != 0 {
		t.Fatalf("status after two cycles: %+v", st)
	}
}

func TestNeverAuthorizedOutsideOwnSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()
	d.EXPECT().Ready().Return(true).AnyTimes()

	t0 := time.Unix(50, 0)
	clock := &fakeClock{now: t0}
	s := newScheduler(t, d, clock)
	if err := s.Startup(scenarioConfig(2)); err != nil {
		t.Fatalf("startup: %v", err)
	}
	initiated := 0
	d.EXPECT().InitiateTransmission(gomock.Any()).DoAndReturn(func(tx *transmission.Transmission) error {
		initiated++
		idx, slot := s.ActiveSlot()
		if slot.Owner != 2 {
			t.Fatalf("initiated in slot %d owned by %d", idx, slot.Owner)
		}
		return nil
	}).AnyTimes()

	for elapsed := time.Duration(0); elapsed < 3*time.Minute; elapsed += time.Second {
		clock.set(t0, elapsed)
		if err := s.DoWork(); err != nil {
			t.Fatalf("do work: %v", err)
		}
		idx, slot := s.ActiveSlot()
		if s.Authorized() != (slot.Owner == 2) {
			t.Fatalf("authorization mismatch at %s slot %d", elapsed, idx)
		}
	}
	// Three cycles, two B slots each.
	if initiated != 6 {
		t.Fatalf("initiated=%d want 6", initiated)
	}
}

func TestDriverErrorPropagatesAndSlotIsLost(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()
	d.EXPECT().Ready().Return(true).AnyTimes()
	boom := errors.New("application refused")
	d.EXPECT().InitiateTransmission(gomock.Any()).Return(boom).Times(1)

	t0 := time.Unix(0, 0)
	clock := &fakeClock{now: t0}
	s := newScheduler(t, d, clock)
	if err := s.Startup(scenarioConfig(1)); err != nil {
		t.Fatalf("startup: %v", err)
	}
	if err := s.DoWork(); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	clock.set(t0, time.Second)
	if err := s.DoWork(); err != nil {
		t.Fatalf("lost slot must not retry: %v", err)
	}
}

func TestBusyDriverHoldsSlot(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()
	gomock.InOrder(
		d.EXPECT().Ready().Return(false),
		d.EXPECT().Ready().Return(true),
	)
	d.EXPECT().InitiateTransmission(gomock.Any()).Return(nil).Times(1)

	t0 := time.Unix(0, 0)
	clock := &fakeClock{now: t0}
	s := newScheduler(t, d, clock)
	if err := s.Startup(scenarioConfig(1)); err != nil {
		t.Fatalf("startup: %v", err)
	}
	for i := 0; i < 3; i++ {
		clock.set(t0, time.Duration(i)*time.Second)
		if err := s.DoWork(); err != nil {
			t.Fatalf("do work: %v", err)
		}
	}
}

func TestStartupRejectsInvalidSchedules(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()

	cases := map[string]func(*Config){
		"empty":        func(c *Config) { c.Slots = nil },
		"type":         func(c *Config) { c.Type = ScheduleUnknown },
		"rate":         func(c *Config) { c.Slots[0].Template.Rate = 9 },
		"frame bytes":  func(c *Config) { c.Slots[1].Template.MaxFrameBytes = 4096 },
		"zero length":  func(c *Config) { c.Slots[2].Template.SlotDuration = 0 },
		"owner":        func(c *Config) { c.Slots[0].Owner = 0 },
		"ack template": func(c *Config) { c.Slots[0].Template.Type = transmission.TypeAck },
		"local id":     func(c *Config) { c.ModemID = -1 },
	}
	for name, mutate := range cases {
		cfg := scenarioConfig(1)
		mutate(&cfg)
		err := New(d).Startup(cfg)
		var cfgErr ConfigurationError
		if !errors.As(err, &cfgErr) || !errors.Is(err, ErrConfiguration) {
			t.Fatalf("%s: expected ConfigurationError, got %v", name, err)
		}
	}
}

func TestDoWorkBeforeStartup(t *testing.T) {
	ctrl := gomock.NewController(t)
	s := New(drivermock.NewMockDriver(ctrl))
	if err := s.DoWork(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("expected ErrNotStarted, got %v", err)
	}
	if s.Authorized() {
		t.Fatalf("unstarted scheduler must not authorize")
	}
}

func TestSynchronizedParticipantsAgree(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()

	// 1000s is 16 cycles of 60s plus 40s: the third slot is active.
	clockA := &fakeClock{now: time.Unix(1000, 0)}
	clockB := &fakeClock{now: time.Unix(1000, 0).Add(3 * time.Second)}
	a := newScheduler(t, d, clockA)
	b := newScheduler(t, d, clockB)
	cfgA, cfgB := scenarioConfig(1), scenarioConfig(2)
	cfgA.Synchronized, cfgB.Synchronized = true, true
	if err := a.Startup(cfgA); err != nil {
		t.Fatalf("startup a: %v", err)
	}
	if err := b.Startup(cfgB); err != nil {
		t.Fatalf("startup b: %v", err)
	}
	ia, _ := a.ActiveSlot()
	ib, _ := b.ActiveSlot()
	if ia != 2 || ib != 2 {
		t.Fatalf("slots a=%d b=%d want 2", ia, ib)
	}
	if !a.Status().SlotStart.Equal(b.Status().SlotStart) {
		t.Fatalf("slot start differs: %v vs %v", a.Status().SlotStart, b.Status().SlotStart)
	}
}

func TestClockStepBackIsIgnored(t *testing.T) {
	ctrl := gomock.NewController(t)
	d := drivermock.NewMockDriver(ctrl)
	d.EXPECT().Limits().Return(limits()).AnyTimes()
	d.EXPECT().Ready().Return(true).AnyTimes()

	t0 := time.Unix(500, 0)
	clock := &fakeClock{now: t0}
	s := newScheduler(t, d, clock)
	if err := s.Startup(scenarioConfig(3)); err != nil {
		t.Fatalf("startup: %v", err)
	}
	clock.set(t0, 25*time.Second)
	_ = s.DoWork()
	clock.set(t0, -time.Hour)
	_ = s.DoWork()
	if idx, _ := s.ActiveSlot(); idx != 1 {
		t.Fatalf("slot moved backwards to %d", idx)
	}
}
