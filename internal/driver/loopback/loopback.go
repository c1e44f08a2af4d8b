// Package loopback is an in-process transport: drivers joined to the same
// Medium hear each other's transmissions on their next DoWork.
package loopback

import (
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

// Medium is a shared broadcast channel.
type Medium struct {
	mu      sync.Mutex
	members []*Driver
}

func NewMedium() *Medium {
	return &Medium{}
}

func (m *Medium) join(d *Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = append(m.members, d)
}

func (m *Medium) leave(d *Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, member := range m.members {
		if member == d {
			m.members = append(m.members[:i], m.members[i+1:]...)
			return
		}
	}
}

// deliver queues a copy of t on every member addressed by it, except the sender.
func (m *Medium) deliver(from *Driver, t *transmission.Transmission) int {
	m.mu.Lock()
	members := append([]*Driver(nil), m.members...)
	m.mu.Unlock()

	n := 0
	for _, member := range members {
		if member == from {
			continue
		}
		if t.Dest != transmission.Broadcast && t.Dest != member.localID() {
			continue
		}
		member.enqueue(t.Clone())
		n++
	}
	return n
}

// Driver is the loopback transport.
type Driver struct {
	driver.Base

	medium *Medium
	now    func() time.Time

	mu          sync.Mutex
	cfg         driver.Config
	started     bool
	inbox       []*transmission.Transmission
	transmitted int
}

var _ driver.Driver = (*Driver)(nil)

func New(medium *Medium, logger zerolog.Logger) *Driver {
	d := &Driver{medium: medium, now: time.Now}
	d.Logger = logger.With().Str("driver", driver.KindLoopback.String()).Logger()
	return d
}

func (d *Driver) Kind() driver.Kind { return driver.KindLoopback }

func (d *Driver) Limits() driver.Limits {
	return driver.Limits{MaxRate: 15, MaxFrameBytes: 65535}
}

func (d *Driver) Startup(cfg driver.Config) error {
	if err := cfg.Validate(); err != nil {
		return driver.StartupError{Kind: d.Kind(), Err: err}
	}
	if d.medium == nil {
		return driver.StartupError{Kind: d.Kind(), Err: fmt.Errorf("no medium")}
	}
	d.mu.Lock()
	d.cfg = cfg
	d.started = true
	d.mu.Unlock()
	d.medium.join(d)
	d.Logger.Info().Int("modem_id", cfg.ModemID).Msg("loopback.Startup joined medium")
	return nil
}

func (d *Driver) Shutdown() error {
	d.mu.Lock()
	wasStarted := d.started
	d.started = false
	d.inbox = nil
	d.mu.Unlock()
	if wasStarted {
		d.medium.leave(d)
	}
	return nil
}

func (d *Driver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started
}

// Transmitted counts transmissions put on the medium, acks included.
func (d *Driver) Transmitted() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transmitted
}

func (d *Driver) InitiateTransmission(t *transmission.Transmission) error {
	if !d.Ready() {
		return driver.ErrNotStarted
	}
	out := t.Clone()
	ok, err := d.RequestData(out)
	if err != nil {
		return err
	}
	if !ok {
		d.Logger.Debug().Object("tx", out).Msg("loopback.InitiateTransmission no data")
		return nil
	}
	d.send(out)
	return nil
}

func (d *Driver) send(t *transmission.Transmission) {
	t.Time = d.now()
	heard := d.medium.deliver(d, t)
	d.mu.Lock()
	d.transmitted++
	d.mu.Unlock()
	d.Logger.Debug().Object("tx", t).Int("heard_by", heard).Msg("loopback.send")
	d.FireTransmit(t)
}

func (d *Driver) DoWork() error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return driver.ErrNotStarted
	}
	inbox := d.inbox
	d.inbox = nil
	local := d.cfg.ModemID
	d.mu.Unlock()

	for _, rx := range inbox {
		d.FireReceive(rx)
		if rx.Type == transmission.TypeData && rx.AckRequested && rx.Dest == local {
			d.send(transmission.NewAck(local, rx.Src))
		}
	}
	return nil
}

func (d *Driver) enqueue(t *transmission.Transmission) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return
	}
	d.inbox = append(d.inbox, t)
}

func (d *Driver) localID() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.ModemID
}
