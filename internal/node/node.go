// Package node runs one participant: it owns the driver, the scheduler and
// the codec, and moves application messages between them.
//
// Lifecycle: STARTING -> RUNNING -> STOPPING -> STOPPED. All driver and
// scheduler calls happen on the goroutine running Tick/Run; only Status may
// be called from elsewhere.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/danmuck/tdmalink/internal/codec"
	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/mac"
	"github.com/danmuck/tdmalink/internal/observability"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

var (
	ErrNotRunning        = errors.New("node: not running")
	ErrTooManyLinkFaults = errors.New("node: too many consecutive link errors")
)

type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	default:
		return "STOPPED"
	}
}

// Outgoing is what an application hands back for one transmit opportunity.
type Outgoing struct {
	Message      codec.Message
	Dest         int
	AckRequested bool
}

// Application produces and consumes messages. Calls are synchronous on the
// loop goroutine and must not block.
type Application interface {
	// DataRequest is offered the slot's transmission; ok=false sends nothing.
	DataRequest(slot *transmission.Transmission) (out Outgoing, ok bool, err error)
	Receive(msg codec.Message, rx *transmission.Transmission)
	ReceiveAck(rx *transmission.Transmission)
}

// Status is the snapshot published after every tick.
type Status struct {
	State      string     `json:"state"`
	Driver     string     `json:"driver"`
	MAC        mac.Status `json:"mac"`
	Sent       uint64     `json:"sent"`
	Received   uint64     `json:"received"`
	Dropped    uint64     `json:"dropped"`
	LinkErrors uint64     `json:"link_errors"`
	LastError  string     `json:"last_error,omitempty"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Option func(*Node)

func WithLogger(l zerolog.Logger) Option {
	return func(n *Node) { n.logger = l }
}

// WithClock drives the scheduler from c instead of the system clock.
func WithClock(c mac.Clock) Option {
	return func(n *Node) { n.clock = c }
}

type Node struct {
	cfg    Config
	drv    driver.Driver
	sched  *mac.Scheduler
	codec  *codec.Codec
	app    Application
	logger zerolog.Logger
	clock  mac.Clock

	state  atomic.Int32
	status atomic.Pointer[Status]

	sent, received, dropped, linkErrors atomic.Uint64
	consecutive                         int
	lastErr                             string
}

func New(cfg Config, drv driver.Driver, c *codec.Codec, app Application, opts ...Option) *Node {
	n := &Node{
		cfg:    cfg.withDefaults(),
		drv:    drv,
		codec:  c,
		app:    app,
		logger: zerolog.Nop(),
		clock:  mac.SystemClock{},
	}
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With().Str("driver", drv.Kind().String()).Logger()
	n.sched = mac.New(drv,
		mac.WithClock(n.clock),
		mac.WithLogger(n.logger),
		mac.OnRotate(func(st mac.Status) { observability.RecordSlot(st.Index, st.Owner) }),
	)

	drv.OnDataRequest(n.handleDataRequest)
	drv.OnReceive(n.handleReceive)
	drv.OnTransmit(n.handleTransmit)

	n.state.Store(int32(StateStarting))
	n.publish()
	return n
}

func (n *Node) State() State { return State(n.state.Load()) }

// Status returns the last published snapshot.
func (n *Node) Status() Status { return *n.status.Load() }

// Startup brings up the scheduler, then the driver. Any error is fatal; the
// node is left STOPPED.
func (n *Node) Startup(macCfg mac.Config, drvCfg driver.Config) error {
	n.logger.Info().Msg("node.Startup starting MAC")
	if err := n.sched.Startup(macCfg); err != nil {
		n.fail(err)
		return err
	}
	n.logger.Info().Msg("node.Startup starting driver")
	if err := n.drv.Startup(drvCfg); err != nil {
		n.sched.Shutdown()
		n.fail(err)
		return err
	}
	n.state.Store(int32(StateRunning))
	n.publish()
	n.logger.Info().Object("mac", n.sched.Status()).Msg("node.Startup running")
	return nil
}

func (n *Node) fail(err error) {
	n.lastErr = err.Error()
	n.state.Store(int32(StateStopped))
	n.publish()
}

// Tick runs one loop iteration: driver work first, then scheduler work.
func (n *Node) Tick() error {
	if n.State() != StateRunning {
		return ErrNotRunning
	}
	defer n.publish()

	faulted := false
	if err := n.drv.DoWork(); err != nil {
		if err := n.linkFault(err); err != nil {
			return err
		}
		faulted = true
	}
	if err := n.sched.DoWork(); err != nil {
		if !errors.Is(err, driver.ErrRuntimeLink) {
			n.lastErr = err.Error()
			return err
		}
		if err := n.linkFault(err); err != nil {
			return err
		}
		faulted = true
	}
	if !faulted {
		n.consecutive = 0
	}
	return nil
}

func (n *Node) linkFault(err error) error {
	n.linkErrors.Add(1)
	n.lastErr = err.Error()
	observability.RecordLinkError(n.drv.Kind().String())
	if !errors.Is(err, driver.ErrRuntimeLink) {
		return err
	}
	if n.cfg.LinkErrors == PolicyFail {
		n.logger.Error().Err(err).Msg("node.Tick link error")
		return err
	}
	n.consecutive++
	n.logger.Warn().Err(err).Int("consecutive", n.consecutive).Msg("node.Tick link error; continuing")
	if limit := n.cfg.MaxConsecutiveLinkErrors; limit > 0 && n.consecutive >= limit {
		return fmt.Errorf("%w (%d): %w", ErrTooManyLinkFaults, n.consecutive, err)
	}
	return nil
}

// Run ticks at the configured interval until ctx ends or a tick fails, then
// drains and shuts down. A cancelled context is a clean stop.
func (n *Node) Run(ctx context.Context) error {
	if n.State() != StateRunning {
		return ErrNotRunning
	}
	ticker := time.NewTicker(n.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.logger.Info().Msg("node.Run shutdown requested")
			return n.Stop()
		case <-ticker.C:
			if err := n.Tick(); err != nil {
				n.logger.Error().Err(err).Msg("node.Run fatal")
				if stopErr := n.Stop(); stopErr != nil {
					n.logger.Warn().Err(stopErr).Msg("node.Run stop after failure")
				}
				return err
			}
		}
	}
}

// Stop stops offering slots, lets an in-flight transmission finish for up
// to DrainTimeout, then shuts the driver down.
func (n *Node) Stop() error {
	if n.State() != StateRunning {
		return nil
	}
	n.state.Store(int32(StateStopping))
	n.publish()
	n.sched.Shutdown()

	deadline := time.Now().Add(n.cfg.DrainTimeout)
	for !n.drv.Ready() && time.Now().Before(deadline) {
		if err := n.drv.DoWork(); err != nil {
			n.logger.Warn().Err(err).Msg("node.Stop drain")
		}
		time.Sleep(n.cfg.TickInterval)
	}
	if !n.drv.Ready() {
		n.logger.Warn().Dur("drain_timeout", n.cfg.DrainTimeout).Msg("node.Stop abandoning in-flight transmission")
	}

	err := n.drv.Shutdown()
	n.state.Store(int32(StateStopped))
	n.publish()
	n.logger.Info().
		Uint64("sent", n.sent.Load()).
		Uint64("received", n.received.Load()).
		Uint64("dropped", n.dropped.Load()).
		Msg("node.Stop stopped")
	return err
}

func (n *Node) publish() {
	n.status.Store(&Status{
		State:      n.State().String(),
		Driver:     n.drv.Kind().String(),
		MAC:        n.sched.Status(),
		Sent:       n.sent.Load(),
		Received:   n.received.Load(),
		Dropped:    n.dropped.Load(),
		LinkErrors: n.linkErrors.Load(),
		LastError:  n.lastErr,
		UpdatedAt:  time.Now(),
	})
}

func (n *Node) drop(reason string, ev *zerolog.Event, msg string) {
	n.dropped.Add(1)
	observability.RecordFrameDrop(reason)
	ev.Str("reason", reason).Msg(msg)
}

func (n *Node) handleDataRequest(t *transmission.Transmission) error {
	out, ok, err := n.app.DataRequest(t)
	if err != nil {
		return fmt.Errorf("node: data request: %w", err)
	}
	if !ok || out.Message == nil {
		return nil
	}
	b, err := n.codec.Encode(out.Message)
	if err != nil {
		n.drop("encode", n.logger.Warn().Err(err), "node.DataRequest dropping message")
		return nil
	}
	if t.MaxFrameBytes > 0 && t.FrameBytes()+len(b) > t.MaxFrameBytes {
		n.drop("frame_budget", n.logger.Warn().Int("bytes", len(b)).Int("max_frame_bytes", t.MaxFrameBytes),
			"node.DataRequest message exceeds slot budget")
		return nil
	}
	t.AddFrame(b)
	t.Dest = out.Dest
	t.AckRequested = out.AckRequested
	return nil
}

func (n *Node) handleTransmit(t *transmission.Transmission) {
	n.sent.Add(1)
	observability.RecordTransmission("tx", t.Type.String())
	n.logger.Info().Object("tx", t).Msg("node.transmit")
}

func (n *Node) handleReceive(rx *transmission.Transmission) {
	n.received.Add(1)
	observability.RecordTransmission("rx", rx.Type.String())
	n.logger.Info().Object("rx", rx).Msg("node.receive")

	switch rx.Type {
	case transmission.TypeData:
		if len(rx.Frames) != 1 {
			n.drop("frame_count", n.logger.Warn().Int("frames", len(rx.Frames)),
				"node.receive expected exactly one frame")
			return
		}
		frame := rx.Frames[0]
		id, err := n.codec.Identify(frame)
		if err != nil {
			n.drop("identify", n.logger.Warn().Err(err), "node.receive dropping frame")
			return
		}
		msg, err := n.codec.Decode(frame)
		if err != nil {
			ev := n.logger.Warn().Err(err).Uint16("id", id)
			if name, ok := n.codec.Name(id); ok {
				ev = ev.Str("msg_type", name)
			}
			n.drop("decode", ev, "node.receive dropping frame")
			return
		}
		n.app.Receive(msg, rx)
	case transmission.TypeAck:
		n.app.ReceiveAck(rx)
	default:
		n.logger.Debug().Object("rx", rx).Msg("node.receive ignoring transmission")
	}
}
