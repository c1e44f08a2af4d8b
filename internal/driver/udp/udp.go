// Package udp simulates an acoustic modem over UDP datagrams. Each
// transmission becomes one datagram sent to every configured remote.
package udp

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/protocol"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

const (
	maxDatagram = 64 * 1024
	rxQueueLen  = 64

	readErrQueueLen = 8
)

type datagram struct {
	b  []byte
	at time.Time
}

// Driver is the UDP transport.
type Driver struct {
	driver.Base

	now func() time.Time

	mu      sync.Mutex
	cfg     driver.Config
	conn    *net.UDPConn
	remotes []*net.UDPAddr
	seq     uint32

	rx      chan datagram
	held    []datagram
	readErr chan error
	closed  chan struct{}
	wg      sync.WaitGroup
}

var _ driver.Driver = (*Driver)(nil)

func New(logger zerolog.Logger) *Driver {
	d := &Driver{now: time.Now}
	d.Logger = logger.With().Str("driver", driver.KindUDP.String()).Logger()
	return d
}

func (d *Driver) Kind() driver.Kind { return driver.KindUDP }

func (d *Driver) Limits() driver.Limits {
	return driver.Limits{MaxRate: 15, MaxFrameBytes: 8192}
}

func (d *Driver) Startup(cfg driver.Config) error {
	if err := cfg.Validate(); err != nil {
		return driver.StartupError{Kind: d.Kind(), Err: err}
	}
	local := strings.TrimSpace(cfg.UDP.LocalAddr)
	if local == "" {
		local = strings.TrimSpace(cfg.Endpoint)
	}
	if local == "" {
		return driver.StartupError{Kind: d.Kind(), Err: fmt.Errorf("%w: udp local address required", driver.ErrInvalid)}
	}
	laddr, err := net.ResolveUDPAddr("udp", local)
	if err != nil {
		return driver.StartupError{Kind: d.Kind(), Err: err}
	}
	remotes := make([]*net.UDPAddr, 0, len(cfg.UDP.RemoteAddrs))
	for _, raw := range cfg.UDP.RemoteAddrs {
		raddr, err := net.ResolveUDPAddr("udp", strings.TrimSpace(raw))
		if err != nil {
			return driver.StartupError{Kind: d.Kind(), Err: fmt.Errorf("remote %q: %w", raw, err)}
		}
		remotes = append(remotes, raddr)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return driver.StartupError{Kind: d.Kind(), Err: err}
	}

	d.mu.Lock()
	d.cfg = cfg
	d.conn = conn
	d.remotes = remotes
	d.rx = make(chan datagram, rxQueueLen)
	d.readErr = make(chan error, readErrQueueLen)
	d.closed = make(chan struct{})
	d.held = nil
	d.mu.Unlock()

	d.wg.Add(1)
	go d.recvLoop(conn, d.rx, d.readErr, d.closed)

	if len(remotes) == 0 {
		d.Logger.Warn().Msg("udp.Startup no remotes configured; receive only")
	}
	d.Logger.Info().
		Int("modem_id", cfg.ModemID).
		Str("local", conn.LocalAddr().String()).
		Int("remotes", len(remotes)).
		Dur("sim_delay", cfg.UDP.SimDelay).
		Msg("udp.Startup listening")
	return nil
}

// Addr returns the bound local address, or nil before Startup.
func (d *Driver) Addr() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	return d.conn.LocalAddr()
}

// AddRemote adds a peer after Startup.
func (d *Driver) AddRemote(addr string) error {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.remotes = append(d.remotes, raddr)
	return nil
}

func (d *Driver) Shutdown() error {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	if conn != nil {
		close(d.closed)
	}
	d.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	d.wg.Wait()
	d.Logger.Info().Msg("udp.Shutdown closed")
	return err
}

func (d *Driver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

func (d *Driver) recvLoop(conn *net.UDPConn, rx chan<- datagram, readErr chan<- error, closed <-chan struct{}) {
	defer d.wg.Done()
	buf := make([]byte, maxDatagram)
	failures := 0
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-closed:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case readErr <- err:
			default:
				d.Logger.Warn().Err(err).Msg("udp.recvLoop error queue full")
			}
			failures++
			backoff := time.Duration(failures) * 10 * time.Millisecond
			if backoff > time.Second {
				backoff = time.Second
			}
			select {
			case <-closed:
				return
			case <-time.After(backoff):
			}
			continue
		}
		failures = 0
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case rx <- datagram{b: pkt, at: d.now()}:
		default:
			d.Logger.Warn().Int("bytes", n).Msg("udp.recvLoop queue full, dropping datagram")
		}
	}
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
		d.Logger.Debug().Object("tx", out).Msg("udp.InitiateTransmission no data")
		return nil
	}
	return d.send(out)
}

func (d *Driver) send(t *transmission.Transmission) error {
	t.Time = d.now()

	d.mu.Lock()
	conn := d.conn
	remotes := append([]*net.UDPAddr(nil), d.remotes...)
	d.seq++
	seq := d.seq
	d.mu.Unlock()
	if conn == nil {
		return driver.ErrNotStarted
	}

	b, err := protocol.Encode(t, seq)
	if err != nil {
		return err
	}
	for _, raddr := range remotes {
		if _, err := conn.WriteToUDP(b, raddr); err != nil {
			return driver.LinkError("write "+raddr.String(), err)
		}
	}
	d.Logger.Debug().Object("tx", t).Uint32("seq", seq).Int("bytes", len(b)).Msg("udp.send")
	d.FireTransmit(t)
	return nil
}

func (d *Driver) DoWork() error {
	d.mu.Lock()
	if d.conn == nil {
		d.mu.Unlock()
		return driver.ErrNotStarted
	}
	rx, readErr := d.rx, d.readErr
	local := d.cfg.ModemID
	delay := d.cfg.UDP.SimDelay
	d.mu.Unlock()

	var errs []error
faults:
	for {
		select {
		case err := <-readErr:
			errs = append(errs, driver.LinkError("read", err))
		default:
			break faults
		}
	}

drain:
	for {
		select {
		case dg := <-rx:
			d.held = append(d.held, dg)
		default:
			break drain
		}
	}

	now := d.now()
	pending := d.held[:0]
	var due []datagram
	for _, dg := range d.held {
		if now.Sub(dg.at) >= delay {
			due = append(due, dg)
		} else {
			pending = append(pending, dg)
		}
	}
	d.held = pending

	// Every due datagram is handled even when one fails; they have already
	// left d.held.
	for _, dg := range due {
		if err := d.handleDatagram(dg.b, local); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) handleDatagram(b []byte, local int) error {
	rx, seq, err := protocol.Decode(b)
	if err != nil {
		d.Logger.Warn().Err(err).Int("bytes", len(b)).Msg("udp.DoWork dropping malformed datagram")
		return nil
	}
	if rx.Src == local {
		return nil
	}
	if rx.Dest != transmission.Broadcast && rx.Dest != local {
		return nil
	}
	d.Logger.Debug().Object("rx", rx).Uint32("seq", seq).Msg("udp.DoWork received")
	d.FireReceive(rx)
	if rx.Type == transmission.TypeData && rx.AckRequested && rx.Dest == local {
		return d.send(transmission.NewAck(local, rx.Src))
	}
	return nil
}
