// Package micromodem drives a WHOI Micromodem over its NMEA serial
// interface.
//
// A cycle runs in three steps: $CCCYC announces the transmission, the modem
// asks for each frame with $CADRQ and the driver answers with $CCTXD. Frames
// are gathered from the data-request handlers when the cycle is initiated and
// served from the cache afterwards.
package micromodem

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/driver/nmea"
	"github.com/danmuck/tdmalink/internal/driver/serialline"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

const (
	talker = "CC"

	// rxFlushAfter bounds how long received frames wait for their $CACST.
	rxFlushAfter = 2 * time.Second
)

var ErrTxTimeout = errors.New("micromodem: modem never requested queued data")

// Driver is the Micromodem transport.
type Driver struct {
	driver.Base

	open serialline.Opener
	now  func() time.Time

	mu   sync.Mutex
	cfg  driver.Config
	line *serialline.Line

	pending *transmission.Transmission
	served  int
	cycAt   time.Time

	rx      *transmission.Transmission
	rxStart time.Time
}

var _ driver.Driver = (*Driver)(nil)

func New(open serialline.Opener, logger zerolog.Logger) *Driver {
	d := &Driver{open: open, now: time.Now}
	d.Logger = logger.With().Str("driver", driver.KindMicromodem.String()).Logger()
	return d
}

func (d *Driver) Kind() driver.Kind { return driver.KindMicromodem }

// Limits reports the largest packet, rate 5 (8 frames of 256 bytes).
func (d *Driver) Limits() driver.Limits {
	return driver.Limits{MaxRate: 5, MaxFrameBytes: 2048}
}

func (d *Driver) Startup(cfg driver.Config) error {
	if err := cfg.Validate(); err != nil {
		return driver.StartupError{Kind: d.Kind(), Err: err}
	}
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return driver.StartupError{Kind: d.Kind(), Err: fmt.Errorf("%w: serial endpoint required", driver.ErrInvalid)}
	}
	baud := cfg.BaudRate
	if baud == 0 {
		baud = driver.DefaultBaudRate
	}
	line, err := serialline.Open(d.open, cfg.Endpoint, baud, d.Logger)
	if err != nil {
		return driver.StartupError{Kind: d.Kind(), Err: err}
	}

	lines := []nmea.Sentence{nmea.New(talker, "CFG", "SRC", strconv.Itoa(cfg.ModemID))}
	for _, ext := range cfg.Extensions {
		fields := strings.Split(strings.ReplaceAll(ext, "=", ","), ",")
		lines = append(lines, nmea.New(talker, "CFG", fields...))
	}
	for _, s := range lines {
		if err := line.WriteLine(s.String()); err != nil {
			_ = line.Close()
			return driver.StartupError{Kind: d.Kind(), Err: err}
		}
	}

	d.mu.Lock()
	d.cfg = cfg
	d.line = line
	d.pending = nil
	d.rx = nil
	d.mu.Unlock()
	d.Logger.Info().Int("modem_id", cfg.ModemID).Str("endpoint", cfg.Endpoint).Int("baud", baud).Msg("micromodem.Startup configured")
	return nil
}

func (d *Driver) Shutdown() error {
	d.mu.Lock()
	line := d.line
	d.line = nil
	d.pending = nil
	d.mu.Unlock()
	if line == nil {
		return nil
	}
	return line.Close()
}

// Ready is false while a cycle is waiting on the modem.
func (d *Driver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line != nil && d.pending == nil
}

func (d *Driver) InitiateTransmission(t *transmission.Transmission) error {
	d.mu.Lock()
	line, busy := d.line, d.pending != nil
	d.mu.Unlock()
	if line == nil {
		return driver.ErrNotStarted
	}
	if busy {
		return driver.ErrBusy
	}

	out := t.Clone()
	ok, err := d.RequestData(out)
	if err != nil {
		return err
	}
	if !ok {
		d.Logger.Debug().Object("tx", out).Msg("micromodem.InitiateTransmission no data")
		return nil
	}

	ack := "0"
	if out.AckRequested {
		ack = "1"
	}
	cyc := nmea.New(talker, "CYC", "0",
		strconv.Itoa(out.Src), strconv.Itoa(out.Dest), strconv.Itoa(out.Rate), ack, strconv.Itoa(len(out.Frames)))
	if err := line.WriteLine(cyc.String()); err != nil {
		return driver.LinkError("write $CCCYC", err)
	}

	d.mu.Lock()
	d.pending = out
	d.served = 0
	d.cycAt = d.now()
	d.mu.Unlock()
	d.Logger.Debug().Object("tx", out).Msg("micromodem.InitiateTransmission cycle started")
	return nil
}

func (d *Driver) DoWork() error {
	d.mu.Lock()
	line := d.line
	d.mu.Unlock()
	if line == nil {
		return driver.ErrNotStarted
	}

	var errs []error
	lines, readErr := line.Poll()
	for _, raw := range lines {
		s, err := nmea.Parse(raw)
		if err != nil {
			d.Logger.Warn().Err(err).Str("line", raw).Msg("micromodem.DoWork dropping line")
			continue
		}
		if err := d.handle(line, s); err != nil {
			errs = append(errs, err)
		}
	}
	if readErr != nil {
		errs = append(errs, driver.LinkError("read", readErr))
	}

	now := d.now()
	d.mu.Lock()
	var timedOut *transmission.Transmission
	if d.pending != nil && d.cfg.TxTimeout > 0 && now.Sub(d.cycAt) > d.cfg.TxTimeout {
		timedOut = d.pending
		d.pending = nil
	}
	var stale *transmission.Transmission
	if d.rx != nil && now.Sub(d.rxStart) > rxFlushAfter {
		stale = d.rx
		d.rx = nil
	}
	d.mu.Unlock()

	if stale != nil {
		d.FireReceive(stale)
	}
	if timedOut != nil {
		d.Logger.Warn().Object("tx", timedOut).Msg("micromodem.DoWork transmission timed out")
		errs = append(errs, driver.LinkError("cycle", ErrTxTimeout))
	}
	return errors.Join(errs...)
}

func (d *Driver) handle(line *serialline.Line, s nmea.Sentence) error {
	switch s.Type {
	case "DRQ":
		return d.handleDataRequest(line, s)
	case "RXD":
		d.handleRxData(s)
	case "CST":
		d.handleStats(s)
	case "ACK":
		src, err1 := s.Int(1)
		dest, err2 := s.Int(2)
		if err := errors.Join(err1, err2); err != nil {
			d.Logger.Warn().Err(err).Msg("micromodem.DoWork bad $CAACK")
			return nil
		}
		ack := transmission.NewAck(src, dest)
		ack.Time = d.now()
		d.FireReceive(ack)
	case "ERR":
		d.mu.Lock()
		dropped := d.pending
		d.pending = nil
		d.mu.Unlock()
		ev := d.Logger.Warn().Strs("fields", s.Fields)
		if dropped != nil {
			ev = ev.Object("dropped", dropped)
		}
		ev.Msg("micromodem.DoWork modem error")
	default:
		d.Logger.Debug().Str("sentence", s.Address()).Strs("fields", s.Fields).Msg("micromodem.DoWork")
	}
	return nil
}

// $CADRQ,HHMMSS,SRC,DEST,ACK,N,F#
func (d *Driver) handleDataRequest(line *serialline.Line, s nmea.Sentence) error {
	d.mu.Lock()
	pending := d.pending
	d.mu.Unlock()
	if pending == nil {
		d.Logger.Warn().Strs("fields", s.Fields).Msg("micromodem.DoWork data request with nothing queued")
		return nil
	}
	n, err := s.Int(5)
	if err != nil || n < 1 || n > len(pending.Frames) {
		d.Logger.Warn().Strs("fields", s.Fields).Msg("micromodem.DoWork data request for unknown frame")
		return nil
	}
	ack := "0"
	if pending.AckRequested {
		ack = "1"
	}
	txd := nmea.New(talker, "TXD",
		strconv.Itoa(pending.Src), strconv.Itoa(pending.Dest), ack, hex.EncodeToString(pending.Frames[n-1]))
	if err := line.WriteLine(txd.String()); err != nil {
		return driver.LinkError("write $CCTXD", err)
	}

	d.mu.Lock()
	d.served++
	done := d.served >= len(pending.Frames)
	if done {
		d.pending = nil
	}
	d.mu.Unlock()
	if done {
		pending.Time = d.now()
		d.FireTransmit(pending)
	}
	return nil
}

// $CARXD,SRC,DEST,ACK,F#,HEX
func (d *Driver) handleRxData(s nmea.Sentence) {
	src, err1 := s.Int(0)
	dest, err2 := s.Int(1)
	ack, err3 := s.Int(2)
	payload, err4 := hex.DecodeString(s.Field(4))
	if err := errors.Join(err1, err2, err3, err4); err != nil {
		d.Logger.Warn().Err(err).Strs("fields", s.Fields).Msg("micromodem.DoWork bad $CARXD")
		return
	}

	var flushed *transmission.Transmission
	d.mu.Lock()
	if d.rx != nil && (d.rx.Src != src || d.rx.Dest != dest) {
		flushed = d.rx
		d.rx = nil
	}
	if d.rx == nil {
		d.rx = &transmission.Transmission{
			Src:          src,
			Dest:         dest,
			Type:         transmission.TypeData,
			AckRequested: ack != 0,
			Time:         d.now(),
		}
		d.rxStart = d.rx.Time
	}
	d.rx.AddFrame(payload)
	d.mu.Unlock()

	if flushed != nil {
		d.FireReceive(flushed)
	}
}

// $CACST,SRC,SNR_IN,SNR_OUT,MSE,DOPPLER,STDDEV_NOISE,BAD_FRAMES
//
// Only the fields above are read; firmware that emits the full positional
// record should be mapped before reaching the driver.
func (d *Driver) handleStats(s nmea.Sentence) {
	stats := &transmission.ReceiveStatistics{Source: s.Field(0)}
	var errs []error
	var err error
	if stats.SNRIn, err = s.Float(1); err != nil {
		errs = append(errs, err)
	}
	if stats.SNROut, err = s.Float(2); err != nil {
		errs = append(errs, err)
	}
	if stats.MSE, err = s.Float(3); err != nil {
		errs = append(errs, err)
	}
	if stats.Doppler, err = s.Float(4); err != nil {
		errs = append(errs, err)
	}
	if stats.StdDevNoise, err = s.Float(5); err != nil {
		errs = append(errs, err)
	}
	if raw := strings.TrimSpace(s.Field(6)); raw != "" {
		if stats.BadFrames, err = strconv.Atoi(raw); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		d.Logger.Warn().Err(err).Strs("fields", s.Fields).Msg("micromodem.DoWork bad $CACST")
		stats = nil
	}

	d.mu.Lock()
	rx := d.rx
	d.rx = nil
	d.mu.Unlock()
	if rx == nil {
		return
	}
	rx.RxStats = stats
	d.FireReceive(rx)
}
