// Package atm900 drives a Benthos ATM-900 series modem over its serial
// command line.
//
// Wire dialogue (one line each, CRLF terminated):
//
//	-> @LocalAddr=1            configuration, then each extension verbatim
//	-> AT$SEND,2,1,7c01,ff     dest, ack, hex frames
//	<- DATA(2,1,1):7c01,ff     src, dest, ack, hex frames
//	<- ACK(2,1)                src, dest
//	<- RXSTATS(snr_in=12.5,...) attaches to the next DATA line
//	<- ERROR ...
package atm900

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/driver/serialline"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

var ErrMalformedLine = errors.New("atm900: malformed line")

// Driver is the ATM-900 transport.
type Driver struct {
	driver.Base

	open serialline.Opener
	now  func() time.Time

	mu    sync.Mutex
	cfg   driver.Config
	line  *serialline.Line
	stats *transmission.ReceiveStatistics
}

var _ driver.Driver = (*Driver)(nil)

func New(open serialline.Opener, logger zerolog.Logger) *Driver {
	d := &Driver{open: open, now: time.Now}
	d.Logger = logger.With().Str("driver", driver.KindATM900.String()).Logger()
	return d
}

func (d *Driver) Kind() driver.Kind { return driver.KindATM900 }

func (d *Driver) Limits() driver.Limits {
	return driver.Limits{MaxRate: 13, MaxFrameBytes: 1024}
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

	cmds := append([]string{"@LocalAddr=" + strconv.Itoa(cfg.ModemID)}, cfg.Extensions...)
	for _, cmd := range cmds {
		if err := line.WriteLine(strings.TrimSpace(cmd)); err != nil {
			_ = line.Close()
			return driver.StartupError{Kind: d.Kind(), Err: err}
		}
	}

	d.mu.Lock()
	d.cfg = cfg
	d.line = line
	d.stats = nil
	d.mu.Unlock()
	d.Logger.Info().
		Int("modem_id", cfg.ModemID).
		Str("endpoint", cfg.Endpoint).
		Strs("extensions", cfg.Extensions).
		Msg("atm900.Startup configured")
	return nil
}

func (d *Driver) Shutdown() error {
	d.mu.Lock()
	line := d.line
	d.line = nil
	d.mu.Unlock()
	if line == nil {
		return nil
	}
	return line.Close()
}

func (d *Driver) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.line != nil
}

func (d *Driver) InitiateTransmission(t *transmission.Transmission) error {
	d.mu.Lock()
	line := d.line
	d.mu.Unlock()
	if line == nil {
		return driver.ErrNotStarted
	}

	out := t.Clone()
	ok, err := d.RequestData(out)
	if err != nil {
		return err
	}
	if !ok {
		d.Logger.Debug().Object("tx", out).Msg("atm900.InitiateTransmission no data")
		return nil
	}

	if err := line.WriteLine(sendCommand(out)); err != nil {
		return driver.LinkError("write AT$SEND", err)
	}
	out.Time = d.now()
	d.Logger.Debug().Object("tx", out).Msg("atm900.InitiateTransmission sent")
	d.FireTransmit(out)
	return nil
}

func sendCommand(t *transmission.Transmission) string {
	parts := []string{"AT$SEND", strconv.Itoa(t.Dest), boolDigit(t.AckRequested)}
	for _, f := range t.Frames {
		parts = append(parts, hex.EncodeToString(f))
	}
	return strings.Join(parts, ",")
}

func boolDigit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func (d *Driver) DoWork() error {
	d.mu.Lock()
	line := d.line
	d.mu.Unlock()
	if line == nil {
		return driver.ErrNotStarted
	}

	lines, readErr := line.Poll()
	for _, raw := range lines {
		if err := d.handle(raw); err != nil {
			d.Logger.Warn().Err(err).Str("line", raw).Msg("atm900.DoWork dropping line")
		}
	}
	if readErr != nil {
		return driver.LinkError("read", readErr)
	}
	return nil
}

func (d *Driver) handle(raw string) error {
	switch {
	case strings.HasPrefix(raw, "DATA("):
		args, body, err := splitCall(raw, "DATA")
		if err != nil {
			return err
		}
		nums, err := ints(args, 3)
		if err != nil {
			return err
		}
		rx := &transmission.Transmission{
			Src:          nums[0],
			Dest:         nums[1],
			Type:         transmission.TypeData,
			AckRequested: nums[2] != 0,
			Time:         d.now(),
		}
		for _, h := range strings.Split(body, ",") {
			if h == "" {
				continue
			}
			b, err := hex.DecodeString(h)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrMalformedLine, err)
			}
			rx.AddFrame(b)
		}
		d.mu.Lock()
		rx.RxStats = d.stats
		d.stats = nil
		d.mu.Unlock()
		d.FireReceive(rx)
	case strings.HasPrefix(raw, "ACK("):
		args, _, err := splitCall(raw, "ACK")
		if err != nil {
			return err
		}
		nums, err := ints(args, 2)
		if err != nil {
			return err
		}
		ack := transmission.NewAck(nums[0], nums[1])
		ack.Time = d.now()
		d.FireReceive(ack)
	case strings.HasPrefix(raw, "RXSTATS("):
		args, _, err := splitCall(raw, "RXSTATS")
		if err != nil {
			return err
		}
		stats, err := parseStats(args)
		if err != nil {
			return err
		}
		d.mu.Lock()
		d.stats = stats
		d.mu.Unlock()
	case strings.HasPrefix(raw, "ERROR"):
		d.Logger.Warn().Str("line", raw).Msg("atm900.DoWork modem error")
	default:
		d.Logger.Debug().Str("line", raw).Msg("atm900.DoWork")
	}
	return nil
}

// splitCall parses NAME(a,b,c):body.
func splitCall(raw, name string) ([]string, string, error) {
	rest := strings.TrimPrefix(raw, name+"(")
	end := strings.IndexByte(rest, ')')
	if end < 0 {
		return nil, "", fmt.Errorf("%w: missing ')'", ErrMalformedLine)
	}
	args := strings.Split(rest[:end], ",")
	body := strings.TrimPrefix(rest[end+1:], ":")
	return args, body, nil
}

func ints(args []string, n int) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("%w: want %d arguments, got %d", ErrMalformedLine, n, len(args))
	}
	out := make([]int, n)
	for i, a := range args {
		v, err := strconv.Atoi(strings.TrimSpace(a))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseStats(args []string) (*transmission.ReceiveStatistics, error) {
	stats := &transmission.ReceiveStatistics{Source: "atm900"}
	for _, kv := range args {
		key, val, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if !ok {
			return nil, fmt.Errorf("%w: stat %q", ErrMalformedLine, kv)
		}
		if key == "bad_frames" {
			n, err := strconv.Atoi(val)
			if err != nil {
				return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
			}
			stats.BadFrames = n
			continue
		}
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedLine, err)
		}
		switch key {
		case "snr_in":
			stats.SNRIn = f
		case "snr_out":
			stats.SNROut = f
		case "mse":
			stats.MSE = f
		case "doppler":
			stats.Doppler = f
		case "noise":
			stats.StdDevNoise = f
		}
	}
	return stats, nil
}
