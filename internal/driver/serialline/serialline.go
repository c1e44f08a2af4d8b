// Package serialline carries CR/LF terminated text lines over a serial port.
// Modem drivers own the protocol; this package only moves lines.
package serialline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

const (
	lineQueueLen = 128
	errQueueLen  = 8
	maxBackoff   = time.Second
)

var ErrClosed = errors.New("serialline: closed")

// Opener opens the device behind endpoint. Tests swap in in-memory pipes.
type Opener func(endpoint string, baud int) (io.ReadWriteCloser, error)

// OpenPort opens a real serial device, 8N1.
func OpenPort(endpoint string, baud int) (io.ReadWriteCloser, error) {
	port, err := serial.Open(endpoint, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", endpoint, err)
	}
	return port, nil
}

// Line is an open line-oriented connection.
type Line struct {
	port   io.ReadWriteCloser
	logger zerolog.Logger

	wmu   sync.Mutex
	lines chan string
	errs  chan error
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup

	// fatal is set once the port can no longer be read.
	fmu   sync.Mutex
	fatal error
}

func Open(open Opener, endpoint string, baud int, logger zerolog.Logger) (*Line, error) {
	if open == nil {
		open = OpenPort
	}
	port, err := open(endpoint, baud)
	if err != nil {
		return nil, err
	}
	l := &Line{
		port:   port,
		logger: logger,
		lines:  make(chan string, lineQueueLen),
		errs:   make(chan error, errQueueLen),
		done:   make(chan struct{}),
	}
	l.wg.Add(1)
	go l.readLoop()
	return l, nil
}

func (l *Line) readLoop() {
	defer l.wg.Done()
	r := bufio.NewReader(l.port)
	var partial strings.Builder
	failures := 0
	for {
		chunk, err := r.ReadString('\n')
		partial.WriteString(chunk)
		if err == nil {
			failures = 0
			if !l.deliver(partial.String()) {
				return
			}
			partial.Reset()
			continue
		}
		if l.closing() {
			return
		}
		if terminal(err) {
			l.deliver(partial.String())
			l.fmu.Lock()
			l.fatal = err
			l.fmu.Unlock()
			l.logger.Warn().Err(err).Msg("serialline.read port lost")
			return
		}

		// bufio.Reader clears a returned error, so the next read retries the port.
		select {
		case l.errs <- err:
		default:
			l.logger.Warn().Err(err).Msg("serialline.read error queue full")
		}
		failures++
		backoff := time.Duration(failures) * 10 * time.Millisecond
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		select {
		case <-l.done:
			return
		case <-time.After(backoff):
		}
	}
}

// deliver queues one raw line; false means the Line is closing.
func (l *Line) deliver(raw string) bool {
	line := strings.TrimRight(raw, "\r\n")
	if line == "" {
		return true
	}
	l.logger.Trace().Str("line", line).Msg("serialline.read")
	select {
	case l.lines <- line:
	case <-l.done:
		return false
	default:
		l.logger.Warn().Str("line", line).Msg("serialline.read queue full, dropping line")
	}
	return true
}

func (l *Line) closing() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// terminal reports read errors after which the port yields nothing more.
func terminal(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var coded interface{ Code() serial.PortErrorCode }
	return errors.As(err, &coded) && coded.Code() == serial.PortClosed
}

// WriteLine writes s followed by CRLF.
func (l *Line) WriteLine(s string) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}
	l.wmu.Lock()
	defer l.wmu.Unlock()
	l.logger.Trace().Str("line", s).Msg("serialline.write")
	_, err := io.WriteString(l.port, s+"\r\n")
	return err
}

// Poll returns every line read since the last call without blocking. Transient
// read failures are reported once each, after the lines that preceded them.
// Once the port is lost every later call reports that failure.
func (l *Line) Poll() ([]string, error) {
	var out []string
lines:
	for {
		select {
		case line := <-l.lines:
			out = append(out, line)
		default:
			break lines
		}
	}
	var errs []error
faults:
	for {
		select {
		case err := <-l.errs:
			errs = append(errs, err)
		default:
			break faults
		}
	}
	l.fmu.Lock()
	if l.fatal != nil {
		errs = append(errs, l.fatal)
	}
	l.fmu.Unlock()
	return out, errors.Join(errs...)
}

func (l *Line) Close() error {
	var err error
	l.once.Do(func() {
		close(l.done)
		err = l.port.Close()
		l.wg.Wait()
	})
	return err
}
