// Package driver owns the link driver contract shared by every transport.
//
// Ownership boundary:
// - Driver interface and handler registration
// - transport kinds and startup configuration
// - startup/runtime error taxonomy
//
// Handlers fire synchronously on the goroutine calling DoWork or
// InitiateTransmission and must not block.
package driver

//go:generate mockgen -destination=drivermock/driver.go -package=drivermock . Driver

import (
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

// DataRequestHandler fills an outgoing transmission (frames, dest, ack_requested).
// Leaving Frames empty declines the opportunity.
type DataRequestHandler func(t *transmission.Transmission) error

// ReceiveHandler is invoked once per fully received transmission.
type ReceiveHandler func(t *transmission.Transmission)

// TransmitHandler is invoked after a transmission has been handed to the transport.
type TransmitHandler func(t *transmission.Transmission)

// Limits is what a transport can physically carry.
type Limits struct {
	MaxRate       int
	MaxFrameBytes int
}

// Driver is the link abstraction implemented by every transport variant.
type Driver interface {
	Kind() Kind
	Startup(cfg Config) error
	Shutdown() error
	DoWork() error
	InitiateTransmission(t *transmission.Transmission) error
	Ready() bool
	Limits() Limits
	OnDataRequest(h DataRequestHandler)
	OnReceive(h ReceiveHandler)
	OnTransmit(h TransmitHandler)
}

// Base carries handler registration for embedding drivers.
type Base struct {
	Logger zerolog.Logger

	dataRequest []DataRequestHandler
	receive     []ReceiveHandler
	transmit    []TransmitHandler
}

func (b *Base) OnDataRequest(h DataRequestHandler) {
	if h != nil {
		b.dataRequest = append(b.dataRequest, h)
	}
}

func (b *Base) OnReceive(h ReceiveHandler) {
	if h != nil {
		b.receive = append(b.receive, h)
	}
}

func (b *Base) OnTransmit(h TransmitHandler) {
	if h != nil {
		b.transmit = append(b.transmit, h)
	}
}

// RequestData runs the data-request handlers in registration order and reports
// whether t now carries anything to send. Handler errors are returned as-is.
// A transmission that breaks its own frame budget is dropped and logged.
func (b *Base) RequestData(t *transmission.Transmission) (bool, error) {
	for _, h := range b.dataRequest {
		if err := h(t); err != nil {
			return false, err
		}
	}
	if !t.HasData() {
		return false, nil
	}
	if err := t.Validate(); err != nil {
		b.Logger.Warn().Err(err).Object("tx", t).Msg("driver.RequestData dropping invalid transmission")
		return false, nil
	}
	return true, nil
}

func (b *Base) FireReceive(t *transmission.Transmission) {
	for _, h := range b.receive {
		h(t)
	}
}

func (b *Base) FireTransmit(t *transmission.Transmission) {
	for _, h := range b.transmit {
		h(t)
	}
}
