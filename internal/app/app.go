// Package app holds the topside/vehicle policies that sit on top of
// the link: what to send when a slot opens and what to do with what arrives.
package app

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/danmuck/tdmalink/internal/codec"
	"github.com/danmuck/tdmalink/internal/messages"
	"github.com/danmuck/tdmalink/internal/node"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

const (
	TopsideID = 1
	VehicleID = 2
)

type Role int

const (
	RoleTopside Role = iota + 1
	RoleVehicle
)

func (r Role) String() string {
	switch r {
	case RoleTopside:
		return "topside"
	case RoleVehicle:
		return "vehicle"
	default:
		return "unknown"
	}
}

func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "topside":
		return RoleTopside, nil
	case "vehicle":
		return RoleVehicle, nil
	default:
		return 0, fmt.Errorf("app: unknown role %q (want topside or vehicle)", raw)
	}
}

// ID is the modem id the role runs as.
func (r Role) ID() int {
	if r == RoleVehicle {
		return VehicleID
	}
	return TopsideID
}

// Peer is the id on the other end of the link.
func (r Role) Peer() int {
	if r == RoleVehicle {
		return TopsideID
	}
	return VehicleID
}

// New returns the application for role.
func New(role Role, rng *rand.Rand, logger zerolog.Logger) (node.Application, error) {
	logger = logger.With().Str("role", role.String()).Logger()
	switch role {
	case RoleTopside:
		return &Topside{receiver: receiver{logger: logger}, rng: rng}, nil
	case RoleVehicle:
		return &Vehicle{receiver: receiver{logger: logger}, rng: rng}, nil
	default:
		return nil, fmt.Errorf("app: unknown role %d", role)
	}
}

// receiver is the consumer half shared by both roles.
type receiver struct {
	logger zerolog.Logger

	received int
	acks     int
}

func (r *receiver) Receive(msg codec.Message, rx *transmission.Transmission) {
	r.received++
	ev := r.logger.Info().Int("src", rx.Src).Str("msg_type", fmt.Sprintf("%T", msg))
	if obj, ok := msg.(zerolog.LogObjectMarshaler); ok {
		ev = ev.Object("body", obj)
	}
	ev.Msg("app.Receive")
}

func (r *receiver) ReceiveAck(rx *transmission.Transmission) {
	r.acks++
	r.logger.Info().Int("src", rx.Src).Msg("app.ReceiveAck")
}

// Topside commands the vehicle on every other opportunity.
type Topside struct {
	receiver
	rng      *rand.Rand
	requests int
}

func (a *Topside) DataRequest(slot *transmission.Transmission) (node.Outgoing, bool, error) {
	n := a.requests
	a.requests++
	if n%2 == 1 {
		a.logger.Info().Msg("app.DataRequest no command to send")
		return node.Outgoing{}, false, nil
	}
	cmd := &messages.Command{
		WaypointX:   float64(a.rng.Intn(10000) - 5000),
		WaypointY:   float64(a.rng.Intn(10000) - 5000),
		SurveyDepth: float64(a.rng.Intn(1000)),
		Speed:       1.5,
	}
	a.logger.Info().Object("command", cmd).Msg("app.DataRequest sending command")
	return node.Outgoing{Message: cmd, Dest: VehicleID, AckRequested: true}, true, nil
}

// Vehicle reports its position whenever asked; reports supersede each other
// so no ack is requested.
type Vehicle struct {
	receiver
	rng *rand.Rand
}

func (a *Vehicle) DataRequest(slot *transmission.Transmission) (node.Outgoing, bool, error) {
	report := &messages.NavigationReport{
		X:            float64(a.rng.Intn(10000) - 5000),
		Y:            float64(a.rng.Intn(10000) - 5000),
		Z:            -float64(a.rng.Intn(1000)),
		VehicleClass: messages.ClassAUV,
		BatteryOK:    true,
	}
	a.logger.Info().Object("report", report).Msg("app.DataRequest sending report")
	return node.Outgoing{Message: report, Dest: TopsideID}, true, nil
}
