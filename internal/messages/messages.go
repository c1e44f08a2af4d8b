// Package messages declares the payloads exchanged between a topside
// station and a vehicle.
package messages

import (
	"fmt"

	"github.com/danmuck/tdmalink/internal/codec"
	"github.com/rs/zerolog"
)

const (
	NavigationReportID uint16 = 124
	CommandID          uint16 = 125
)

type VehicleClass uint8

const (
	ClassUnknown VehicleClass = iota
	ClassAUV
	ClassUSV
	ClassShip
)

func (c VehicleClass) String() string {
	switch c {
	case ClassAUV:
		return "AUV"
	case ClassUSV:
		return "USV"
	case ClassShip:
		return "SHIP"
	default:
		return "UNKNOWN"
	}
}

// NavigationReport is the vehicle's position, in metres.
type NavigationReport struct {
	X            float64      `codec:"min=-10000,max=10000,precision=1"`
	Y            float64      `codec:"min=-10000,max=10000,precision=1"`
	Z            float64      `codec:"min=-5000,max=0,precision=0"`
	VehicleClass VehicleClass `codec:"min=0,max=3"`
	BatteryOK    bool
}

func (NavigationReport) CodecID() uint16 { return NavigationReportID }

func (r *NavigationReport) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("x", r.X).
		Float64("y", r.Y).
		Float64("z", r.Z).
		Str("veh_class", r.VehicleClass.String()).
		Bool("battery_ok", r.BatteryOK)
}

// Command sends the vehicle to a waypoint and survey depth.
type Command struct {
	WaypointX   float64 `codec:"min=-10000,max=10000,precision=0"`
	WaypointY   float64 `codec:"min=-10000,max=10000,precision=0"`
	SurveyDepth float64 `codec:"min=0,max=5000,precision=0"`
	Speed       float64 `codec:"min=0,max=20,precision=1"`
}

func (Command) CodecID() uint16 { return CommandID }

func (c *Command) MarshalZerologObject(e *zerolog.Event) {
	e.Float64("waypoint_x", c.WaypointX).
		Float64("waypoint_y", c.WaypointY).
		Float64("survey_depth", c.SurveyDepth).
		Float64("speed", c.Speed)
}

// Register installs every message type on c.
func Register(c *codec.Codec) error {
	for _, m := range []codec.Message{&NavigationReport{}, &Command{}} {
		if err := c.Register(m); err != nil {
			return fmt.Errorf("messages: %w", err)
		}
	}
	return nil
}
