// Package factory constructs drivers by kind.
package factory

import (
	"fmt"
	"sort"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/driver/atm900"
	"github.com/danmuck/tdmalink/internal/driver/loopback"
	"github.com/danmuck/tdmalink/internal/driver/micromodem"
	"github.com/danmuck/tdmalink/internal/driver/serialline"
	"github.com/danmuck/tdmalink/internal/driver/udp"
	"github.com/rs/zerolog"
)

// Deps are the shared resources a constructor may need.
type Deps struct {
	Logger zerolog.Logger
	// Medium is required for loopback drivers.
	Medium *loopback.Medium
	// Opener overrides serial port access; nil opens real devices.
	Opener serialline.Opener
}

type Constructor func(deps Deps) driver.Driver

// constructors is fixed at build time; adding a transport means adding a Kind
// and a case here.
var constructors = map[driver.Kind]Constructor{
	driver.KindUDP: func(deps Deps) driver.Driver {
		return udp.New(deps.Logger)
	},
	driver.KindMicromodem: func(deps Deps) driver.Driver {
		return micromodem.New(deps.Opener, deps.Logger)
	},
	driver.KindATM900: func(deps Deps) driver.Driver {
		return atm900.New(deps.Opener, deps.Logger)
	},
	driver.KindLoopback: func(deps Deps) driver.Driver {
		return loopback.New(deps.Medium, deps.Logger)
	},
}

// Kinds lists constructible kinds in enum order.
func Kinds() []driver.Kind {
	out := make([]driver.Kind, 0, len(constructors))
	for k := range constructors {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds an unstarted driver of the given kind.
func New(kind driver.Kind, deps Deps) (driver.Driver, error) {
	c, ok := constructors[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", driver.ErrUnknownKind, kind)
	}
	if kind == driver.KindLoopback && deps.Medium == nil {
		deps.Medium = loopback.NewMedium()
	}
	return c(deps), nil
}
