package driver

import (
	"fmt"
	"strings"
	"time"
)

// UDPConfig configures the socket-simulated modem.
type UDPConfig struct {
	LocalAddr   string
	RemoteAddrs []string
	// SimDelay holds received transmissions back to mimic acoustic propagation.
	SimDelay time.Duration
}

// Config is the startup configuration common to every transport. Fields a
// transport does not use are ignored by it.
type Config struct {
	ModemID  int
	Endpoint string
	BaudRate int
	// Extensions are transport-specific configuration lines sent verbatim to the
	// device at startup (e.g. "@TxPower=1" or "SRC,1"), in order.
	Extensions []string
	UDP        UDPConfig
	// TxTimeout bounds how long a serial modem may take to ask for queued data.
	TxTimeout time.Duration
}

const DefaultBaudRate = 19200

// DefaultConfig returns transport defaults for modem id.
func DefaultConfig(id int) Config {
	return Config{
		ModemID:   id,
		BaudRate:  DefaultBaudRate,
		TxTimeout: 10 * time.Second,
	}
}

// Validate checks the fields every transport relies on.
func (c Config) Validate() error {
	if c.ModemID <= 0 {
		return fmt.Errorf("%w: modem_id must be positive, got %d", ErrInvalid, c.ModemID)
	}
	if c.BaudRate < 0 {
		return fmt.Errorf("%w: negative baud rate", ErrInvalid)
	}
	for i, ext := range c.Extensions {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("%w: extension[%d] is empty", ErrInvalid, i)
		}
	}
	return nil
}
