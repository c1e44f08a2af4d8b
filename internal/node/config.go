package node

import (
	"fmt"
	"strings"
	"time"
)

// LinkErrorPolicy decides what a transient driver fault does to the loop.
type LinkErrorPolicy int

const (
	// PolicyContinue logs the fault and keeps ticking.
	PolicyContinue LinkErrorPolicy = iota
	// PolicyFail stops the loop on the first fault.
	PolicyFail
)

func (p LinkErrorPolicy) String() string {
	if p == PolicyFail {
		return "fail"
	}
	return "continue"
}

func ParseLinkErrorPolicy(raw string) (LinkErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "continue":
		return PolicyContinue, nil
	case "fail":
		return PolicyFail, nil
	default:
		return PolicyContinue, fmt.Errorf("node: unknown link error policy %q (want continue or fail)", raw)
	}
}

func (p LinkErrorPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

func (p *LinkErrorPolicy) UnmarshalText(b []byte) error {
	parsed, err := ParseLinkErrorPolicy(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type Config struct {
	// TickInterval is the polling period; it must be shorter than the
	// shortest slot.
	TickInterval time.Duration
	LinkErrors   LinkErrorPolicy
	// MaxConsecutiveLinkErrors stops the loop under PolicyContinue once this
	// many ticks in a row fault. Zero means never.
	MaxConsecutiveLinkErrors int
	// DrainTimeout bounds how long Stop waits for an in-flight transmission.
	DrainTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 100 * time.Millisecond,
		LinkErrors:   PolicyContinue,
		DrainTimeout: 5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	if c.DrainTimeout < 0 {
		c.DrainTimeout = 0
	}
	return c
}
