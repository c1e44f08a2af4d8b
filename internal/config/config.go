// Package config resolves one participant's runtime configuration from
// built-in defaults and an optional TOML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/tdmalink/internal/app"
	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/logging"
	"github.com/danmuck/tdmalink/internal/mac"
	"github.com/danmuck/tdmalink/internal/node"
	"github.com/danmuck/tdmalink/internal/transmission"
)

const (
	DefaultSlotDuration  = 20 * time.Second
	DefaultMaxFrameBytes = 64
	TopsideUDPAddr       = "127.0.0.1:50001"
	VehicleUDPAddr       = "127.0.0.1:50002"
)

// Config is everything cmd/tdmalink needs to build and run a node.
type Config struct {
	Role       app.Role
	Kind       driver.Kind
	Node       node.Config
	MAC        mac.Config
	Driver     driver.Config
	Log        logging.Config
	StatusAddr string

	// StatusToken, when set, is required as a bearer token by the status API.
	StatusToken string
}

// SlotRate is the bit-rate code the default schedule uses on kind.
func SlotRate(kind driver.Kind) int {
	switch kind {
	case driver.KindATM900:
		return 3
	default:
		return 1
	}
}

// Default builds the two-party topside/vehicle setup: three 64 byte, 20 second
// DATA slots owned by topside, vehicle, vehicle.
func Default(role app.Role, kind driver.Kind, endpoint string) Config {
	slot := func(owner int) mac.Slot {
		return mac.Slot{Owner: owner, Template: transmission.Transmission{
			Src:           owner,
			Type:          transmission.TypeData,
			Rate:          SlotRate(kind),
			MaxFrameBytes: DefaultMaxFrameBytes,
			SlotDuration:  DefaultSlotDuration,
		}}
	}

	drv := driver.DefaultConfig(role.ID())
	drv.Endpoint = endpoint
	switch kind {
	case driver.KindATM900:
		drv.Extensions = []string{"@SimAcDly=1000", "@TxPower=1", "@IdleTimer=00:01:00"}
	case driver.KindUDP:
		local, remote := TopsideUDPAddr, VehicleUDPAddr
		if role == app.RoleVehicle {
			local, remote = remote, local
		}
		drv.UDP = driver.UDPConfig{LocalAddr: local, RemoteAddrs: []string{remote}}
	}

	return Config{
		Role: role,
		Kind: kind,
		Node: node.DefaultConfig(),
		MAC: mac.Config{
			Type:    mac.FixedDecentralized,
			ModemID: role.ID(),
			Slots:   []mac.Slot{slot(app.TopsideID), slot(app.VehicleID), slot(app.VehicleID)},
		},
		Driver: drv,
		Log:    logging.DefaultConfig(logging.ProfileRuntime),
	}
}

// Validate checks the cross-section rules the individual packages
// cannot see on their own.
func (c Config) Validate() error {
	if c.Kind == driver.KindUnknown {
		return fmt.Errorf("config: driver kind is required")
	}
	if c.MAC.ModemID != c.Driver.ModemID {
		return fmt.Errorf("config: mac.modem_id %d != driver.modem_id %d", c.MAC.ModemID, c.Driver.ModemID)
	}
	for i, s := range c.MAC.Slots {
		if d := s.Duration(); d > 0 && c.Node.TickInterval >= d {
			return fmt.Errorf("config: tick_interval %s must be shorter than slot[%d] (%s)", c.Node.TickInterval, i, d)
		}
	}
	return c.Driver.Validate()
}

type fileConfig struct {
	Node   nodeSection   `toml:"node"`
	MAC    macSection    `toml:"mac"`
	Driver driverSection `toml:"driver"`
	Log    logSection    `toml:"log"`
	Status statusSection `toml:"status"`
}

type nodeSection struct {
	Role                     string `toml:"role"`
	TickInterval             string `toml:"tick_interval"`
	LinkErrors               string `toml:"link_errors"`
	MaxConsecutiveLinkErrors int    `toml:"max_consecutive_link_errors"`
	DrainTimeout             string `toml:"drain_timeout"`
}

type macSection struct {
	Type         string        `toml:"type"`
	ModemID      int           `toml:"modem_id"`
	Synchronized bool          `toml:"synchronized"`
	Slots        []slotSection `toml:"slot"`
}

type slotSection struct {
	Owner         int    `toml:"owner"`
	Type          string `toml:"type"`
	Dest          int    `toml:"dest"`
	Rate          int    `toml:"rate"`
	MaxFrameBytes int    `toml:"max_frame_bytes"`
	Duration      string `toml:"duration"`
}

type driverSection struct {
	Kind       string     `toml:"kind"`
	ModemID    int        `toml:"modem_id"`
	Endpoint   string     `toml:"endpoint"`
	BaudRate   int        `toml:"baud_rate"`
	TxTimeout  string     `toml:"tx_timeout"`
	Extensions []string   `toml:"extensions"`
	UDP        udpSection `toml:"udp"`
}

type udpSection struct {
	LocalAddr   string   `toml:"local_addr"`
	RemoteAddrs []string `toml:"remote_addrs"`
	SimDelay    string   `toml:"sim_delay"`
}

type logSection struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	Console    bool   `toml:"console"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

type statusSection struct {
	Addr  string `toml:"addr"`
	Token string `toml:"token"`
}

// Load overlays the keys present in the TOML file at path onto base. A
// [[mac.slot]] list replaces the whole default schedule. Changing
// node.role re-derives the modem ids unless they are set explicitly.
func Load(path string, base Config) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config (%s): unknown key %q", path, undecoded[0].String())
	}
	cfg, err := apply(meta, raw, base)
	if err != nil {
		return Config{}, fmt.Errorf("config (%s): %w", path, err)
	}
	return cfg, nil
}

func apply(meta toml.MetaData, raw fileConfig, cfg Config) (Config, error) {
	if meta.IsDefined("driver", "kind") {
		k, err := driver.ParseKind(raw.Driver.Kind)
		if err != nil {
			return Config{}, err
		}
		cfg.Kind = k
	}
	if meta.IsDefined("node", "role") {
		role, err := app.ParseRole(raw.Node.Role)
		if err != nil {
			return Config{}, err
		}
		cfg.Role = role
		cfg.MAC.ModemID = role.ID()
		cfg.Driver.ModemID = role.ID()
	}
	if meta.IsDefined("node", "tick_interval") {
		d, err := parseDuration("node.tick_interval", raw.Node.TickInterval)
		if err != nil {
			return Config{}, err
		}
		cfg.Node.TickInterval = d
	}
	if meta.IsDefined("node", "link_errors") {
		p, err := node.ParseLinkErrorPolicy(raw.Node.LinkErrors)
		if err != nil {
			return Config{}, err
		}
		cfg.Node.LinkErrors = p
	}
	if meta.IsDefined("node", "max_consecutive_link_errors") {
		cfg.Node.MaxConsecutiveLinkErrors = raw.Node.MaxConsecutiveLinkErrors
	}
	if meta.IsDefined("node", "drain_timeout") {
		d, err := parseDuration("node.drain_timeout", raw.Node.DrainTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Node.DrainTimeout = d
	}

	if meta.IsDefined("mac", "type") {
		t, err := mac.ParseScheduleType(raw.MAC.Type)
		if err != nil {
			return Config{}, err
		}
		cfg.MAC.Type = t
	}
	if meta.IsDefined("mac", "modem_id") {
		cfg.MAC.ModemID = raw.MAC.ModemID
	}
	if meta.IsDefined("mac", "synchronized") {
		cfg.MAC.Synchronized = raw.MAC.Synchronized
	}
	if meta.IsDefined("mac", "slot") {
		slots, err := buildSlots(raw.MAC.Slots, cfg.Kind)
		if err != nil {
			return Config{}, err
		}
		cfg.MAC.Slots = slots
	}

	if meta.IsDefined("driver", "modem_id") {
		cfg.Driver.ModemID = raw.Driver.ModemID
	}
	if meta.IsDefined("driver", "endpoint") {
		cfg.Driver.Endpoint = strings.TrimSpace(raw.Driver.Endpoint)
	}
	if meta.IsDefined("driver", "baud_rate") {
		cfg.Driver.BaudRate = raw.Driver.BaudRate
	}
	if meta.IsDefined("driver", "tx_timeout") {
		d, err := parseDuration("driver.tx_timeout", raw.Driver.TxTimeout)
		if err != nil {
			return Config{}, err
		}
		cfg.Driver.TxTimeout = d
	}
	if meta.IsDefined("driver", "extensions") {
		cfg.Driver.Extensions = normalize(raw.Driver.Extensions)
	}
	if meta.IsDefined("driver", "udp", "local_addr") {
		cfg.Driver.UDP.LocalAddr = strings.TrimSpace(raw.Driver.UDP.LocalAddr)
	}
	if meta.IsDefined("driver", "udp", "remote_addrs") {
		cfg.Driver.UDP.RemoteAddrs = normalize(raw.Driver.UDP.RemoteAddrs)
	}
	if meta.IsDefined("driver", "udp", "sim_delay") {
		d, err := parseDuration("driver.udp.sim_delay", raw.Driver.UDP.SimDelay)
		if err != nil {
			return Config{}, err
		}
		cfg.Driver.UDP.SimDelay = d
	}

	if meta.IsDefined("log", "level") {
		lvl, ok := logging.ParseLevel(raw.Log.Level)
		if !ok {
			return Config{}, fmt.Errorf("log.level: unknown level %q", raw.Log.Level)
		}
		cfg.Log.Level = lvl
	}
	if meta.IsDefined("log", "file") {
		cfg.Log.File = strings.TrimSpace(raw.Log.File)
	}
	if meta.IsDefined("log", "console") {
		cfg.Log.Console = raw.Log.Console
	}
	if meta.IsDefined("log", "max_size_mb") {
		cfg.Log.MaxSizeMB = raw.Log.MaxSizeMB
	}
	if meta.IsDefined("log", "max_backups") {
		cfg.Log.MaxBackups = raw.Log.MaxBackups
	}
	if meta.IsDefined("log", "max_age_days") {
		cfg.Log.MaxAgeDays = raw.Log.MaxAgeDays
	}
	if meta.IsDefined("log", "compress") {
		cfg.Log.Compress = raw.Log.Compress
	}

	if meta.IsDefined("status", "addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.Status.Addr)
	}
	if meta.IsDefined("status", "token") {
		cfg.StatusToken = strings.TrimSpace(raw.Status.Token)
	}
	return cfg, nil
}

func buildSlots(in []slotSection, kind driver.Kind) ([]mac.Slot, error) {
	out := make([]mac.Slot, 0, len(in))
	for i, s := range in {
		typ := transmission.TypeData
		if strings.TrimSpace(s.Type) != "" {
			t, err := transmission.ParseType(strings.ToUpper(strings.TrimSpace(s.Type)))
			if err != nil {
				return nil, fmt.Errorf("mac.slot[%d].type: %w", i, err)
			}
			typ = t
		}
		d := DefaultSlotDuration
		if strings.TrimSpace(s.Duration) != "" {
			parsed, err := parseDuration(fmt.Sprintf("mac.slot[%d].duration", i), s.Duration)
			if err != nil {
				return nil, err
			}
			d = parsed
		}
		rate := s.Rate
		if rate == 0 {
			rate = SlotRate(kind)
		}
		mfb := s.MaxFrameBytes
		if mfb == 0 {
			mfb = DefaultMaxFrameBytes
		}
		out = append(out, mac.Slot{Owner: s.Owner, Template: transmission.Transmission{
			Src:           s.Owner,
			Dest:          s.Dest,
			Type:          typ,
			Rate:          rate,
			MaxFrameBytes: mfb,
			SlotDuration:  d,
		}})
	}
	return out, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func normalize(in []string) []string {
	var out []string
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
