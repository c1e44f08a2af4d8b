package config

import (
	"fmt"
	"os"

	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/pelletier/go-toml/v2"
)

// Render emits cfg in the file format Load accepts.
func Render(cfg Config) ([]byte, error) {
	out := fileConfig{
		Node: nodeSection{
			Role:                     cfg.Role.String(),
			TickInterval:             cfg.Node.TickInterval.String(),
			LinkErrors:               cfg.Node.LinkErrors.String(),
			MaxConsecutiveLinkErrors: cfg.Node.MaxConsecutiveLinkErrors,
			DrainTimeout:             cfg.Node.DrainTimeout.String(),
		},
		MAC: macSection{
			Type:         cfg.MAC.Type.String(),
			ModemID:      cfg.MAC.ModemID,
			Synchronized: cfg.MAC.Synchronized,
		},
		Driver: driverSection{
			Kind:       cfg.Kind.String(),
			ModemID:    cfg.Driver.ModemID,
			Endpoint:   cfg.Driver.Endpoint,
			BaudRate:   cfg.Driver.BaudRate,
			TxTimeout:  cfg.Driver.TxTimeout.String(),
			Extensions: append([]string{}, cfg.Driver.Extensions...),
			UDP: udpSection{
				LocalAddr:   cfg.Driver.UDP.LocalAddr,
				RemoteAddrs: append([]string{}, cfg.Driver.UDP.RemoteAddrs...),
				SimDelay:    cfg.Driver.UDP.SimDelay.String(),
			},
		},
		Log: logSection{
			Level:      cfg.Log.Level.String(),
			File:       cfg.Log.File,
			Console:    cfg.Log.Console,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Compress:   cfg.Log.Compress,
		},
		Status: statusSection{Addr: cfg.StatusAddr, Token: cfg.StatusToken},
	}
	for _, s := range cfg.MAC.Slots {
		typ := s.Template.Type
		if typ == transmission.TypeUnknown {
			typ = transmission.TypeData
		}
		out.MAC.Slots = append(out.MAC.Slots, slotSection{
			Owner:         s.Owner,
			Type:          typ.String(),
			Dest:          s.Template.Dest,
			Rate:          s.Template.Rate,
			MaxFrameBytes: s.Template.MaxFrameBytes,
			Duration:      s.Duration().String(),
		})
	}
	b, err := toml.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("render config: %w", err)
	}
	return b, nil
}

// WriteTemplate renders cfg to path, refusing to clobber an existing file
// unless overwrite is set.
func WriteTemplate(path string, cfg Config, overwrite bool) error {
	b, err := Render(cfg)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, b, 0o600)
}
