package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tdmalink/internal/app"
	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/mac"
	"github.com/danmuck/tdmalink/internal/node"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tdmalink.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultTwoPartySchedule(t *testing.T) {
	cfg := Default(app.RoleVehicle, driver.KindATM900, "/dev/ttyUSB0")

	if cfg.MAC.ModemID != 2 || cfg.Driver.ModemID != 2 {
		t.Fatalf("vehicle ids: mac=%d driver=%d", cfg.MAC.ModemID, cfg.Driver.ModemID)
	}
	if len(cfg.MAC.Slots) != 3 {
		t.Fatalf("slots=%d want 3", len(cfg.MAC.Slots))
	}
	owners := []int{1, 2, 2}
	for i, s := range cfg.MAC.Slots {
		if s.Owner != owners[i] {
			t.Fatalf("slot[%d] owner=%d want %d", i, s.Owner, owners[i])
		}
		if s.Template.Rate != 3 || s.Template.MaxFrameBytes != 64 || s.Duration() != 20*time.Second {
			t.Fatalf("slot[%d] template=%+v", i, s.Template)
		}
	}
	if len(cfg.Driver.Extensions) != 3 || cfg.Driver.Extensions[0] != "@SimAcDly=1000" {
		t.Fatalf("atm900 extensions=%v", cfg.Driver.Extensions)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestDefaultUDPPortsSwapByRole(t *testing.T) {
	top := Default(app.RoleTopside, driver.KindUDP, "")
	veh := Default(app.RoleVehicle, driver.KindUDP, "")
	if top.Driver.UDP.LocalAddr != TopsideUDPAddr || top.Driver.UDP.RemoteAddrs[0] != VehicleUDPAddr {
		t.Fatalf("topside udp=%+v", top.Driver.UDP)
	}
	if veh.Driver.UDP.LocalAddr != VehicleUDPAddr || veh.Driver.UDP.RemoteAddrs[0] != TopsideUDPAddr {
		t.Fatalf("vehicle udp=%+v", veh.Driver.UDP)
	}
	if SlotRate(driver.KindMicromodem) != 1 || SlotRate(driver.KindUDP) != 1 {
		t.Fatalf("unexpected slot rates")
	}
}

func TestLoadOverridesOnlyDefinedKeys(t *testing.T) {
	path := writeConfig(t, `
[node]
role = "vehicle"
tick_interval = "50ms"
link_errors = "fail"

[driver]
kind = "udp"

[driver.udp]
sim_delay = "250ms"

[log]
level = "debug"

[status]
addr = "127.0.0.1:9400"
`)
	base := Default(app.RoleTopside, driver.KindUDP, "")
	cfg, err := Load(path, base)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Role != app.RoleVehicle || cfg.MAC.ModemID != 2 || cfg.Driver.ModemID != 2 {
		t.Fatalf("role override not applied: %+v", cfg)
	}
	if cfg.Node.TickInterval != 50*time.Millisecond || cfg.Node.LinkErrors != node.PolicyFail {
		t.Fatalf("node section=%+v", cfg.Node)
	}
	if cfg.Node.DrainTimeout != base.Node.DrainTimeout {
		t.Fatalf("drain timeout should keep default, got %s", cfg.Node.DrainTimeout)
	}
	if cfg.Driver.UDP.SimDelay != 250*time.Millisecond {
		t.Fatalf("sim delay=%s", cfg.Driver.UDP.SimDelay)
	}
	// local_addr was not in the file: still the base value.
	if cfg.Driver.UDP.LocalAddr != TopsideUDPAddr {
		t.Fatalf("local addr=%q", cfg.Driver.UDP.LocalAddr)
	}
	if cfg.Log.Level != zerolog.DebugLevel || cfg.StatusAddr != "127.0.0.1:9400" {
		t.Fatalf("log/status=%+v %q", cfg.Log, cfg.StatusAddr)
	}
	if len(cfg.MAC.Slots) != 3 {
		t.Fatalf("default slots should survive, got %d", len(cfg.MAC.Slots))
	}
}

func TestLoadSlotListReplacesSchedule(t *testing.T) {
	path := writeConfig(t, `
[mac]
synchronized = true

[[mac.slot]]
owner = 1
duration = "5s"
max_frame_bytes = 32

[[mac.slot]]
owner = 2
type = "data"
rate = 2
duration = "7s"
`)
	cfg, err := Load(path, Default(app.RoleTopside, driver.KindMicromodem, "/dev/ttyUSB0"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.MAC.Synchronized {
		t.Fatalf("synchronized not applied")
	}
	if len(cfg.MAC.Slots) != 2 {
		t.Fatalf("slots=%d want 2", len(cfg.MAC.Slots))
	}
	first, second := cfg.MAC.Slots[0], cfg.MAC.Slots[1]
	if first.Duration() != 5*time.Second || first.Template.MaxFrameBytes != 32 || first.Template.Rate != 1 {
		t.Fatalf("slot[0]=%+v", first.Template)
	}
	if second.Owner != 2 || second.Template.Rate != 2 || second.Template.MaxFrameBytes != DefaultMaxFrameBytes {
		t.Fatalf("slot[1]=%+v", second.Template)
	}
	if second.Template.Type != transmission.TypeData {
		t.Fatalf("slot[1] type=%s", second.Template.Type)
	}
	if cfg.MAC.CycleDuration() != 12*time.Second {
		t.Fatalf("cycle=%s", cfg.MAC.CycleDuration())
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "[node]\nflavor = \"mint\"\n",
		"bad duration":    "[node]\ntick_interval = \"soon\"\n",
		"bad policy":      "[node]\nlink_errors = \"retry\"\n",
		"bad kind":        "[driver]\nkind = \"carrier_pigeon\"\n",
		"bad slot type":   "[[mac.slot]]\nowner = 1\ntype = \"burst\"\n",
		"bad schedule":    "[mac]\ntype = \"MAC_POLLED\"\n",
		"bad role":        "[node]\nrole = \"buoy\"\n",
		"bad level":       "[log]\nlevel = \"loud\"\n",
		"not toml at all": "[[[\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeConfig(t, body)
			if _, err := Load(path, Default(app.RoleTopside, driver.KindUDP, "")); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"), Default(app.RoleTopside, driver.KindUDP, ""))
	if err == nil || !strings.Contains(err.Error(), "missing.toml") {
		t.Fatalf("expected load error naming the file, got %v", err)
	}
}

func TestValidateCatchesCrossSectionMistakes(t *testing.T) {
	cfg := Default(app.RoleTopside, driver.KindUDP, "")
	cfg.Driver.ModemID = 7
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected modem id mismatch")
	}

	cfg = Default(app.RoleTopside, driver.KindUDP, "")
	cfg.Node.TickInterval = time.Minute
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected tick interval error")
	}

	cfg = Default(app.RoleTopside, driver.KindUnknown, "")
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing kind error")
	}
}

func TestRenderRoundTripsThroughLoad(t *testing.T) {
	want := Default(app.RoleTopside, driver.KindATM900, "/dev/ttyUSB1")
	want.MAC.Synchronized = true
	want.StatusAddr = ":9400"

	path := filepath.Join(t.TempDir(), "out.toml")
	if err := WriteTemplate(path, want, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	if err := WriteTemplate(path, want, false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}

	got, err := Load(path, Default(app.RoleVehicle, driver.KindUDP, ""))
	if err != nil {
		t.Fatalf("load rendered: %v", err)
	}
	if got.Role != want.Role || got.Kind != want.Kind || got.StatusAddr != want.StatusAddr {
		t.Fatalf("top-level mismatch: %+v", got)
	}
	if got.MAC.Type != mac.FixedDecentralized || !got.MAC.Synchronized || len(got.MAC.Slots) != len(want.MAC.Slots) {
		t.Fatalf("mac mismatch: %+v", got.MAC)
	}
	for i := range want.MAC.Slots {
		if got.MAC.Slots[i].Owner != want.MAC.Slots[i].Owner ||
			got.MAC.Slots[i].Template.Rate != want.MAC.Slots[i].Template.Rate ||
			got.MAC.Slots[i].Duration() != want.MAC.Slots[i].Duration() {
			t.Fatalf("slot[%d] mismatch: %+v", i, got.MAC.Slots[i])
		}
	}
	if got.Driver.Endpoint != "/dev/ttyUSB1" || len(got.Driver.Extensions) != 3 {
		t.Fatalf("driver mismatch: %+v", got.Driver)
	}
	if got.Node != want.Node {
		t.Fatalf("node mismatch: %+v want %+v", got.Node, want.Node)
	}
}
