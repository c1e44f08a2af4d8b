package app

import (
	"bytes"
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/danmuck/tdmalink/internal/messages"
	"github.com/danmuck/tdmalink/internal/testutil/testlog"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/rs/zerolog"
)

func TestTopsideSendsEveryOtherRequest(t *testing.T) {
	a, err := New(RoleTopside, rand.New(rand.NewSource(1)), testlog.Logger(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	slot := &transmission.Transmission{Src: TopsideID}
	for i := 0; i < 6; i++ {
		out, ok, err := a.DataRequest(slot)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		if ok != (i%2 == 0) {
			t.Fatalf("request %d: ok=%v", i, ok)
		}
		if !ok {
			continue
		}
		cmd, isCmd := out.Message.(*messages.Command)
		if !isCmd || out.Dest != VehicleID || !out.AckRequested {
			t.Fatalf("unexpected outgoing %+v", out)
		}
		if cmd.WaypointX < -5000 || cmd.WaypointX >= 5000 || cmd.Speed != 1.5 {
			t.Fatalf("command out of range: %+v", cmd)
		}
	}
}

func TestVehicleAlwaysReports(t *testing.T) {
	a, err := New(RoleVehicle, rand.New(rand.NewSource(2)), testlog.Logger(t))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 3; i++ {
		out, ok, err := a.DataRequest(&transmission.Transmission{Src: VehicleID})
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
		report, isReport := out.Message.(*messages.NavigationReport)
		if !isReport || out.Dest != TopsideID || out.AckRequested {
			t.Fatalf("unexpected outgoing %+v", out)
		}
		if report.Z > 0 || report.VehicleClass != messages.ClassAUV || !report.BatteryOK {
			t.Fatalf("unexpected report %+v", report)
		}
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Vehicle "); err != nil || r != RoleVehicle || r.ID() != VehicleID || r.Peer() != TopsideID {
		t.Fatalf("parse vehicle: %v %v", r, err)
	}
	if _, err := ParseRole("submarine"); err == nil {
		t.Fatalf("expected error for unknown role")
	}
}

func TestReceiveLogsMessageType(t *testing.T) {
	var buf bytes.Buffer
	a, err := New(RoleTopside, rand.New(rand.NewSource(3)), zerolog.New(&buf))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	a.Receive(&messages.NavigationReport{X: 1, VehicleClass: messages.ClassAUV}, &transmission.Transmission{Src: VehicleID})

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["message"] != "app.Receive" {
		t.Fatalf("message=%v", line["message"])
	}
	if line["msg_type"] != "*messages.NavigationReport" {
		t.Fatalf("msg_type=%v", line["msg_type"])
	}
	if n := bytes.Count(buf.Bytes(), []byte(`"message":`)); n != 1 {
		t.Fatalf("log line carries %d message keys: %s", n, buf.String())
	}
}
