package messages

import (
	"reflect"
	"testing"

	"github.com/danmuck/tdmalink/internal/codec"
	"github.com/danmuck/tdmalink/internal/testutil/testlog"
)

func TestRegisterAndRoundTrip(t *testing.T) {
	c := codec.New(codec.WithLogger(testlog.Logger(t)))
	if err := Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	msgs := []codec.Message{
		&NavigationReport{X: -4321.5, Y: 17, Z: -999, VehicleClass: ClassAUV, BatteryOK: true},
		&Command{WaypointX: 4999, WaypointY: -5000, SurveyDepth: 12, Speed: 1.5},
	}
	for _, m := range msgs {
		b, err := c.Encode(m)
		if err != nil {
			t.Fatalf("encode %T: %v", m, err)
		}
		if len(b) > 64 {
			t.Fatalf("%T does not fit a 64 byte slot: %d", m, len(b))
		}
		got, err := c.Decode(b)
		if err != nil {
			t.Fatalf("decode %T: %v", m, err)
		}
		if !reflect.DeepEqual(got, m) {
			t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, m)
		}
	}
}

func TestIDsAreDistinct(t *testing.T) {
	if NavigationReportID == CommandID {
		t.Fatalf("message ids collide")
	}
	if got := (NavigationReport{}).CodecID(); got != NavigationReportID {
		t.Fatalf("navigation id=%d", got)
	}
}
