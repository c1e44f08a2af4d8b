package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	RegisterMetrics()
	RegisterMetrics()

	before := testutil.ToFloat64(transmissions.WithLabelValues("tx", "DATA"))
	RecordTransmission("tx", "DATA")
	if got := testutil.ToFloat64(transmissions.WithLabelValues("tx", "DATA")); got != before+1 {
		t.Fatalf("tx counter=%v want %v", got, before+1)
	}

	RecordFrameDrop("decode")
	RecordLinkError("DRIVER_UDP")
	RecordSlot(2, 1)
	if got := testutil.ToFloat64(activeSlot.WithLabelValues("1")); got != 2 {
		t.Fatalf("active slot=%v", got)
	}
	RecordHTTPRequest("topside", "GET", "/health", 200, 12*time.Millisecond)
}
