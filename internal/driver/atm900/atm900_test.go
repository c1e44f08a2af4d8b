package atm900

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/tdmalink/internal/driver"
	"github.com/danmuck/tdmalink/internal/testutil/testlog"
	"github.com/danmuck/tdmalink/internal/transmission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeModem struct {
	conn  net.Conn
	lines chan string
}

func (m *fakeModem) opener(endpoint string, baud int) (io.ReadWriteCloser, error) {
	local, remote := net.Pipe()
	m.conn = remote
	go func() {
		sc := bufio.NewScanner(remote)
		for sc.Scan() {
			m.lines <- strings.TrimRight(sc.Text(), "\r")
		}
	}()
	return local, nil
}

func (m *fakeModem) next(t *testing.T) string {
	t.Helper()
	select {
	case line := <-m.lines:
		return line
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for modem line")
		return ""
	}
}

func startModem(t *testing.T) (*Driver, *fakeModem) {
	t.Helper()
	m := &fakeModem{lines: make(chan string, 32)}
	d := New(m.opener, testlog.Logger(t))
	cfg := driver.DefaultConfig(2)
	cfg.Endpoint = "/dev/ttyUSB1"
	cfg.Extensions = []string{"@SimAcDly=1000", "@TxPower=1"}
	require.NoError(t, d.Startup(cfg))
	t.Cleanup(func() { _ = d.Shutdown() })
	assert.Equal(t, "@LocalAddr=2", m.next(t))
	assert.Equal(t, "@SimAcDly=1000", m.next(t))
	assert.Equal(t, "@TxPower=1", m.next(t))
	return d, m
}

func pump(t *testing.T, d *Driver, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		require.NoError(t, d.DoWork())
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never held")
}

func TestSendCommand(t *testing.T) {
	d, m := startModem(t)
	d.OnDataRequest(func(tx *transmission.Transmission) error {
		tx.Dest = 1
		tx.AddFrame([]byte{0x7c, 0x01})
		tx.AddFrame([]byte{0xff})
		return nil
	})
	sent := 0
	d.OnTransmit(func(*transmission.Transmission) { sent++ })
	require.NoError(t, d.InitiateTransmission(&transmission.Transmission{Src: 2, Type: transmission.TypeData, Rate: 3, MaxFrameBytes: 64}))
	assert.Equal(t, "AT$SEND,1,0,7c01,ff", m.next(t))
	assert.Equal(t, 1, sent)
}

func TestReceiveWithStats(t *testing.T) {
	d, m := startModem(t)
	var rx []*transmission.Transmission
	d.OnReceive(func(tx *transmission.Transmission) { rx = append(rx, tx) })

	for _, line := range []string{
		"RXSTATS(snr_in=11.5,snr_out=8,mse=-12,doppler=0.1,noise=70,bad_frames=0)",
		"DATA(1,2,1):7d01,02",
		"ACK(1,2)",
		"DATA(1,2,0):zz",
	} {
		_, err := io.WriteString(m.conn, line+"\r\n")
		require.NoError(t, err)
	}
	pump(t, d, func() bool { return len(rx) == 2 })

	data := rx[0]
	assert.Equal(t, transmission.TypeData, data.Type)
	assert.Equal(t, 1, data.Src)
	assert.True(t, data.AckRequested)
	assert.Equal(t, [][]byte{{0x7d, 0x01}, {0x02}}, data.Frames)
	require.NotNil(t, data.RxStats)
	assert.InDelta(t, 11.5, data.RxStats.SNRIn, 1e-9)

	assert.Equal(t, transmission.TypeAck, rx[1].Type)
	assert.Equal(t, 2, rx[1].Dest)
}

func TestSplitCallRejectsMissingParen(t *testing.T) {
	_, _, err := splitCall("DATA(1,2", "DATA")
	require.ErrorIs(t, err, ErrMalformedLine)
}
