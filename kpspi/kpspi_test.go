package kpspi

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

/* hwModel is a register level model of the controller core. TxData
 * writes feed a loopback FIFO that RxData reads drain, the way a core
 * with MISO wired to MOSI behaves. txsRemain limits how often the tx
 * ready bit answers, -1 means always. */
type hwModel struct {
	regs [NumRegs]uint32

	status    uint32
	txsRemain int
	loopback  bool
	fifo      []uint32

	writes     int
	dataWrites int
	confReads  int
}

func newHwModel() *hwModel {
	return &hwModel{
		status:    statusTXS | statusEOT,
		txsRemain: -1,
	}
}

func (h *hwModel) Read32(reg int) uint32 {
	switch reg {
	case RegConfig:
		h.confReads++
	case RegStatus:
		s := h.status
		if h.txsRemain == 0 {
			s &^= statusTXS
		}
		if h.loopback && len(h.fifo) > 0 {
			s |= statusRXS
		}
		return s
	case RegRxData:
		if h.loopback {
			if len(h.fifo) == 0 {
				return 0
			}
			val := h.fifo[0]
			h.fifo = h.fifo[1:]
			return val
		}
	}
	return h.regs[reg]
}

func (h *hwModel) Write32(reg int, val uint32) {
	h.writes++
	h.regs[reg] = val

	if reg == RegTxData {
		h.dataWrites++
		if h.loopback {
			h.fifo = append(h.fifo, val)
		}
		if h.txsRemain > 0 {
			h.txsRemain--
		}
	}
}

func newTestController(h *hwModel) *Controller {
	c := NewController(h, 0x43c00000)
	c.Timeout = 20 * time.Millisecond
	return c
}

func setupDevice(t *testing.T, c *Controller, cs uint8, bpw int) *Device {
	t.Helper()

	d := c.NewDevice(cs, bpw)
	if err := c.Setup(d); err != nil {
		t.Fatal("setup failed:", err)
	}
	return d
}

func TestSetupIdempotent(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)

	d := setupDevice(t, c, 1, 8)
	first := d.state

	if err := c.Setup(d); err != nil {
		t.Fatal("second setup failed:", err)
	}

	if d.state != first {
		t.Error("second setup reallocated the controller state")
	}
	if d.state.confCache < 0 {
		t.Error("config cache still unset after setup")
	}
	if uint32(d.state.confCache) != h.regs[RegConfig] {
		t.Errorf("config cache %08x does not match hardware %08x", d.state.confCache, h.regs[RegConfig])
	}
}

func TestSetupValidation(t *testing.T) {
	c := newTestController(newHwModel())

	if err := c.Setup(c.NewDevice(4, 8)); err != ErrorBadChipSelect {
		t.Error("chip select 4 accepted:", err)
	}
	if err := c.Setup(c.NewDevice(0, 3)); err != ErrorBadBitsPerWord {
		t.Error("3 bit words accepted:", err)
	}
	if err := c.Setup(c.NewDevice(0, 33)); err != ErrorBadBitsPerWord {
		t.Error("33 bit words accepted:", err)
	}
}

func TestSetupInitialConfig(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	setupDevice(t, c, 2, 16)

	conf := h.regs[RegConfig]
	if conf&confSPIEn != 0 || conf&confFFEn != 0 || conf&confDPE != 0 || conf&confTRMMask != 0 {
		t.Errorf("setup config %08x has enable bits set", conf)
	}
	if (conf&confWLMask)>>confWLShift != 15 {
		t.Errorf("setup config %08x has wrong word length", conf)
	}
	if (conf&confCSMask)>>confCSShift != 2 {
		t.Errorf("setup config %08x has wrong chip select", conf)
	}
}

func TestConfigCacheServesReads(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	h.confReads = 0
	for i := 0; i < 5; i++ {
		d.state.readReg(RegConfig)
	}
	if h.confReads != 0 {
		t.Errorf("%d config reads hit the hardware despite a valid cache", h.confReads)
	}

	/* With the sentinel in place the read must go to the hardware */
	d.state.confCache = -1
	d.state.readReg(RegConfig)
	if h.confReads != 1 {
		t.Error("config read with unset cache did not hit the hardware")
	}
}

func TestCleanup(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	c.Cleanup(d)
	if d.state != nil {
		t.Fatal("cleanup left the controller state behind")
	}

	if err := c.Setup(d); err != nil {
		t.Fatal("setup after cleanup failed:", err)
	}
}

func TestMessageEmpty(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	h.writes = 0
	err := c.DoMessage(d, &Message{})
	if !errors.Is(err, ErrorMessageEmpty) {
		t.Error("empty message accepted:", err)
	}
	if h.writes != 0 {
		t.Errorf("%d register writes for a rejected message", h.writes)
	}
}

func TestMessageValidation(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	bad := []*Transfer{
		{Len: 4, Tx: make([]byte, 4), SpeedHz: 50000000},
		{Len: 4, Tx: make([]byte, 4), SpeedHz: MinSpeed - 1},
		{Len: 4},
		{Len: 3, Tx: make([]byte, 3), BitsPerWord: 16},
		{Len: 4, Tx: make([]byte, 4), BitsPerWord: 2},
	}

	for i, tr := range bad {
		h.writes = 0
		err := c.DoMessage(d, &Message{Transfers: []*Transfer{tr}})
		if !errors.Is(err, ErrorTransferInvalid) {
			t.Errorf("transfer %d accepted: %v", i, err)
		}
		if h.writes != 0 {
			t.Errorf("transfer %d caused %d register writes", i, h.writes)
		}
	}
}

func TestMessageNoSetup(t *testing.T) {
	c := newTestController(newHwModel())
	d := c.NewDevice(0, 8)

	m := &Message{Transfers: []*Transfer{{Len: 1, Tx: []byte{0}}}}
	if err := c.DoMessage(d, m); !errors.Is(err, ErrorNoSetup) {
		t.Error("message on device without setup accepted:", err)
	}
}

func TestTransmitMessage(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	completions := 0
	m := &Message{
		Transfers: []*Transfer{{Len: 4, Tx: []byte{0x01, 0x02, 0x03, 0x04}}},
		Complete:  func(*Message) { completions++ },
	}

	if err := c.DoMessage(d, m); err != nil {
		t.Fatal("message failed:", err)
	}

	if m.ActualLength != 4 {
		t.Errorf("actual length %d, want 4", m.ActualLength)
	}
	if m.Status != nil {
		t.Error("message status:", m.Status)
	}
	if completions != 1 {
		t.Errorf("complete callback ran %d times", completions)
	}
	if h.dataWrites != 4 {
		t.Errorf("%d TxData writes, want 4", h.dataWrites)
	}
	if h.regs[RegTxData] != 0x04 {
		t.Errorf("last TxData write %02x, want 04", h.regs[RegTxData])
	}

	if h.regs[RegConfig]&confSPIEn != 0 {
		t.Error("SPI enable still set in hardware after the message")
	}
	if uint32(d.state.confCache)&confSPIEn != 0 {
		t.Error("SPI enable still set in the config cache after the message")
	}
}

func TestZeroLengthTransfer(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	m := &Message{Transfers: []*Transfer{{Len: 0}}}
	if err := c.DoMessage(d, m); err != nil {
		t.Fatal("message failed:", err)
	}

	if m.ActualLength != 0 {
		t.Errorf("actual length %d, want 0", m.ActualLength)
	}
	if h.dataWrites != 0 {
		t.Errorf("%d TxData writes for a zero length transfer", h.dataWrites)
	}
}

func TestRoundTrip(t *testing.T) {
	h := newHwModel()
	h.loopback = true
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	tx := []byte{0xde, 0xad, 0xbe, 0xef}
	rx := make([]byte, 4)

	m := &Message{Transfers: []*Transfer{
		{Len: 4, Tx: tx},
		{Len: 4, Rx: rx},
	}}

	if err := c.DoMessage(d, m); err != nil {
		t.Fatal("message failed:", err)
	}
	if m.ActualLength != 8 {
		t.Errorf("actual length %d, want 8", m.ActualLength)
	}
	if diff := cmp.Diff(tx, rx); diff != "" {
		t.Errorf("loopback mismatch (-tx +rx):\n%s", diff)
	}
}

func TestRoundTripWideWords(t *testing.T) {
	h := newHwModel()
	h.loopback = true
	c := newTestController(h)
	d := setupDevice(t, c, 0, 16)

	tx := []byte{0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	rx := make([]byte, 6)

	m := &Message{Transfers: []*Transfer{
		{Len: 6, Tx: tx},
		{Len: 6, Rx: rx},
	}}

	if err := c.DoMessage(d, m); err != nil {
		t.Fatal("message failed:", err)
	}

	/* 16 bit words, so three units each way */
	if h.dataWrites != 6 {
		t.Errorf("%d TxData writes, want 6", h.dataWrites)
	}
	if diff := cmp.Diff(tx, rx); diff != "" {
		t.Errorf("loopback mismatch (-tx +rx):\n%s", diff)
	}
}

func TestWordLenOverride(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	m := &Message{Transfers: []*Transfer{
		{Len: 4, Tx: make([]byte, 4), BitsPerWord: 32},
	}}
	if err := c.DoMessage(d, m); err != nil {
		t.Fatal("message failed:", err)
	}

	if h.dataWrites != 1 {
		t.Errorf("%d TxData writes, want 1 32-bit unit", h.dataWrites)
	}
	if wl := (uint32(d.state.confCache)&confWLMask)>>confWLShift + 1; wl != 32 {
		t.Errorf("config word length %d, want 32", wl)
	}
}

func TestShortTransfer(t *testing.T) {
	h := newHwModel()
	h.txsRemain = 2
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	m := &Message{Transfers: []*Transfer{
		{Len: 4, Tx: []byte{0x01, 0x02, 0x03, 0x04}},
		{Len: 4, Tx: []byte{0x05, 0x06, 0x07, 0x08}},
	}}

	err := c.DoMessage(d, m)
	if !errors.Is(err, ErrorShortTransfer) {
		t.Fatal("short transfer not reported:", err)
	}

	if m.ActualLength != 2 {
		t.Errorf("actual length %d, want 2", m.ActualLength)
	}
	if h.dataWrites != 2 {
		t.Errorf("%d TxData writes, the second transfer should never run", h.dataWrites)
	}
	if h.regs[RegConfig]&confSPIEn != 0 {
		t.Error("SPI enable still set after a failed message")
	}
}

func TestInitialEOTTimeout(t *testing.T) {
	h := newHwModel()
	h.status = statusTXS /* EOT never comes */
	c := newTestController(h)

	logged := 0
	c.LogFunc = func(format string, params ...any) { logged++ }

	d := setupDevice(t, c, 0, 8)

	m := &Message{Transfers: []*Transfer{{Len: 4, Tx: make([]byte, 4)}}}
	if err := c.DoMessage(d, m); err != nil {
		t.Fatal("tolerated timeout surfaced as an error:", err)
	}

	if m.ActualLength != 0 || h.dataWrites != 0 {
		t.Error("transfers ran although the initial EOT wait timed out")
	}
	if h.regs[RegConfig]&confSPIEn != 0 {
		t.Error("SPI enable still set after the aborted message")
	}
	if logged == 0 {
		t.Error("timeout was not logged")
	}
}

func TestWaitTimeoutBoundary(t *testing.T) {
	h := newHwModel()
	h.status = 0
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	start := time.Now()
	err := d.state.waitForBit(RegStatus, statusEOT)
	elapsed := time.Since(start)

	if !errors.Is(err, ErrorTimeout) {
		t.Fatal("wait on a dead bit returned:", err)
	}
	if elapsed < c.Timeout {
		t.Errorf("wait gave up after %v, deadline is %v", elapsed, c.Timeout)
	}
}

func TestCompleteCallbackOnValidationError(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	completions := 0
	m := &Message{Complete: func(*Message) { completions++ }}

	err := c.DoMessage(d, m)
	if completions != 1 {
		t.Errorf("complete callback ran %d times", completions)
	}
	if !errors.Is(m.Status, ErrorMessageEmpty) || m.Status != err {
		t.Error("message status not carried to the callback:", m.Status)
	}
}

func TestTransferDelay(t *testing.T) {
	h := newHwModel()
	c := newTestController(h)
	d := setupDevice(t, c, 0, 8)

	delay := 30 * time.Millisecond
	m := &Message{Transfers: []*Transfer{
		{Len: 1, Tx: []byte{0xaa}, Delay: delay},
	}}

	start := time.Now()
	if err := c.DoMessage(d, m); err != nil {
		t.Fatal("message failed:", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("message returned after %v, delay is %v", elapsed, delay)
	}
}

func TestBytesPerWord(t *testing.T) {
	cases := []struct{ wordLen, want int }{
		{4, 1}, {8, 1}, {9, 2}, {16, 2}, {17, 4}, {32, 4},
	}
	for _, m := range cases {
		if got := bytesPerWord(m.wordLen); got != m.want {
			t.Errorf("bytesPerWord(%d) = %d, want %d", m.wordLen, got, m.want)
		}
	}
}
