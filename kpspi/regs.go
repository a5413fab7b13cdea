/* Package kpspi drives the KP2000 SPI controller: a five register,
 * polled-only core behind a memory mapped window. Registers sit on a
 * 64-bit stride and carry 32 bits of data each. */
package kpspi

const (
	RegConfig = 0 // offset 0x00
	RegStatus = 1 // offset 0x08
	RegFFCtrl = 2 // offset 0x10
	RegTxData = 3 // offset 0x18
	RegRxData = 4 // offset 0x20

	NumRegs = 5
)

const (
	Clock    = 48000000    // bus clock in Hz
	MinSpeed = Clock >> 15 // smallest divider the core supports
)

/* Status register bits. The core holds these as level flags, the FIFO
 * flags are not used on the PIO path. */
const (
	statusRXS   = 0x01 // rx data ready
	statusTXS   = 0x02 // tx ready
	statusEOT   = 0x04 // end of transfer
	statusTXFFE = 0x10 // tx FIFO empty
	statusTXFFF = 0x20 // tx FIFO full
	statusRXFFE = 0x40 // rx FIFO empty
	statusRXFFF = 0x80 // rx FIFO full
)

/* Transfer mode values for the TRM field */
const (
	trmTxRx = 0
	trmRx   = 1
	trmTx   = 2
)

/* Config register layout. The WL field holds the word length minus one. */
const (
	confPha  = 1 << 0 // clock phase
	confPol  = 1 << 1 // clock polarity
	confEPol = 1 << 2 // chip select polarity
	confDPE  = 1 << 3 // transmission enable

	confWLShift = 4
	confWLMask  = 0x1f << confWLShift

	confTRMShift = 12
	confTRMMask  = 0x3 << confTRMShift

	confCSShift = 14
	confCSMask  = 0xf << confCSShift

	confWCntShift = 18
	confWCntMask  = 0x7f << confWCntShift

	confFFEn  = 1 << 25 // FIFO enable
	confSPIEn = 1 << 26 // SPI enable, asserts the chip select window
)

func confSetWordLen(conf uint32, wordLen int) uint32 {
	return conf&^confWLMask | uint32(wordLen-1)<<confWLShift&confWLMask
}

func confSetTRM(conf uint32, trm uint32) uint32 {
	return conf&^confTRMMask | trm<<confTRMShift&confTRMMask
}

func confSetChipSelect(conf uint32, cs uint8) uint32 {
	return conf&^confCSMask | uint32(cs)<<confCSShift&confCSMask
}

func bytesPerWord(wordLen int) int {
	if wordLen <= 8 {
		return 1
	} else if wordLen <= 16 {
		return 2
	}
	return 4
}
