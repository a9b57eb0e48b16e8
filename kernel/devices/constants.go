package devices

// 8259A ports.
const (
	PICMasterCmdPort  uint16 = 0x20
	PICMasterDataPort uint16 = 0x21
	PICSlaveCmdPort   uint16 = 0xA0
	PICSlaveDataPort  uint16 = 0xA1
)

// IRQ lines of the simulated devices.
const (
	KeyboardIRQ uint8 = 1
	CascadeIRQ  uint8 = 2 // master line the slave is wired to
	SerialIRQ   uint8 = 4
)

// ICW1 bits.
const (
	icw1IC4  byte = 0x01 // ICW4 follows
	icw1SNGL byte = 0x02 // single controller, no ICW3
	icw1LTIM byte = 0x08 // level triggered
	icw1Init byte = 0x10
)

// ICW4 bits.
const (
	icw4AEOI byte = 0x02 // automatic end of interrupt
)

// OCW2 and OCW3 bits.
const (
	ocw2EOI      byte = 0x20
	ocw2Specific byte = 0x40
	ocw3Tag      byte = 0x08 // distinguishes OCW3 from OCW2
	ocw3RIS      byte = 0x01 // read ISR instead of IRR
	ocw3RR       byte = 0x02 // read register select is valid
)

// 8042 ports and status bits.
const (
	I8042DataPort   uint16 = 0x60
	I8042StatusPort uint16 = 0x64

	i8042StatusOBF    byte = 0x01
	i8042StatusIBF    byte = 0x02
	i8042StatusSystem byte = 0x04 // set once the controller passed self-test
)

// 16550 registers.
const (
	COM1PortBase uint16 = 0x3F8
	COM1PortEnd  uint16 = 0x3FF

	uartData    uint16 = 0 // RHR / THR, DLL with DLAB
	uartIER     uint16 = 1 // DLH with DLAB
	uartIIRFCR  uint16 = 2
	uartLCR     uint16 = 3
	uartMCR     uint16 = 4
	uartLSR     uint16 = 5
	uartMSR     uint16 = 6
	uartScratch uint16 = 7

	uartLCRDLAB  byte = 0x80
	uartLSRTHRE  byte = 0x20
	uartLSRTEMT  byte = 0x40
	uartIIRNone  byte = 0x01
	uartIIRTHRE  byte = 0x02
	uartIERTHRE  byte = 0x02
	uartMCROUT2  byte = 0x08
	uartIIRFIFOs byte = 0xC0
)

// VGA ports.
const (
	VGAPortStart uint16 = 0x3B0
	VGAPortEnd   uint16 = 0x3DF

	vgaAttrAddr     uint16 = 0x3C0
	vgaAttrDataRead uint16 = 0x3C1
	vgaMiscWrite    uint16 = 0x3C2
	vgaMiscRead     uint16 = 0x3CC
	vgaCRTCAddrMono uint16 = 0x3B4
	vgaCRTCDataMono uint16 = 0x3B5
	vgaIS1Mono      uint16 = 0x3BA
	vgaCRTCAddr     uint16 = 0x3D4
	vgaCRTCData     uint16 = 0x3D5
	vgaIS1          uint16 = 0x3DA

	vgaMiscIOAS  byte = 0x01
	vgaAttrPAS   byte = 0x20
	vgaAttrIndex byte = 0x1F
)

// 8254 ports and command fields.
const (
	PITChannel0Port uint16 = 0x40
	PITCommandPort  uint16 = 0x43
	TimerIRQ        uint8  = 0

	pitAccessLatch byte = 0
	pitAccessLSB   byte = 1
	pitAccessMSB   byte = 2
	pitAccessLOHI  byte = 3
	pitReadBack    byte = 3 // channel field value selecting read-back
)
