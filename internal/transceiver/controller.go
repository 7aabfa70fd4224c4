package transceiver

import (
	"fmt"

	"github.com/matthewwall/weewx-ws28xx/internal/log"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
	"github.com/matthewwall/weewx-ws28xx/internal/usbhid"
)

const (
	addrSerialAndDeviceID = 0x1f9
	addrFreqCorrection    = 0x1f5

	cmdSetPreamble = 0xaa
)

// Controller owns the dongle for the lifetime of the process: the
// one-shot AX5051 init and the reception re-arm. The service loop drives
// the dongle directly through the same DongleLink.
type Controller struct {
	dongle usbhid.DongleLink
	region types.Region
}

// New wraps an already-opened dongle link.
func New(dongle usbhid.DongleLink, region types.Region) *Controller {
	return &Controller{dongle: dongle, region: region}
}

// Init performs the one-shot transceiver bring-up (spec.md §4.2): reads
// the dongle's serial number, any previously-paired device id, and the
// frequency correction out of EEPROM, tunes the AX5051 to the base
// frequency plus correction, writes the fixed register table, and arms
// the receiver.
func (c *Controller) Init() (types.TransceiverInfo, error) {
	idBuf, err := c.dongle.ReadConfigFlash(addrSerialAndDeviceID, 7)
	if err != nil {
		return types.TransceiverInfo{}, fmt.Errorf("reading serial/device id: %w", err)
	}
	serial := bcdSerial(idBuf[:5])
	deviceID := types.DeviceId(uint16(idBuf[5])<<8 | uint16(idBuf[6]))

	corrBuf, err := c.dongle.ReadConfigFlash(addrFreqCorrection, 4)
	if err != nil {
		return types.TransceiverInfo{}, fmt.Errorf("reading frequency correction: %w", err)
	}
	correction := int32(uint32(corrBuf[0])<<24 | uint32(corrBuf[1])<<16 | uint32(corrBuf[2])<<8 | uint32(corrBuf[3]))

	base := c.region.BaseFrequencyHz()
	tuned := base + int64(correction)

	for _, reg := range initRegisters {
		if err := c.dongle.WriteRegister(reg.addr, reg.value); err != nil {
			return types.TransceiverInfo{}, fmt.Errorf("writing register %#02x: %w", reg.addr, err)
		}
	}
	freqBytes := frequencyWords(tuned)
	for i, reg := range [4]byte{regFreq3, regFreq2, regFreq1, regFreq0} {
		if err := c.dongle.WriteRegister(reg, freqBytes[i]); err != nil {
			return types.TransceiverInfo{}, fmt.Errorf("writing tuned frequency register %#02x: %w", reg, err)
		}
	}

	if err := c.setRX(); err != nil {
		return types.TransceiverInfo{}, err
	}
	if err := c.setPreamblePattern(); err != nil {
		return types.TransceiverInfo{}, err
	}
	if err := c.execute(); err != nil {
		return types.TransceiverInfo{}, err
	}

	log.Infow("transceiver initialised", "serial", serial, "region", c.region, "tuned_hz", tuned)

	return types.TransceiverInfo{
		Serial:              serial,
		DeviceID:            deviceID,
		FrequencyCorrection: correction,
		TunedFrequencyHz:    tuned,
	}, nil
}

// setRX arms the receiver (message id d0).
func (c *Controller) setRX() error {
	payload := make([]byte, 15)
	payload[0] = 0xd0
	return c.dongle.WriteCommand(payload)
}

// setPreamblePattern primes the AX5051's sync-word detector (message id d8).
func (c *Controller) setPreamblePattern() error {
	payload := make([]byte, 15)
	payload[0] = 0xd8
	payload[1] = cmdSetPreamble
	return c.dongle.WriteCommand(payload)
}

// execute re-arms reception (message id d9); the service loop also
// calls this, through Execute, during sync-loss recovery.
func (c *Controller) execute() error {
	payload := make([]byte, 15)
	payload[0] = 0xd9
	return c.dongle.WriteCommand(payload)
}

// Execute is the exported form execute() so the service loop's sync-loss
// recovery path can re-arm reception without reaching into this
// package's internals.
func (c *Controller) Execute() error { return c.execute() }

// bcdSerial renders 5 BCD-packed bytes as the dongle's 14-digit serial.
func bcdSerial(buf []byte) string {
	out := make([]byte, 0, len(buf)*2)
	for _, b := range buf {
		out = append(out, '0'+(b>>4), '0'+(b&0x0f))
	}
	return string(out)
}
