// Package usbhid wraps the kernel HID/USB primitives the transceiver
// dongle speaks: four control transfers (write register, write command,
// write frame, read frame) and one interrupt read (read state). It is the
// only package in the driver that imports a USB library directly; every
// other layer talks to the DongleLink interface below.
package usbhid

import (
	"fmt"

	"github.com/karalabe/hid"
	"github.com/matthewwall/weewx-ws28xx/internal/errs"
)

const (
	VendorID  = 0x6666
	ProductID = 0x5555

	FrameSize = 273

	msgWriteFrame      = 0xd5
	msgReadFrame       = 0xd6
	msgReadConfigFlash = 0xdd
	msgReadState       = 0xde
)

// State values (low five bits of the state byte) reported by ReadState
// (spec.md §4.1).
const (
	StateInitialising byte = 0x14
	StateIdle         byte = 0x15
	StateDataReady    byte = 0x16
)

// DongleLink is the seam the rest of the driver programs against. The
// production implementation is *Device, backed by github.com/karalabe/hid;
// tests substitute a fake.
type DongleLink interface {
	WriteRegister(addr, value byte) error
	WriteCommand(payload []byte) error
	WriteFrame(buf []byte) error
	ReadFrame() ([]byte, error)
	ReadState() (state byte, ready bool, err error)
	ReadConfigFlash(addr uint16, length int) ([]byte, error)
	Close() error
}

// Device is the production DongleLink, a thin wrapper around a single
// opened HID device.
type Device struct {
	hid *hid.Device
}

// Open enumerates HID devices for the dongle's vendor/product id and
// opens the first match.
func Open() (*Device, error) {
	infos := hid.Enumerate(VendorID, ProductID)
	if len(infos) == 0 {
		return nil, errs.NewTransportFault("enumerate", fmt.Errorf("no dongle found for vid=%#04x pid=%#04x", VendorID, ProductID))
	}

	dev, err := infos[0].Open()
	if err != nil {
		return nil, errs.NewTransportFault("open", err)
	}

	return &Device{hid: dev}, nil
}

// WriteRegister performs the 5-byte control write used only during
// transceiver init: f0 addr 01 value 00.
func (d *Device) WriteRegister(addr, value byte) error {
	buf := []byte{0xf0, addr, 0x01, value, 0x00}
	if _, err := d.hid.Write(buf); err != nil {
		return errs.NewTransportFault("write_register", err)
	}
	return nil
}

// WriteCommand performs a 15- or 21-byte control write whose first byte
// is the message id (d0, d1, d7, d8, d9, dd).
func (d *Device) WriteCommand(payload []byte) error {
	if len(payload) != 15 && len(payload) != 21 {
		return errs.NewTransportFault("write_command", fmt.Errorf("payload must be 15 or 21 bytes, got %d", len(payload)))
	}
	if _, err := d.hid.Write(payload); err != nil {
		return errs.NewTransportFault("write_command", err)
	}
	return nil
}

// WriteFrame performs the 273-byte control write, message id d5.
func (d *Device) WriteFrame(buf []byte) error {
	if len(buf) != FrameSize {
		return errs.NewTransportFault("write_frame", fmt.Errorf("frame must be %d bytes, got %d", FrameSize, len(buf)))
	}
	out := make([]byte, FrameSize+1)
	out[0] = msgWriteFrame
	copy(out[1:], buf)
	if _, err := d.hid.Write(out); err != nil {
		return errs.NewTransportFault("write_frame", err)
	}
	return nil
}

// ReadFrame performs the 273-byte control read, message id d6. The first
// 3 header bytes give the device id and payload length; this layer
// returns the raw buffer and leaves interpretation to the frame codec.
func (d *Device) ReadFrame() ([]byte, error) {
	buf := make([]byte, FrameSize+1)
	n, err := d.hid.Read(buf)
	if err != nil {
		return nil, errs.NewTransportFault("read_frame", err)
	}
	if n < 4 {
		return nil, errs.NewTransportFault("read_frame", fmt.Errorf("short read: %d bytes", n))
	}
	if buf[0] != msgReadFrame {
		return nil, errs.NewTransportFault("read_frame", fmt.Errorf("unexpected message id %#02x", buf[0]))
	}
	return buf[1:n], nil
}

// ReadState performs the 6-byte interrupt read, message id de. The low
// five bits of the state byte encode initialising/idle/data-ready.
func (d *Device) ReadState() (byte, bool, error) {
	buf := make([]byte, 6)
	n, err := d.hid.Read(buf)
	if err != nil {
		return 0, false, errs.NewTransportFault("read_state", err)
	}
	if n < 2 {
		return 0, false, errs.NewTransportFault("read_state", fmt.Errorf("short read: %d bytes", n))
	}
	state := buf[1] & 0x1f
	return state, state == StateDataReady, nil
}

// ReadConfigFlash reads length bytes (at most 16) out of the dongle's
// EEPROM starting at addr. The transceiver's serial number and paired
// device id live at 0x1f9; the RF frequency correction lives at 0x1f5
// (spec.md §4.2).
func (d *Device) ReadConfigFlash(addr uint16, length int) ([]byte, error) {
	if length <= 0 || length > 16 {
		return nil, errs.NewTransportFault("read_config_flash", fmt.Errorf("length must be 1..16, got %d", length))
	}
	req := make([]byte, 21)
	req[0] = msgReadConfigFlash
	req[1] = byte(addr >> 8)
	req[2] = byte(addr)
	req[3] = byte(length)
	if _, err := d.hid.Write(req); err != nil {
		return nil, errs.NewTransportFault("read_config_flash", err)
	}

	buf := make([]byte, 21)
	n, err := d.hid.Read(buf)
	if err != nil {
		return nil, errs.NewTransportFault("read_config_flash", err)
	}
	if n < 4+length {
		return nil, errs.NewTransportFault("read_config_flash", fmt.Errorf("short read: %d bytes", n))
	}
	return buf[4 : 4+length], nil
}

// Close releases the underlying HID handle.
func (d *Device) Close() error {
	return d.hid.Close()
}
