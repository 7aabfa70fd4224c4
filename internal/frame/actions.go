package frame

import (
	"fmt"

	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// ResponseType is the byte the console stamps into a read_frame reply,
// dispatched by the protocol state machine (spec.md §4.4).
type ResponseType byte

const (
	ResponseWriteAck   ResponseType = 0x20
	ResponseGetConfig  ResponseType = 0x40
	ResponseGetCurrent ResponseType = 0x60
	ResponseGetHistory ResponseType = 0x80
	// ResponseConsoleRequestsSetConfig is stamped by the console when it
	// wants the host to push a full config body (first pairing, or after
	// a factory reset).
	ResponseConsoleRequestsSetConfig ResponseType = 0xa2
	// ResponseConsoleRequestsSetTime is stamped by the console when it
	// wants the host to push its clock.
	ResponseConsoleRequestsSetTime ResponseType = 0xa3
)

func (r ResponseType) String() string {
	switch r {
	case ResponseWriteAck:
		return "write-ack"
	case ResponseGetConfig:
		return "get-config"
	case ResponseGetCurrent:
		return "get-current"
	case ResponseGetHistory:
		return "get-history"
	case ResponseConsoleRequestsSetConfig:
		return "console-requests-set-config"
	case ResponseConsoleRequestsSetTime:
		return "console-requests-set-time"
	default:
		return fmt.Sprintf("response(%#02x)", byte(r))
	}
}

// RequestType is the byte the host stamps into a write_frame request.
type RequestType byte

const (
	RequestGetHistory RequestType = 0x00
	// RequestSetTime is named for completeness of the action table; the
	// state machine always uses RequestSendTime (0xc0) to push the
	// clock, never this byte.
	RequestSetTime    RequestType = 0x01
	RequestSetConfig  RequestType = 0x02
	RequestGetConfig  RequestType = 0x03
	RequestGetCurrent RequestType = 0x05
	// RequestSendTime carries the host clock in reply to either a
	// pending set-time request or the console's own RequestSetTime.
	RequestSendTime RequestType = 0xc0
)

// header is the 4 bytes every frame (request or reply) starts with:
// a length byte (payload length plus one for the action byte), the
// 16-bit device id, and the action/response byte.
type header struct {
	Length     byte
	DeviceID   types.DeviceId
	ActionByte byte
}

const headerLen = 4

func decodeHeader(buf []byte) (header, []byte, error) {
	if len(buf) < headerLen {
		return header{}, nil, errs.NewCodecFault(errs.CodecBadLength, "frame shorter than header")
	}
	h := header{
		Length:     buf[0],
		DeviceID:   types.DeviceId(uint16(buf[1])<<8 | uint16(buf[2])),
		ActionByte: buf[3],
	}
	return h, buf[headerLen:], nil
}

func encodeHeader(out []byte, id types.DeviceId, action byte, payloadLen int) {
	out[0] = byte(payloadLen + 1)
	out[1] = byte(id >> 8)
	out[2] = byte(id)
	out[3] = action
}

// EncodeAck builds a header-only host->dongle frame carrying just the
// given action byte; EncodeGetConfig, EncodeGetCurrent and
// EncodeGetHistory are built with it.
func EncodeAck(id types.DeviceId, action RequestType) []byte {
	buf := make([]byte, headerLen)
	encodeHeader(buf, id, byte(action), 0)
	return buf
}
