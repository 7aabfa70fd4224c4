package frame

import (
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// setTimePayloadBytes is the 5-byte minute/hour/day/month/year BCD block,
// identical in shape to a min/max timestamp but sent standalone.
const setTimePayloadBytes = 5

// EncodeSetTime builds a write_frame request that pushes the host clock
// to the console, stamped with the SendTime action (0xc0) per spec.md
// §4.3's action table, not the RequestSetTime byte.
func EncodeSetTime(id types.DeviceId, t time.Time) []byte {
	buf := make([]byte, headerLen+setTimePayloadBytes)
	payload := buf[headerLen:]
	c := newCursor(payload, 0)
	c.putTimestamp(t)
	encodeHeader(buf, id, byte(RequestSendTime), len(payload))
	return buf
}

// DecodeSetTime parses a SendTime request, used by tests exercising the
// round trip and by any future passive frame logger.
func DecodeSetTime(buf []byte) (time.Time, types.DeviceId, error) {
	h, payload, err := decodeHeader(buf)
	if err != nil {
		return time.Time{}, 0, err
	}
	if RequestType(h.ActionByte) != RequestSendTime {
		return time.Time{}, 0, errs.NewCodecFault(errs.CodecUnknownResponseType, "not a send-time frame")
	}
	if len(payload) < setTimePayloadBytes {
		return time.Time{}, 0, errs.NewCodecFault(errs.CodecBadLength, "set-time payload truncated")
	}
	c := newCursor(payload, 0)
	t, ok := c.timestamp()
	if !ok {
		return time.Time{}, 0, errs.NewCodecFault(errs.CodecNibbleOutOfRange, "malformed set-time BCD digit")
	}
	return t, h.DeviceID, nil
}
