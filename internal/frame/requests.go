package frame

import "github.com/matthewwall/weewx-ws28xx/internal/types"

// EncodeGetConfig, EncodeGetCurrent and EncodeGetHistory are the
// header-only requests the protocol state machine and the façade's
// bootstrap step write. They carry no payload; the console identifies
// the request solely by its action byte.

func EncodeGetConfig(id types.DeviceId) []byte  { return EncodeAck(id, RequestGetConfig) }
func EncodeGetCurrent(id types.DeviceId) []byte { return EncodeAck(id, RequestGetCurrent) }
func EncodeGetHistory(id types.DeviceId) []byte { return EncodeAck(id, RequestGetHistory) }
