// Package protocol implements the driven state machine that decides,
// after every read_frame reply, what the next write_frame request should
// be (spec.md §4.4). It holds no USB state itself — the service loop
// owns the transport and calls Dispatcher.Next once per poll cycle.
package protocol

import (
	"crypto/sha1"
	"sync"
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/frame"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// Inputs carries everything Next needs to decide the following request
// beyond the response type itself.
type Inputs struct {
	DeviceID types.DeviceId
	Pending  *types.PendingWrites
	Now      time.Time
	// DecodedConfig is the Config just parsed out of a ResponseGetConfig
	// frame; Next compares it against Pending.PendingConfig to decide
	// whether the write already took. Unused for every other response.
	DecodedConfig *types.Config
	// HistoryDone reports whether the driver-side archive backlog it
	// wants this cycle has already been consumed; it gates whether a
	// ResponseGetCurrent reply should kick off another rtGetHistory.
	HistoryDone bool
	// LatestIdx and ThisIdx are the two ring pointers decoded from the
	// most recent History frame header: the console's current archive
	// write position and the position of the page just read. Next's
	// ResponseGetHistory case dispatches on their equality, not on
	// whether that page happened to come back empty. Both are zero
	// (and hence equal) until the first History frame arrives.
	LatestIdx types.HistoryIndex
	ThisIdx   types.HistoryIndex
}

// Next returns the write_frame payload the service loop should send
// after decoding a frame tagged with resp, implementing spec.md §4.4's
// dispatch table.
func Next(resp frame.ResponseType, in Inputs) []byte {
	switch resp {
	case frame.ResponseGetCurrent:
		switch {
		case in.Pending != nil && in.Pending.SetTimeRequested:
			return frame.EncodeSetTime(in.DeviceID, in.Now)
		case in.Pending != nil && in.Pending.PendingConfig != nil:
			return frame.EncodeConfig(in.DeviceID, *in.Pending.PendingConfig)
		case in.Pending != nil && in.Pending.HistoryCatchup && !in.HistoryDone:
			return frame.EncodeGetHistory(in.DeviceID)
		default:
			return frame.EncodeGetCurrent(in.DeviceID)
		}

	case frame.ResponseGetHistory:
		if in.LatestIdx == in.ThisIdx {
			return frame.EncodeGetCurrent(in.DeviceID)
		}
		return frame.EncodeGetHistory(in.DeviceID)

	case frame.ResponseGetConfig:
		if in.Pending != nil && in.Pending.PendingConfig != nil && differsFromDecoded(in) {
			return frame.EncodeConfig(in.DeviceID, *in.Pending.PendingConfig)
		}
		return frame.EncodeGetCurrent(in.DeviceID)

	case frame.ResponseConsoleRequestsSetConfig:
		cfg := types.Config{}
		if in.Pending != nil && in.Pending.PendingConfig != nil {
			cfg = *in.Pending.PendingConfig
		}
		return frame.EncodeConfig(in.DeviceID, cfg)

	case frame.ResponseConsoleRequestsSetTime:
		return frame.EncodeSetTime(in.DeviceID, in.Now)

	case frame.ResponseWriteAck:
		return frame.EncodeGetCurrent(in.DeviceID)

	default:
		return frame.EncodeGetCurrent(in.DeviceID)
	}
}

func differsFromDecoded(in Inputs) bool {
	if in.DecodedConfig == nil {
		return true
	}
	return !in.Pending.PendingConfig.Equal(*in.DecodedConfig)
}

// Dedup suppresses reprocessing the same frame content seen again within
// a short window — the console occasionally re-sends an unacknowledged
// reply before the host's ack lands.
type Dedup struct {
	mu       sync.Mutex
	window   time.Duration
	lastHash [sha1.Size]byte
	lastSeen time.Time
	hasSeen  bool
}

// NewDedup constructs a Dedup with the documented 3-second window.
func NewDedup() *Dedup {
	return &Dedup{window: 3 * time.Second}
}

// Seen reports whether payload is a duplicate of the last frame seen
// within the dedup window, and records it either way.
func (d *Dedup) Seen(payload []byte, now time.Time) bool {
	sum := sha1.Sum(payload)

	d.mu.Lock()
	defer d.mu.Unlock()

	duplicate := d.hasSeen && sum == d.lastHash && now.Sub(d.lastSeen) < d.window
	d.lastHash = sum
	d.lastSeen = now
	d.hasSeen = true
	return duplicate
}
