package protocol

import (
	"testing"
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/frame"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

func TestNextIsTotalOverKnownResponseTypes(t *testing.T) {
	responses := []frame.ResponseType{
		frame.ResponseWriteAck,
		frame.ResponseGetConfig,
		frame.ResponseGetCurrent,
		frame.ResponseGetHistory,
		frame.ResponseConsoleRequestsSetConfig,
		frame.ResponseConsoleRequestsSetTime,
	}
	in := Inputs{DeviceID: 0x1, Pending: &types.PendingWrites{}, Now: time.Now(), HistoryDone: true}

	for _, resp := range responses {
		got := Next(resp, in)
		if len(got) == 0 {
			t.Errorf("Next(%v, ...) returned an empty request", resp)
		}
	}
}

func TestNextPrioritizesSetTimeOverPendingConfigOnCurrent(t *testing.T) {
	cfg := types.Config{LCDContrast: 3}
	in := Inputs{
		DeviceID: 0x1,
		Pending: &types.PendingWrites{
			SetTimeRequested: true,
			PendingConfig:    &cfg,
		},
		Now: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	}
	got := Next(frame.ResponseGetCurrent, in)
	if got[3] != byte(frame.RequestSendTime) {
		t.Errorf("action byte = %#02x, want RequestSendTime", got[3])
	}
}

func TestNextSendsPendingConfigWhenNoSetTimeQueued(t *testing.T) {
	cfg := types.Config{LCDContrast: 3}
	in := Inputs{
		DeviceID: 0x1,
		Pending:  &types.PendingWrites{PendingConfig: &cfg},
	}
	got := Next(frame.ResponseGetCurrent, in)
	if got[3] != byte(frame.RequestSetConfig) {
		t.Errorf("action byte = %#02x, want RequestSetConfig", got[3])
	}
}

func TestNextFallsBackToGetCurrentWithNothingPending(t *testing.T) {
	in := Inputs{DeviceID: 0x1, Pending: &types.PendingWrites{}}
	got := Next(frame.ResponseGetCurrent, in)
	if got[3] != byte(frame.RequestGetCurrent) {
		t.Errorf("action byte = %#02x, want RequestGetCurrent", got[3])
	}
}

func TestNextContinuesHistoryCatchupFromCurrent(t *testing.T) {
	in := Inputs{
		DeviceID:    0x1,
		Pending:     &types.PendingWrites{HistoryCatchup: true},
		HistoryDone: false,
	}
	got := Next(frame.ResponseGetCurrent, in)
	if got[3] != byte(frame.RequestGetHistory) {
		t.Errorf("action byte = %#02x, want RequestGetHistory", got[3])
	}
}

func TestNextGetHistoryDispatchesOnRingPointerEquality(t *testing.T) {
	in := Inputs{DeviceID: 0x1, LatestIdx: 105, ThisIdx: 100}
	got := Next(frame.ResponseGetHistory, in)
	if got[3] != byte(frame.RequestGetHistory) {
		t.Errorf("action byte = %#02x, want RequestGetHistory while thisIdx lags latestIdx", got[3])
	}

	in.ThisIdx = 105
	got = Next(frame.ResponseGetHistory, in)
	if got[3] != byte(frame.RequestGetCurrent) {
		t.Errorf("action byte = %#02x, want RequestGetCurrent once thisIdx == latestIdx", got[3])
	}
}

func TestNextGetConfigSendsSetConfigOnlyWhenPendingDiffersFromDecoded(t *testing.T) {
	pending := types.Config{LCDContrast: 6}
	decoded := types.Config{LCDContrast: 2}

	in := Inputs{
		DeviceID:      0x1,
		Pending:       &types.PendingWrites{PendingConfig: &pending},
		DecodedConfig: &decoded,
	}
	got := Next(frame.ResponseGetConfig, in)
	if got[3] != byte(frame.RequestSetConfig) {
		t.Errorf("action byte = %#02x, want RequestSetConfig when decoded differs from pending", got[3])
	}

	in.DecodedConfig = &pending
	got = Next(frame.ResponseGetConfig, in)
	if got[3] != byte(frame.RequestGetCurrent) {
		t.Errorf("action byte = %#02x, want RequestGetCurrent once the write has taken", got[3])
	}
}

func TestNextConsoleRequestsSetConfigSendsPendingOrZeroValue(t *testing.T) {
	cfg := types.Config{LCDContrast: 7}
	in := Inputs{
		DeviceID: 0x2,
		Pending:  &types.PendingWrites{PendingConfig: &cfg},
	}
	got := Next(frame.ResponseConsoleRequestsSetConfig, in)
	if got[3] != byte(frame.RequestSetConfig) {
		t.Errorf("action byte = %#02x, want RequestSetConfig", got[3])
	}

	in.Pending = &types.PendingWrites{}
	got = Next(frame.ResponseConsoleRequestsSetConfig, in)
	if got[3] != byte(frame.RequestSetConfig) {
		t.Errorf("action byte = %#02x, want RequestSetConfig even with nothing queued (zero-value body)", got[3])
	}
}

func TestNextConsoleRequestsSetTime(t *testing.T) {
	in := Inputs{DeviceID: 0x2, Now: time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)}
	got := Next(frame.ResponseConsoleRequestsSetTime, in)
	if got[3] != byte(frame.RequestSendTime) {
		t.Errorf("action byte = %#02x, want RequestSendTime", got[3])
	}
}

func TestDedupSuppressesRepeatWithinWindow(t *testing.T) {
	d := NewDedup()
	payload := []byte{1, 2, 3}
	t0 := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	if d.Seen(payload, t0) {
		t.Fatal("first sighting should never be a duplicate")
	}
	if !d.Seen(payload, t0.Add(1*time.Second)) {
		t.Error("repeat within window should be a duplicate")
	}
	if d.Seen(payload, t0.Add(5*time.Second)) {
		t.Error("repeat after the window has elapsed should not be a duplicate")
	}
}

func TestDedupDistinguishesPayloads(t *testing.T) {
	d := NewDedup()
	t0 := time.Now()
	d.Seen([]byte{1}, t0)
	if d.Seen([]byte{2}, t0) {
		t.Error("different payloads should never be treated as duplicates")
	}
}
