package frame

import (
	"testing"
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

func sampleHistoryRecords(n int) []types.HistoryRecord {
	base := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	records := make([]types.HistoryRecord, n)
	for i := range records {
		records[i] = types.HistoryRecord{
			Timestamp:       base.Add(time.Duration(i) * 5 * time.Minute),
			TempIndoor:      20.0 + float64(i)*0.1,
			HumidityIndoor:  40 + uint8(i),
			TempOutdoor:     10.0 + float64(i)*0.2,
			HumidityOutdoor: 60 + uint8(i),
			PressureRelhPa:  1000.0 + float64(i),
			RainCounterRaw:  uint32(i * 7),
			WindDirection:   types.WindDirection(i % 16),
			WindSpeed:       float64(i) * 0.5,
			GustSpeed:       float64(i) * 0.8,
		}
	}
	return records
}

func TestHistoryRoundTrip(t *testing.T) {
	thisIdx := types.HistoryIndex(100)
	records := sampleHistoryRecords(4)
	latestIdx := thisIdx + types.HistoryIndex(len(records)-1)
	buf := EncodeHistory(0x5678, latestIdx, thisIdx, records)

	got, gotID, gotLatest, gotThis, err := DecodeHistory(buf)
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if gotID != 0x5678 {
		t.Errorf("device id = %#04x, want %#04x", gotID, 0x5678)
	}
	if gotLatest != latestIdx || gotThis != thisIdx {
		t.Errorf("ring pointers = (%d, %d), want (%d, %d)", gotLatest, gotThis, latestIdx, thisIdx)
	}
	if len(got) != len(records) {
		t.Fatalf("got %d records, want %d", len(got), len(records))
	}

	idx := thisIdx
	for i, rec := range got {
		want := records[i]
		if rec.Index != idx {
			t.Errorf("record %d: Index = %d, want %d", i, rec.Index, idx)
		}
		if !rec.Timestamp.Equal(want.Timestamp) {
			t.Errorf("record %d: Timestamp = %v, want %v", i, rec.Timestamp, want.Timestamp)
		}
		if diff := rec.TempIndoor - want.TempIndoor; diff > 0.15 || diff < -0.15 {
			t.Errorf("record %d: TempIndoor = %.1f, want %.1f", i, rec.TempIndoor, want.TempIndoor)
		}
		if rec.HumidityIndoor != want.HumidityIndoor {
			t.Errorf("record %d: HumidityIndoor = %d, want %d", i, rec.HumidityIndoor, want.HumidityIndoor)
		}
		if rec.WindDirection != want.WindDirection {
			t.Errorf("record %d: WindDirection = %v, want %v", i, rec.WindDirection, want.WindDirection)
		}
		if rec.GustDirection != types.WindDirectionInvalid {
			t.Errorf("record %d: GustDirection = %v, want WindDirectionInvalid: the 18-byte record carries no separate gust-direction nibble", i, rec.GustDirection)
		}
		idx = idx.Next()
	}
}

func TestHistoryIndexWrapsAtRingMax(t *testing.T) {
	thisIdx := types.HistoryIndexMax - 1
	records := sampleHistoryRecords(3)
	buf := EncodeHistory(0x1, thisIdx.Next().Next(), thisIdx, records)

	got, _, _, _, err := DecodeHistory(buf)
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	want := []types.HistoryIndex{types.HistoryIndexMax - 1, types.HistoryIndexMax, 0}
	for i, rec := range got {
		if rec.Index != want[i] {
			t.Errorf("record %d: Index = %d, want %d", i, rec.Index, want[i])
		}
	}
}

func TestDecodeHistoryRejectsInvalidRingPointer(t *testing.T) {
	buf := EncodeHistory(0x1, 0, 0, sampleHistoryRecords(1))
	// Nibbles of the thisIdx field set to all-F: out of ring range.
	buf[headerLen+2] = 0xff
	buf[headerLen+3] = 0xff
	if _, _, _, _, err := DecodeHistory(buf); err == nil {
		t.Error("expected an error for an out-of-range history ring pointer")
	}
}

func TestDecodeHistoryEmptyPayloadSignalsCaughtUp(t *testing.T) {
	buf := EncodeHistory(0x1, 42, 42, nil)
	got, _, latestIdx, thisIdx, err := DecodeHistory(buf)
	if err != nil {
		t.Fatalf("DecodeHistory: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d records, want 0", len(got))
	}
	if latestIdx != thisIdx {
		t.Errorf("latestIdx = %d, thisIdx = %d, want equal: an empty page on its own is not the catch-up signal", latestIdx, thisIdx)
	}
}

// TestDecodeHistoryRecordMatchesJune2013Sample decodes the literal
// 18-byte archive record `00 0c 70 0a 00 08 65 91 01 92 53 76 35 13 06
// 24 09 10` — the tail of the console's own sample transmission once its
// leading message-id/length/device-id/response-type/checksum/ring-
// pointer header bytes are stripped off. Every field below round-trips
// to the same decoded values the console's own read path reports for
// this record.
func TestDecodeHistoryRecordMatchesJune2013Sample(t *testing.T) {
	raw := []byte{0x00, 0x0c, 0x70, 0x0a, 0x00, 0x08, 0x65, 0x91, 0x01, 0x92, 0x53, 0x76, 0x35, 0x13, 0x06, 0x24, 0x09, 0x10}

	rec, err := decodeHistoryRecord(raw)
	if err != nil {
		t.Fatalf("decodeHistoryRecord: %v", err)
	}

	wantTime := time.Date(2013, time.June, 24, 9, 10, 0, 0, time.UTC)
	if !rec.Timestamp.Equal(wantTime) {
		t.Errorf("Timestamp = %v, want %v", rec.Timestamp, wantTime)
	}
	almostEqual := func(name string, got, want float64) {
		if diff := got - want; diff > 0.05 || diff < -0.05 {
			t.Errorf("%s = %.2f, want %.2f", name, got, want)
		}
	}
	almostEqual("TempIndoor", rec.TempIndoor, 23.5)
	almostEqual("TempOutdoor", rec.TempOutdoor, 13.7)
	almostEqual("PressureRelhPa", rec.PressureRelhPa, 1019.2)
	almostEqual("WindSpeed", rec.WindSpeed, 1.0)
	almostEqual("GustSpeed", rec.GustSpeed, 1.2)
	if rec.HumidityOutdoor != 86 {
		t.Errorf("HumidityOutdoor = %d, want 86", rec.HumidityOutdoor)
	}
	if rec.WindDirection != types.WindDirection(7) {
		t.Errorf("WindDirection = %v (%d), want SSE (7)", rec.WindDirection, rec.WindDirection)
	}
}
