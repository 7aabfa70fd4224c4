package frame

import (
	"math"
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// historyIndexFieldLen is the width, in bytes, of each ring pointer that
// precedes the packed archive records in a history frame's payload: the
// console's LatestHistoryIndex (its current write position) and
// ThisHistoryIndex (the position of the first record in this page), each
// a 12-bit value carried in the low 12 bits of a big-endian uint16.
const historyIndexFieldLen = 2

// historyHeaderBytes is the combined width of the two ring-pointer
// fields ahead of the record data.
const historyHeaderBytes = 2 * historyIndexFieldLen

// historyRecordBytes is the fixed width of one packed archive record:
// an 18-byte record, stored byte-reversed end to end, packing a BCD
// timestamp and a run of ring-buffer-encoded sensor readings.
const historyRecordBytes = 18

// DecodeHistory parses a read_frame reply carrying the console's archive
// ring state (response type 0x80): the two ring pointers, latestIdx and
// thisIdx, followed by zero or more packed 18-byte records starting at
// thisIdx. The protocol state machine's catch-up decision is
// latestIdx == thisIdx, not "this page came back empty" — a console that
// has nothing new to report still echoes both pointers equal.
func DecodeHistory(buf []byte) ([]types.HistoryRecord, types.DeviceId, types.HistoryIndex, types.HistoryIndex, error) {
	h, payload, err := decodeHeader(buf)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	if ResponseType(h.ActionByte) != ResponseGetHistory {
		return nil, 0, 0, 0, errs.NewCodecFault(errs.CodecUnknownResponseType, ResponseType(h.ActionByte).String())
	}
	if len(payload) < historyHeaderBytes {
		return nil, 0, 0, 0, errs.NewCodecFault(errs.CodecBadLength, "history payload shorter than ring-pointer header")
	}

	latestIdx := types.HistoryIndex(uint16(payload[0]&0x0f)<<8 | uint16(payload[1]))
	thisIdx := types.HistoryIndex(uint16(payload[2]&0x0f)<<8 | uint16(payload[3]))
	if !latestIdx.Valid() || !thisIdx.Valid() {
		return nil, 0, 0, 0, errs.NewCodecFault(errs.CodecNibbleOutOfRange, "history ring pointer out of range")
	}

	body := payload[historyHeaderBytes:]
	count := len(body) / historyRecordBytes
	records := make([]types.HistoryRecord, 0, count)

	idx := thisIdx
	for i := 0; i < count; i++ {
		rec, err := decodeHistoryRecord(body[i*historyRecordBytes : (i+1)*historyRecordBytes])
		if err != nil {
			return nil, 0, 0, 0, err
		}
		rec.Index = idx
		records = append(records, rec)
		idx = idx.Next()
	}

	return records, h.DeviceID, latestIdx, thisIdx, nil
}

// decodeHistoryRecord parses one 18-byte archive record. The console
// stores the whole record byte-reversed; reverseBytes undoes that before
// the field formulas below, each of which reads its digits left to
// right against the un-reversed byte order.
func decodeHistoryRecord(raw []byte) (types.HistoryRecord, error) {
	if len(raw) != historyRecordBytes {
		return types.HistoryRecord{}, errs.NewCodecFault(errs.CodecBadLength, "history record is not 18 bytes")
	}
	b := make([]byte, historyRecordBytes)
	copy(b, raw)
	reverseBytes(b, 0, historyRecordBytes)

	var rec types.HistoryRecord

	minute := int(b[0]&0x0f) + int(b[0]>>4)*10
	hour := int(b[1]&0x0f) + int(b[1]>>4)*10
	day := int(b[2]&0x0f) + int(b[2]>>4)*10
	month := int(b[3]&0x0f) + int(b[3]>>4)*10
	year := int(b[4]&0x0f) + int(b[4]>>4)*10 + 2000
	rec.Timestamp = time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)

	rec.TempIndoor = float64(b[5]&0x0f)*0.1 + float64(b[5]>>4) + float64(b[6]&0x0f)*10.0 - 40.0
	rec.TempOutdoor = float64(b[6]>>4)*0.1 + float64(b[7]&0x0f) + float64(b[7]>>4)*10.0 - 40.0

	rec.PressureRelhPa = float64(b[10]&0x0f)*1000.0 + float64(b[9]>>4)*100.0 + float64(b[9]&0x0f)*10.0 + float64(b[8]>>4) + float64(b[8]&0x0f)*0.1

	rec.HumidityIndoor = uint8(b[10]>>4) + uint8(b[11]&0x0f)*10
	rec.HumidityOutdoor = uint8(b[11]>>4) + uint8(b[12]&0x0f)*10

	rec.RainCounterRaw = uint32(b[12]>>4) + uint32(b[13]&0x0f)*16 + uint32(b[13]>>4)*256

	windRaw := uint32(b[14]&0x0f) + uint32(b[14]>>4)*16 + uint32(b[15]&0x0f)*256
	rec.WindSpeed = float64(windRaw) * 0.1
	rec.WindDirection = types.WindDirection(b[15] >> 4)

	gustRaw := uint32(b[16]&0x0f) + uint32(b[16]>>4)*16 + uint32(b[17]&0x0f)*256
	rec.GustSpeed = float64(gustRaw) * 0.1
	// The 18-byte record carries a single wind-direction nibble; there is
	// no separate gust-direction field to decode.
	rec.GustDirection = types.WindDirectionInvalid

	return rec, nil
}

// EncodeHistory serializes the two ring pointers and a run of archive
// records into a write_frame payload, used by tests exercising the
// decode path round-trip; the console is the only real sender of
// History frames.
func EncodeHistory(id types.DeviceId, latestIdx, thisIdx types.HistoryIndex, records []types.HistoryRecord) []byte {
	payload := make([]byte, historyHeaderBytes+len(records)*historyRecordBytes)
	payload[0] = byte((latestIdx >> 8) & 0x0f)
	payload[1] = byte(latestIdx)
	payload[2] = byte((thisIdx >> 8) & 0x0f)
	payload[3] = byte(thisIdx)

	for i, rec := range records {
		encodeHistoryRecord(payload[historyHeaderBytes+i*historyRecordBytes:historyHeaderBytes+(i+1)*historyRecordBytes], rec)
	}

	buf := make([]byte, headerLen+len(payload))
	copy(buf[headerLen:], payload)
	encodeHeader(buf, id, byte(ResponseGetHistory), len(payload))
	return buf
}

// encodeHistoryRecord is decodeHistoryRecord run backwards: build the
// 18-byte record in its un-reversed field order, then reverse it once.
func encodeHistoryRecord(out []byte, rec types.HistoryRecord) {
	b := make([]byte, historyRecordBytes)

	minute, hour, day := rec.Timestamp.Minute(), rec.Timestamp.Hour(), rec.Timestamp.Day()
	month, year := int(rec.Timestamp.Month()), rec.Timestamp.Year()%100
	b[0] = byte(minute/10)<<4 | byte(minute%10)
	b[1] = byte(hour/10)<<4 | byte(hour%10)
	b[2] = byte(day/10)<<4 | byte(day%10)
	b[3] = byte(month/10)<<4 | byte(month%10)
	b[4] = byte(year/10)<<4 | byte(year%10)

	ti := uint32(math.Round((rec.TempIndoor + 40.0) * 10.0))
	tiD0, tiD1, tiD2 := ti%10, (ti/10)%10, (ti/100)%10
	to := uint32(math.Round((rec.TempOutdoor + 40.0) * 10.0))
	toD0, toD1, toD2 := to%10, (to/10)%10, (to/100)%10
	b[5] = byte(tiD1<<4 | tiD0)
	b[6] = byte(toD0<<4 | tiD2)
	b[7] = byte(toD2<<4 | toD1)

	pr := uint32(math.Round(rec.PressureRelhPa * 10.0))
	p0, p1, p2, p3, p4 := pr%10, (pr/10)%10, (pr/100)%10, (pr/1000)%10, (pr/10000)%10
	hiOnes, hiTens := uint32(rec.HumidityIndoor)%10, uint32(rec.HumidityIndoor)/10
	hoOnes, hoTens := uint32(rec.HumidityOutdoor)%10, uint32(rec.HumidityOutdoor)/10
	rain := rec.RainCounterRaw
	rainOnes, rain16, rain256 := rain%16, (rain/16)%16, (rain/256)%16

	b[8] = byte(p1<<4 | p0)
	b[9] = byte(p3<<4 | p2)
	b[10] = byte(hiOnes<<4 | p4)
	b[11] = byte(hoOnes<<4 | hiTens)
	b[12] = byte(rainOnes<<4 | hoTens)
	b[13] = byte(rain256<<4 | rain16)

	wind := uint32(math.Round(rec.WindSpeed * 10.0))
	w0, w1, w2 := wind%16, (wind/16)%16, (wind/256)%16
	b[14] = byte(w1<<4 | w0)
	b[15] = byte(uint32(rec.WindDirection)<<4 | w2)

	gust := uint32(math.Round(rec.GustSpeed * 10.0))
	g0, g1, g2 := gust%16, (gust/16)%16, (gust/256)%16
	b[16] = byte(g1<<4 | g0)
	b[17] = byte(g2)

	reverseBytes(b, 0, historyRecordBytes)
	copy(out, b)
}
