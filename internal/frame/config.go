package frame

import (
	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// Config payload byte offsets. Bytes 3..38, apart from the history
// interval byte at 25, are organized as reversed
// groups (reverseBytes applied/undone before the nibble fields inside
// them are read) — the console stores these multi-byte min/max pairs and
// bitmasks back-to-front relative to every other field in the frame.
const (
	cfgOffFormats      = 0 // bit0 clock, bit1 temp unit, bit2 pressure unit, bit3 rain unit, bits4-7 wind unit
	cfgOffThresholds   = 1 // low nibble weather threshold, high nibble storm threshold
	cfgOffContrastBat  = 2 // low nibble LCD contrast, high nibble low-battery flags
	cfgOffAlarms       = 3 // 4 bytes, reversed: wind-dir alarm (16) | other alarm (16)
	cfgOffTempIndoor   = 7 // 5 bytes, reversed: min(5 nibbles) + max(5 nibbles)
	cfgOffTempOutdoor  = 12
	cfgOffHumidIndoor  = 17 // 2 bytes, reversed: min(2 BCD) + max(2 BCD)
	cfgOffHumidOutdoor = 19
	cfgOffRain24HMax   = 21 // 4 bytes, reversed, 7 nibbles
	cfgOffHistInterval = 25 // low nibble
	cfgOffGustMax      = 26 // 3 bytes, reversed, 6 nibbles
	cfgOffPressureMin  = 29 // 5 bytes, reversed, 5 nibbles
	cfgOffPressureMax  = 34 // 5 bytes, reversed, 5 nibbles
	cfgOffResetFlags   = 39 // 3 bytes, write-only
	cfgOffChecksum     = 42 // 2 bytes

	configPayloadLen = 44
)

// reversedGroups lists the byte ranges DecodeConfig/EncodeConfig must
// flip before (decode) or after (encode) reading the nibble fields inside
// them.
var reversedGroups = []struct{ offset, n int }{
	{cfgOffAlarms, 4},
	{cfgOffTempIndoor, 5},
	{cfgOffTempOutdoor, 5},
	{cfgOffHumidIndoor, 2},
	{cfgOffHumidOutdoor, 2},
	{cfgOffRain24HMax, 4},
	{cfgOffGustMax, 3},
	{cfgOffPressureMin, 5},
	{cfgOffPressureMax, 5},
}

// DecodeConfig parses a frame carrying a settings image: the console's
// GetConfig reply (response type 0x40) or a SetConfig request built by
// EncodeConfig (action 0x02), which share the same payload layout.
func DecodeConfig(buf []byte) (types.Config, types.DeviceId, error) {
	h, payload, err := decodeHeader(buf)
	if err != nil {
		return types.Config{}, 0, err
	}
	if ResponseType(h.ActionByte) != ResponseGetConfig && RequestType(h.ActionByte) != RequestSetConfig {
		return types.Config{}, 0, errs.NewCodecFault(errs.CodecUnknownResponseType, ResponseType(h.ActionByte).String())
	}
	if len(payload) < configPayloadLen {
		return types.Config{}, 0, errs.NewCodecFault(errs.CodecBadLength, "config payload truncated")
	}

	wantSum := configChecksum(payload)
	gotSum := uint16(payload[cfgOffChecksum])<<8 | uint16(payload[cfgOffChecksum+1])
	if wantSum != gotSum {
		return types.Config{}, 0, errs.NewCodecFault(errs.CodecBadChecksum, "config checksum mismatch")
	}

	work := make([]byte, len(payload))
	copy(work, payload)
	for _, g := range reversedGroups {
		reverseBytes(work, g.offset, g.n)
	}

	var cfg types.Config
	cfg.ClockFormat = types.ClockFormat(work[cfgOffFormats] & 0x1)
	cfg.TemperatureUnit = types.TemperatureUnit((work[cfgOffFormats] >> 1) & 0x1)
	cfg.PressureUnit = types.PressureUnit((work[cfgOffFormats] >> 2) & 0x1)
	cfg.RainUnit = types.RainUnit((work[cfgOffFormats] >> 3) & 0x1)
	cfg.WindUnit = types.WindUnit((work[cfgOffFormats] >> 4) & 0xf)

	cfg.WeatherThresholdHPa = float64(work[cfgOffThresholds]&0x0f) + 960
	cfg.StormThresholdHPa = float64(work[cfgOffThresholds]>>4) + 960

	cfg.LCDContrast = work[cfgOffContrastBat]&0x0f + 1
	cfg.LowBatteryFlags = types.BatteryFlags(work[cfgOffContrastBat] >> 4)

	ac := newCursor(work, cfgOffAlarms*2)
	cfg.AlarmWindDir = types.WindDirAlarmFlags(ac.raw(4))
	cfg.AlarmOther = types.OtherAlarmFlags(ac.raw(4))

	tc := newCursor(work, cfgOffTempIndoor*2)
	cfg.TempIndoorMin, _ = tc.temperature()
	cfg.TempIndoorMax, _ = tc.temperature()

	tc2 := newCursor(work, cfgOffTempOutdoor*2)
	cfg.TempOutdoorMin, _ = tc2.temperature()
	cfg.TempOutdoorMax, _ = tc2.temperature()

	hc := newCursor(work, cfgOffHumidIndoor*2)
	hiMin, _ := hc.humidity()
	hiMax, _ := hc.humidity()
	cfg.HumidityIndoorMin, cfg.HumidityIndoorMax = uint8(hiMin), uint8(hiMax)

	hc2 := newCursor(work, cfgOffHumidOutdoor*2)
	hoMin, _ := hc2.humidity()
	hoMax, _ := hc2.humidity()
	cfg.HumidityOutdoorMin, cfg.HumidityOutdoorMax = uint8(hoMin), uint8(hoMax)

	rc := newCursor(work, cfgOffRain24HMax*2)
	cfg.Rain24HMax, _ = rc.rainCounter(7)

	cfg.HistoryInterval = types.HistoryInterval(work[cfgOffHistInterval] & 0x0f)

	gc := newCursor(work, cfgOffGustMax*2)
	cfg.GustMax, _ = gc.windspeed()

	pc := newCursor(work, cfgOffPressureMin*2)
	cfg.PressureMinHPa, _ = pc.pressureHPa()
	pc2 := newCursor(work, cfgOffPressureMax*2)
	cfg.PressureMaxHPa, _ = pc2.pressureHPa()

	cfg.ResetMinMaxFlags = 0
	cfg.Checksum = gotSum

	return cfg, h.DeviceID, nil
}

// EncodeConfig serializes a Config into a write_frame SetConfig payload,
// applying the console's per-group byte reversal and recomputing the
// checksum.
func EncodeConfig(id types.DeviceId, cfg types.Config) []byte {
	buf := make([]byte, headerLen+configPayloadLen)
	payload := buf[headerLen:]

	payload[cfgOffFormats] = byte(cfg.ClockFormat&0x1) |
		byte(cfg.TemperatureUnit&0x1)<<1 |
		byte(cfg.PressureUnit&0x1)<<2 |
		byte(cfg.RainUnit&0x1)<<3 |
		byte(cfg.WindUnit&0xf)<<4

	weather := byte(cfg.WeatherThresholdHPa - 960)
	storm := byte(cfg.StormThresholdHPa - 960)
	payload[cfgOffThresholds] = (weather & 0x0f) | (storm&0x0f)<<4

	contrast := byte(0)
	if cfg.LCDContrast >= 1 {
		contrast = cfg.LCDContrast - 1
	}
	payload[cfgOffContrastBat] = (contrast & 0x0f) | byte(cfg.LowBatteryFlags)<<4

	ac := newCursor(payload, cfgOffAlarms*2)
	ac.putRaw(4, uint64(cfg.AlarmWindDir))
	ac.putRaw(4, uint64(cfg.AlarmOther))

	tc := newCursor(payload, cfgOffTempIndoor*2)
	tc.putTemperature(cfg.TempIndoorMin, true)
	tc.putTemperature(cfg.TempIndoorMax, true)

	tc2 := newCursor(payload, cfgOffTempOutdoor*2)
	tc2.putTemperature(cfg.TempOutdoorMin, true)
	tc2.putTemperature(cfg.TempOutdoorMax, true)

	hc := newCursor(payload, cfgOffHumidIndoor*2)
	hc.putHumidity(int(cfg.HumidityIndoorMin))
	hc.putHumidity(int(cfg.HumidityIndoorMax))

	hc2 := newCursor(payload, cfgOffHumidOutdoor*2)
	hc2.putHumidity(int(cfg.HumidityOutdoorMin))
	hc2.putHumidity(int(cfg.HumidityOutdoorMax))

	rc := newCursor(payload, cfgOffRain24HMax*2)
	rc.putRainCounter(7, cfg.Rain24HMax, true)

	payload[cfgOffHistInterval] = byte(cfg.HistoryInterval) & 0x0f

	gc := newCursor(payload, cfgOffGustMax*2)
	gc.putWindspeed(cfg.GustMax, true)

	pc := newCursor(payload, cfgOffPressureMin*2)
	pc.putPressureHPa(cfg.PressureMinHPa, true)
	pc2 := newCursor(payload, cfgOffPressureMax*2)
	pc2.putPressureHPa(cfg.PressureMaxHPa, true)

	writeNibbles(payload, cfgOffResetFlags*2, 6, uint64(cfg.ResetMinMaxFlags))

	for _, g := range reversedGroups {
		reverseBytes(payload, g.offset, g.n)
	}

	sum := configChecksum(payload)
	payload[cfgOffChecksum] = byte(sum >> 8)
	payload[cfgOffChecksum+1] = byte(sum)

	encodeHeader(buf, id, byte(RequestSetConfig), len(payload))
	return buf
}
