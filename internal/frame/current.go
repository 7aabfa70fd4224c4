package frame

import (
	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// CurrentPayloadNibbles is the fixed nibble width of a Current Weather
// frame's payload, fields in the order DecodeCurrent/EncodeCurrent walk
// them. It comfortably fits inside the 273-byte frame cap the transport
// enforces (137 bytes of 269 available).
const CurrentPayloadNibbles = 274

// DecodeCurrent parses a read_frame reply carrying a Current Weather
// snapshot (response type 0x60).
func DecodeCurrent(buf []byte) (types.Observation, types.DeviceId, error) {
	h, payload, err := decodeHeader(buf)
	if err != nil {
		return types.Observation{}, 0, err
	}
	if ResponseType(h.ActionByte) != ResponseGetCurrent {
		return types.Observation{}, 0, errs.NewCodecFault(errs.CodecUnknownResponseType, ResponseType(h.ActionByte).String())
	}
	if len(payload)*2 < CurrentPayloadNibbles {
		return types.Observation{}, 0, errs.NewCodecFault(errs.CodecBadLength, "current payload truncated")
	}

	var obs types.Observation
	c := newCursor(payload, 0)

	alarms := c.raw(4)
	obs.AlarmsRinging = types.AlarmMask(alarms)

	stateTendency := c.raw(2)
	obs.WeatherState = types.WeatherState(stateTendency & 0x0f)
	obs.Tendency = types.WeatherTendency((stateTendency >> 4) & 0x0f)

	obs.TempIndoor, _ = c.temperature()
	obs.TempIndoorMin.Value, _ = c.temperature()
	obs.TempIndoorMin.When, _ = c.timestamp()
	obs.TempIndoorMax.Value, _ = c.temperature()
	obs.TempIndoorMax.When, _ = c.timestamp()

	obs.TempOutdoor, _ = c.temperature()
	obs.TempOutdoorMin.Value, _ = c.temperature()
	obs.TempOutdoorMin.When, _ = c.timestamp()
	obs.TempOutdoorMax.Value, _ = c.temperature()
	obs.TempOutdoorMax.When, _ = c.timestamp()

	obs.Dewpoint, _ = c.temperature()
	obs.Windchill, _ = c.temperature()

	hi, _ := c.humidity()
	obs.HumidityIndoor = uint8(hi)
	himin, _ := c.humidity()
	obs.HumidityIndoorMin.Value = float64(himin)
	obs.HumidityIndoorMin.When, _ = c.timestamp()
	himax, _ := c.humidity()
	obs.HumidityIndoorMax.Value = float64(himax)
	obs.HumidityIndoorMax.When, _ = c.timestamp()

	ho, _ := c.humidity()
	obs.HumidityOutdoor = uint8(ho)
	homin, _ := c.humidity()
	obs.HumidityOutdoorMin.Value = float64(homin)
	obs.HumidityOutdoorMin.When, _ = c.timestamp()
	homax, _ := c.humidity()
	obs.HumidityOutdoorMax.Value = float64(homax)
	obs.HumidityOutdoorMax.When, _ = c.timestamp()

	obs.WindSpeed, _ = c.windspeed()
	windDir, windHist := c.windDirection()
	obs.WindDirection = types.WindDirection(windDir)
	for i, h := range windHist {
		obs.WindDirectionHistory[i] = types.WindDirection(h)
	}

	gustSpeed, gustValid := c.windspeed()
	obs.GustSpeed = gustSpeed
	obs.GustOverflow = !gustValid
	obs.GustSpeedMax.Value, _ = c.windspeed()
	obs.GustSpeedMax.When, _ = c.timestamp()
	gustDir, gustHist := c.windDirection()
	obs.GustDirection = types.WindDirection(gustDir)
	for i, h := range gustHist {
		obs.GustDirectionHistory[i] = types.WindDirection(h)
	}

	obs.RainCounterRaw = uint32(c.raw(7))
	obs.Rain24H, _ = c.rainCounter(6)
	obs.RainWeek, _ = c.rainCounter(6)
	obs.RainMonth, _ = c.rainCounter(6)
	obs.RainTotal, _ = c.rainCounter(7)
	obs.LastRainReset, _ = c.timestamp()

	monthMax, monthOK := c.rainCounter(5)
	obs.RainLastMonthMax, obs.RainLastMonthMaxOK = monthMax, monthOK
	weekMax, weekOK := c.rainCounter(5)
	obs.RainLastWeekMax, obs.RainLastWeekMaxOK = weekMax, weekOK

	obs.PressureRelhPa, _ = c.pressureHPa()
	obs.PressureMin.Value, _ = c.pressureHPa()
	obs.PressureMin.When, _ = c.timestamp()
	obs.PressureMax.Value, _ = c.pressureHPa()
	obs.PressureMax.When, _ = c.timestamp()
	obs.PressureRelInHg, _ = c.pressureInHg()

	battery := c.raw(2)
	obs.Battery = types.BatteryFlags(battery & 0x1f)
	obs.SignalQuality = uint8(c.raw(2)) * 5

	return obs, h.DeviceID, nil
}

// EncodeCurrent serializes an Observation into a write_frame payload, used
// only by tests exercising the decode path round-trip; the console itself
// is the only real sender of Current Weather frames.
func EncodeCurrent(id types.DeviceId, obs types.Observation) []byte {
	payloadLen := CurrentPayloadNibbles / 2
	if CurrentPayloadNibbles%2 != 0 {
		payloadLen++
	}
	buf := make([]byte, headerLen+payloadLen)
	payload := buf[headerLen:]
	c := newCursor(payload, 0)

	c.putRaw(4, uint64(obs.AlarmsRinging))
	c.putRaw(2, uint64(obs.Tendency)<<4|uint64(obs.WeatherState))

	c.putTemperature(obs.TempIndoor, true)
	c.putTemperature(obs.TempIndoorMin.Value, true)
	c.putTimestamp(obs.TempIndoorMin.When)
	c.putTemperature(obs.TempIndoorMax.Value, true)
	c.putTimestamp(obs.TempIndoorMax.When)

	c.putTemperature(obs.TempOutdoor, true)
	c.putTemperature(obs.TempOutdoorMin.Value, true)
	c.putTimestamp(obs.TempOutdoorMin.When)
	c.putTemperature(obs.TempOutdoorMax.Value, true)
	c.putTimestamp(obs.TempOutdoorMax.When)

	c.putTemperature(obs.Dewpoint, true)
	c.putTemperature(obs.Windchill, true)

	c.putHumidity(int(obs.HumidityIndoor))
	c.putHumidity(int(obs.HumidityIndoorMin.Value))
	c.putTimestamp(obs.HumidityIndoorMin.When)
	c.putHumidity(int(obs.HumidityIndoorMax.Value))
	c.putTimestamp(obs.HumidityIndoorMax.When)

	c.putHumidity(int(obs.HumidityOutdoor))
	c.putHumidity(int(obs.HumidityOutdoorMin.Value))
	c.putTimestamp(obs.HumidityOutdoorMin.When)
	c.putHumidity(int(obs.HumidityOutdoorMax.Value))
	c.putTimestamp(obs.HumidityOutdoorMax.When)

	c.putWindspeed(obs.WindSpeed, true)
	var windHist [5]byte
	for i, d := range obs.WindDirectionHistory {
		windHist[i] = byte(d)
	}
	c.putWindDirection(byte(obs.WindDirection), windHist)

	c.putWindspeed(obs.GustSpeed, !obs.GustOverflow)
	c.putWindspeed(obs.GustSpeedMax.Value, true)
	c.putTimestamp(obs.GustSpeedMax.When)
	var gustHist [5]byte
	for i, d := range obs.GustDirectionHistory {
		gustHist[i] = byte(d)
	}
	c.putWindDirection(byte(obs.GustDirection), gustHist)

	c.putRaw(7, uint64(obs.RainCounterRaw))
	c.putRainCounter(6, obs.Rain24H, true)
	c.putRainCounter(6, obs.RainWeek, true)
	c.putRainCounter(6, obs.RainMonth, true)
	c.putRainCounter(7, obs.RainTotal, true)
	c.putTimestamp(obs.LastRainReset)

	c.putRainCounter(5, obs.RainLastMonthMax, obs.RainLastMonthMaxOK)
	c.putRainCounter(5, obs.RainLastWeekMax, obs.RainLastWeekMaxOK)

	c.putPressureHPa(obs.PressureRelhPa, true)
	c.putPressureHPa(obs.PressureMin.Value, true)
	c.putTimestamp(obs.PressureMin.When)
	c.putPressureHPa(obs.PressureMax.Value, true)
	c.putTimestamp(obs.PressureMax.When)
	c.putPressureInHg(obs.PressureRelInHg, true)

	c.putRaw(2, uint64(obs.Battery))
	c.putRaw(2, uint64(obs.SignalQuality/5))

	encodeHeader(buf, id, byte(ResponseGetCurrent), len(payload))
	return buf
}
