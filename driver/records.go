package driver

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// ObservationRecord flattens an Observation into the name→value map
// spec.md §6's "emitted records" interface describes, with the
// timestamp carried alongside.
func ObservationRecord(obs types.Observation) map[string]interface{} {
	return map[string]interface{}{
		"timestamp":        obs.Timestamp,
		"temp_indoor":       obs.TempIndoor,
		"temp_outdoor":      obs.TempOutdoor,
		"dewpoint":          obs.Dewpoint,
		"windchill":         obs.Windchill,
		"humidity_indoor":   obs.HumidityIndoor,
		"humidity_outdoor":  obs.HumidityOutdoor,
		"wind_speed":        obs.WindSpeed,
		"gust_speed":        obs.GustSpeed,
		"wind_direction":    obs.WindDirection.String(),
		"gust_direction":    obs.GustDirection.String(),
		"rain_24h":          obs.Rain24H,
		"rain_week":         obs.RainWeek,
		"rain_month":        obs.RainMonth,
		"rain_total":        obs.RainTotal,
		"pressure_rel_hpa":  obs.PressureRelhPa,
		"battery_low":       obs.Battery,
		"signal_quality":    obs.SignalQuality,
		"weather_state":     obs.WeatherState,
		"tendency":          obs.Tendency,
		"alarms_ringing":    obs.AlarmsRinging,
	}
}

// HistoryRecordMap flattens a HistoryRecord the same way, adding its
// ring index.
func HistoryRecordMap(rec types.HistoryRecord) map[string]interface{} {
	return map[string]interface{}{
		"index":             rec.Index,
		"timestamp":         rec.Timestamp,
		"temp_indoor":       rec.TempIndoor,
		"humidity_indoor":   rec.HumidityIndoor,
		"temp_outdoor":      rec.TempOutdoor,
		"humidity_outdoor":  rec.HumidityOutdoor,
		"pressure_rel_hpa":  rec.PressureRelhPa,
		"rain_counter_raw":  rec.RainCounterRaw,
		"wind_direction":    rec.WindDirection.String(),
		"wind_speed":        rec.WindSpeed,
		"gust_direction":    rec.GustDirection.String(),
		"gust_speed":        rec.GustSpeed,
	}
}

// MarshalRecords encodes a batch of flattened records as MessagePack,
// for a host that wants a wire-efficient snapshot to forward elsewhere
// rather than consuming the Go structs directly.
func MarshalRecords(records []map[string]interface{}) ([]byte, error) {
	return msgpack.Marshal(records)
}
