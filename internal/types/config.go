package types

import "github.com/matthewwall/weewx-ws28xx/internal/errs"

// WindUnit, RainUnit, PressureUnit, TemperatureUnit, ClockFormat are the
// console's display-format choices. These affect only how the console's
// own LCD renders values; the driver always decodes into SI units
// regardless of what the console is configured to display.
type WindUnit uint8

const (
	WindUnitMS WindUnit = iota
	WindUnitKnots
	WindUnitBft
	WindUnitKMH
	WindUnitMPH
)

type RainUnit uint8

const (
	RainUnitMM RainUnit = iota
	RainUnitInch
)

type PressureUnit uint8

const (
	PressureUnitInHg PressureUnit = iota
	PressureUnitHPa
)

type TemperatureUnit uint8

const (
	TemperatureUnitF TemperatureUnit = iota
	TemperatureUnitC
)

type ClockFormat uint8

const (
	ClockFormat24h ClockFormat = iota
	ClockFormat12h
)

// HistoryInterval is the console's archive interval enum. The zero value
// (HistoryInterval01Min) decodes from wire nibble 0, matching the sample
// in spec.md §8 scenario 3 ("HistoryInterval = 0 (1 min)").
type HistoryInterval uint8

const (
	HistoryInterval01Min HistoryInterval = iota
	HistoryInterval05Min
	HistoryInterval10Min
	HistoryInterval15Min
	HistoryInterval20Min
	HistoryInterval30Min
	HistoryInterval60Min
	HistoryInterval02Hour
	HistoryInterval04Hour
	HistoryInterval06Hour
	HistoryInterval08Hour
	HistoryInterval12Hour
	HistoryInterval24Hour
)

// Minutes returns the interval's length in minutes.
func (h HistoryInterval) Minutes() int {
	switch h {
	case HistoryInterval01Min:
		return 1
	case HistoryInterval05Min:
		return 5
	case HistoryInterval10Min:
		return 10
	case HistoryInterval15Min:
		return 15
	case HistoryInterval20Min:
		return 20
	case HistoryInterval30Min:
		return 30
	case HistoryInterval60Min:
		return 60
	case HistoryInterval02Hour:
		return 120
	case HistoryInterval04Hour:
		return 240
	case HistoryInterval06Hour:
		return 360
	case HistoryInterval08Hour:
		return 480
	case HistoryInterval12Hour:
		return 720
	case HistoryInterval24Hour:
		return 1440
	default:
		return 0
	}
}

// HistoryIntervalFromMinutes returns the enum value whose Minutes() most
// closely matches minutes, rounding up to the next supported interval.
// It is the inverse of Minutes, used by the façade's set_interval
// convenience wrapper.
func HistoryIntervalFromMinutes(minutes int) HistoryInterval {
	all := []HistoryInterval{
		HistoryInterval01Min, HistoryInterval05Min, HistoryInterval10Min,
		HistoryInterval15Min, HistoryInterval20Min, HistoryInterval30Min,
		HistoryInterval60Min, HistoryInterval02Hour, HistoryInterval04Hour,
		HistoryInterval06Hour, HistoryInterval08Hour, HistoryInterval12Hour,
		HistoryInterval24Hour,
	}
	for _, h := range all {
		if h.Minutes() >= minutes {
			return h
		}
	}
	return HistoryInterval24Hour
}

// ResetMinMaxFlags are output-only: the console clears the corresponding
// min/max pair when a bit here is set in a SetConfig write, and the
// console always echoes this field back as zero on GetConfig.
type ResetMinMaxFlags uint32

// OtherAlarmFlags bit layout overlaps partially with Observation's
// AlarmsRinging per spec.md §9 remark tables; preserved verbatim.
type OtherAlarmFlags uint16

type WindDirAlarmFlags uint16

// Config is the mutable image of the console settings (spec.md §3).
type Config struct {
	WindUnit        WindUnit
	RainUnit        RainUnit
	PressureUnit    PressureUnit
	TemperatureUnit TemperatureUnit
	ClockFormat     ClockFormat

	// Weather/storm warning thresholds, in the console's native units.
	StormThresholdHPa  float64
	WeatherThresholdHPa float64

	LCDContrast uint8 // 1..8

	LowBatteryFlags BatteryFlags

	AlarmWindDir  WindDirAlarmFlags
	AlarmOther    OtherAlarmFlags

	TempIndoorMin  float64
	TempIndoorMax  float64
	TempOutdoorMin float64
	TempOutdoorMax float64

	HumidityIndoorMin  uint8
	HumidityIndoorMax  uint8
	HumidityOutdoorMin uint8
	HumidityOutdoorMax uint8

	Rain24HMax float64
	GustMax    float64

	PressureMinHPa float64
	PressureMaxHPa float64

	HistoryInterval HistoryInterval

	// ResetMinMaxFlags is write-only; always zero when decoded.
	ResetMinMaxFlags ResetMinMaxFlags

	// Checksum is the console's CfgCS (glossary) — recomputed on encode,
	// verified on decode.
	Checksum uint16
}

// Validate performs the range checks spec.md §7 requires before any write
// is attempted. It returns errs.ErrInvalidConfig-wrapped errors.
func (c Config) Validate() error {
	if c.LCDContrast < 1 || c.LCDContrast > 8 {
		return errs.InvalidConfigError("LCDContrast", "must be 1..8")
	}
	if c.TempIndoorMin < -29.9 || c.TempIndoorMin > 69.9 {
		return errs.InvalidConfigError("TempIndoorMin", "must be within -29.9..69.9")
	}
	if c.TempIndoorMax < -29.9 || c.TempIndoorMax > 69.9 {
		return errs.InvalidConfigError("TempIndoorMax", "must be within -29.9..69.9")
	}
	if c.TempIndoorMin > c.TempIndoorMax {
		return errs.InvalidConfigError("TempIndoorMin", "must not exceed TempIndoorMax")
	}
	if c.TempOutdoorMin < -29.9 || c.TempOutdoorMin > 69.9 {
		return errs.InvalidConfigError("TempOutdoorMin", "must be within -29.9..69.9")
	}
	if c.TempOutdoorMax < -29.9 || c.TempOutdoorMax > 69.9 {
		return errs.InvalidConfigError("TempOutdoorMax", "must be within -29.9..69.9")
	}
	if c.TempOutdoorMin > c.TempOutdoorMax {
		return errs.InvalidConfigError("TempOutdoorMin", "must not exceed TempOutdoorMax")
	}
	if c.HumidityIndoorMin < 1 || c.HumidityIndoorMin > 99 {
		return errs.InvalidConfigError("HumidityIndoorMin", "must be 1..99")
	}
	if c.HumidityIndoorMax < 1 || c.HumidityIndoorMax > 99 {
		return errs.InvalidConfigError("HumidityIndoorMax", "must be 1..99")
	}
	if c.HumidityOutdoorMin < 1 || c.HumidityOutdoorMin > 99 {
		return errs.InvalidConfigError("HumidityOutdoorMin", "must be 1..99")
	}
	if c.HumidityOutdoorMax < 1 || c.HumidityOutdoorMax > 99 {
		return errs.InvalidConfigError("HumidityOutdoorMax", "must be 1..99")
	}
	if c.Rain24HMax < 0 {
		return errs.InvalidConfigError("Rain24HMax", "must be >= 0")
	}
	if c.GustMax < 0 {
		return errs.InvalidConfigError("GustMax", "must be >= 0")
	}
	return nil
}

// Equal reports whether two Config images are equivalent for the purposes
// of the state machine's GetConfig-differs-from-pending check. It ignores
// Checksum and ResetMinMaxFlags, which are wire bookkeeping, not state.
func (c Config) Equal(other Config) bool {
	c.Checksum, other.Checksum = 0, 0
	c.ResetMinMaxFlags, other.ResetMinMaxFlags = 0, 0
	return c == other
}
