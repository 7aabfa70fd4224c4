// Package frame implements the pure encoder/decoder for the six WS-28xx
// frame families (spec.md §4.3): Current Weather, History, GetConfig,
// SetConfig, SetTime, and the small acknowledgement frames. It owns
// nibble addressing, BCD-with-sentinel value encoding, and checksum
// computation. Nothing in this package talks to a transport or holds
// state across calls — every exported function is Encode(value) []byte
// or Decode([]byte) (value, error).
package frame

import "github.com/matthewwall/weewx-ws28xx/internal/errs"

// A byte has a "hi" nibble (bits 7..4) and a "lo" nibble (bits 3..0).
// Multi-nibble fields are big-endian: nibble index 0 is the most
// significant digit. nibbleAt/setNibbleAt address nibbles linearly, where
// even indices are the hi nibble of buf[idx/2] and odd indices are the lo
// nibble — this is the "small static descriptor table with a single
// interpreter" spec.md §9 calls for, expressed as a nibble cursor rather
// than a literal table of offsets.
func nibbleAt(buf []byte, idx int) byte {
	b := buf[idx/2]
	if idx%2 == 0 {
		return b >> 4
	}
	return b & 0x0f
}

func setNibbleAt(buf []byte, idx int, v byte) {
	bi := idx / 2
	if idx%2 == 0 {
		buf[bi] = (buf[bi] & 0x0f) | (v << 4)
	} else {
		buf[bi] = (buf[bi] & 0xf0) | (v & 0x0f)
	}
}

// readNibbles reads count nibbles starting at nibble index start as a
// big-endian hex integer.
func readNibbles(buf []byte, start, count int) uint64 {
	var v uint64
	for i := 0; i < count; i++ {
		v = v<<4 | uint64(nibbleAt(buf, start+i))
	}
	return v
}

// writeNibbles writes the low count*4 bits of v, big-endian, starting at
// nibble index start.
func writeNibbles(buf []byte, start, count int, v uint64) {
	for i := count - 1; i >= 0; i-- {
		setNibbleAt(buf, start+i, byte(v&0xf))
		v >>= 4
	}
}

// allF reports whether a count-nibble field is the "all-F" sentinel used
// for invalid/overflow temperature, wind, and gust fields.
func allF(v uint64, count int) bool {
	return v == (uint64(1)<<(4*count))-1
}

// cursor walks a frame payload nibble-by-nibble, decoding or encoding one
// field per call in the order spec.md §3's field table lists them.
type cursor struct {
	buf    []byte
	nibble int
}

func newCursor(buf []byte, startNibble int) *cursor {
	return &cursor{buf: buf, nibble: startNibble}
}

func (c *cursor) raw(width int) uint64 {
	v := readNibbles(c.buf, c.nibble, width)
	c.nibble += width
	return v
}

func (c *cursor) putRaw(width int, v uint64) {
	writeNibbles(c.buf, c.nibble, width, v)
	c.nibble += width
}

// temperature decodes a 5-nibble field: raw*0.1 - 40.0 °C, all-F = invalid.
func (c *cursor) temperature() (float64, bool) {
	raw := c.raw(5)
	if allF(raw, 5) {
		return 0, false
	}
	return float64(raw)*0.1 - 40.0, true
}

func (c *cursor) putTemperature(celsius float64, valid bool) {
	if !valid {
		c.putRaw(5, (1<<20)-1)
		return
	}
	raw := uint64((celsius + 40.0) * 10.0)
	c.putRaw(5, raw)
}

// humidityUnderflow/humidityOverflow are the sentinel decimal values
// spec.md §3 documents (10 = underflow, 110 = overflow). Since a 2-BCD-
// digit field can only range 0..99, the driver reserves BCD tens-digit
// values 0xA and 0xB (never valid decimal digits) to carry these two
// sentinels on the wire.
const (
	humidityUnderflowTens = 0xA
	humidityOverflowTens  = 0xB
)

// humidity decodes a 2-BCD-digit field, returning the sentinel-resolved
// percentage (10=underflow, 110=overflow) and whether the field decoded
// without a malformed (non-BCD, non-sentinel) digit.
func (c *cursor) humidity() (int, bool) {
	tens := nibbleAt(c.buf, c.nibble)
	ones := nibbleAt(c.buf, c.nibble+1)
	c.nibble += 2
	switch tens {
	case humidityUnderflowTens:
		return 10, true
	case humidityOverflowTens:
		return 110, true
	}
	if tens > 9 || ones > 9 {
		return 0, false
	}
	return int(tens)*10 + int(ones), true
}

func (c *cursor) putHumidity(pct int) {
	switch {
	case pct == 10:
		setNibbleAt(c.buf, c.nibble, humidityUnderflowTens)
		setNibbleAt(c.buf, c.nibble+1, 0)
	case pct >= 110:
		setNibbleAt(c.buf, c.nibble, humidityOverflowTens)
		setNibbleAt(c.buf, c.nibble+1, 0)
	default:
		setNibbleAt(c.buf, c.nibble, byte(pct/10))
		setNibbleAt(c.buf, c.nibble+1, byte(pct%10))
	}
	c.nibble += 2
}

// windspeed decodes a 6-nibble field: raw*0.01 m/s, all-F = invalid.
func (c *cursor) windspeed() (float64, bool) {
	raw := c.raw(6)
	if allF(raw, 6) {
		return 0, false
	}
	return float64(raw) * 0.01, true
}

func (c *cursor) putWindspeed(ms float64, valid bool) {
	if !valid {
		c.putRaw(6, (1<<24)-1)
		return
	}
	c.putRaw(6, uint64(ms*100.0))
}

// pressureHPa decodes a 5-nibble field: raw*0.1 hPa, all-F = invalid.
func (c *cursor) pressureHPa() (float64, bool) {
	raw := c.raw(5)
	if allF(raw, 5) {
		return 0, false
	}
	return float64(raw) * 0.1, true
}

func (c *cursor) putPressureHPa(hpa float64, valid bool) {
	if !valid {
		c.putRaw(5, (1<<20)-1)
		return
	}
	c.putRaw(5, uint64(hpa*10.0))
}

// pressureInHg decodes a 5-nibble field: raw*0.01 inHg.
func (c *cursor) pressureInHg() (float64, bool) {
	raw := c.raw(5)
	if allF(raw, 5) {
		return 0, false
	}
	return float64(raw) * 0.01, true
}

func (c *cursor) putPressureInHg(inHg float64, valid bool) {
	if !valid {
		c.putRaw(5, (1<<20)-1)
		return
	}
	c.putRaw(5, uint64(inHg*100.0))
}

// rainCounter decodes a width-nibble (6 or 7) field: raw*0.01 mm.
func (c *cursor) rainCounter(width int) (float64, bool) {
	raw := c.raw(width)
	if allF(raw, width) {
		return 0, false
	}
	return float64(raw) * 0.01, true
}

func (c *cursor) putRainCounter(width int, mm float64, valid bool) {
	if !valid {
		c.putRaw(width, (uint64(1)<<(4*width))-1)
		return
	}
	c.putRaw(width, uint64(mm*100.0))
}

// windDirection decodes the current direction nibble plus the 5-nibble
// history that precedes it in reverse chronology (newest first).
func (c *cursor) windDirection() (byte, [5]byte) {
	var hist [5]byte
	for i := range hist {
		hist[i] = byte(c.raw(1))
	}
	cur := byte(c.raw(1))
	return cur, hist
}

func (c *cursor) putWindDirection(cur byte, hist [5]byte) {
	for _, h := range hist {
		c.putRaw(1, uint64(h))
	}
	c.putRaw(1, uint64(cur))
}

// AllFNibbleCount returns the all-F sentinel value (not a nibble count)
// for a field the given number of nibbles wide.
func AllFNibbleCount(width int) uint64 { return (uint64(1) << (4 * width)) - 1 }

// ErrMalformedNibble is a CodecNibbleOutOfRange fault for a digit outside
// its valid range that is not one of the documented sentinels. The
// decoders in this package do not return it: humidity and timestamp
// report a malformed digit through their bool result, and DecodeSetTime
// builds its own CodecFault.
var ErrMalformedNibble = errs.NewCodecFault(errs.CodecNibbleOutOfRange, "digit out of range")
