package frame

import "time"

// timestampNibbleWidth is the 10-nibble minute/hour/day/month/year BCD
// block every min/max field carries, in that wire order. It is addressed
// in nibble pairs rather than whole bytes so it can start at either
// nibble phase of a byte, same as every other field in this package.
const timestampNibbleWidth = 10

func bcdNibblePair(buf []byte, nibbleStart int) (int, bool) {
	tens, ones := nibbleAt(buf, nibbleStart), nibbleAt(buf, nibbleStart+1)
	if tens > 9 || ones > 9 {
		return 0, false
	}
	return int(tens)*10 + int(ones), true
}

func putBCDNibblePair(buf []byte, nibbleStart int, v int) {
	setNibbleAt(buf, nibbleStart, byte(v/10))
	setNibbleAt(buf, nibbleStart+1, byte(v%10))
}

func (c *cursor) timestamp() (time.Time, bool) {
	start := c.nibble
	c.nibble += timestampNibbleWidth

	min, ok1 := bcdNibblePair(c.buf, start)
	hour, ok2 := bcdNibblePair(c.buf, start+2)
	day, ok3 := bcdNibblePair(c.buf, start+4)
	month, ok4 := bcdNibblePair(c.buf, start+6)
	year, ok5 := bcdNibblePair(c.buf, start+8)
	if !ok1 || !ok2 || !ok3 || !ok4 || !ok5 {
		return time.Time{}, false
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	return time.Date(2000+year, time.Month(month), day, hour, min, 0, 0, time.UTC), true
}

func (c *cursor) putTimestamp(t time.Time) {
	start := c.nibble
	c.nibble += timestampNibbleWidth

	t = t.UTC()
	year := t.Year() - 2000
	if year < 0 {
		year = 0
	}
	if year > 99 {
		year = 99
	}
	putBCDNibblePair(c.buf, start, t.Minute())
	putBCDNibblePair(c.buf, start+2, t.Hour())
	putBCDNibblePair(c.buf, start+4, t.Day())
	putBCDNibblePair(c.buf, start+6, int(t.Month()))
	putBCDNibblePair(c.buf, start+8, year)
}
