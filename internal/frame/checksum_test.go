package frame

import "testing"

func TestRunningSumChecksum(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		want    uint16
	}{
		{"empty", []byte{}, 0},
		{"single byte", []byte{0x05}, 5},
		{"sums multiple bytes", []byte{0xff, 0xff, 0x02}, 0x0200},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runningSumChecksum(tt.payload); got != tt.want {
				t.Errorf("got %#04x, want %#04x", got, tt.want)
			}
		})
	}
}

func TestConfigChecksumStableUnderResetFlags(t *testing.T) {
	base := make([]byte, configPayloadLen)
	for i := range base[:configChecksumLen] {
		base[i] = byte(i * 3)
	}
	sum := configChecksum(base)

	withResetFlags := make([]byte, configPayloadLen)
	copy(withResetFlags, base)
	withResetFlags[cfgOffResetFlags] = 0xff
	withResetFlags[cfgOffResetFlags+1] = 0xff
	withResetFlags[cfgOffResetFlags+2] = 0xff

	if got := configChecksum(withResetFlags); got != sum {
		t.Errorf("checksum changed when only ResetMinMaxFlags bytes changed: got %#04x, want %#04x", got, sum)
	}
}

func TestReverseBytesRoundTrip(t *testing.T) {
	buf := []byte{1, 2, 3, 4, 5, 6}
	orig := append([]byte{}, buf...)

	reverseBytes(buf, 1, 4)
	if buf[1] == orig[1] && buf[4] == orig[4] {
		t.Fatal("reverseBytes did not change the targeted range")
	}

	reverseBytes(buf, 1, 4)
	for i := range buf {
		if buf[i] != orig[i] {
			t.Errorf("byte %d = %d after double reverse, want %d", i, buf[i], orig[i])
		}
	}
}
