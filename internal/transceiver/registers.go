// Package transceiver drives the one-shot AX5051 RF initialisation
// (spec.md §4.2). Init runs once per process lifetime, before the service
// loop starts polling; the loop later calls Execute to re-arm reception.
// There is no separate pairing handshake here: the service loop adopts
// the device id from the console's own requests.
package transceiver

// Register addresses on the AX5051, named exactly as the chip's own
// datasheet and the console's firmware refer to them.
const (
	regIFMode      = 0x08
	regModulation  = 0x10
	regEncoding    = 0x11
	regFraming     = 0x12
	regCRCInit3    = 0x14
	regCRCInit2    = 0x15
	regCRCInit1    = 0x16
	regCRCInit0    = 0x17
	regFreq3       = 0x20
	regFreq2       = 0x21
	regFreq1       = 0x22
	regFreq0       = 0x23
	regPLLLoop     = 0x2c
	regPLLRanging  = 0x2d
	regPLLRngClk   = 0x2e
	regModMisc     = 0x34
	regSpareOut    = 0x60
	regTestObs     = 0x68
	regAPEOver     = 0x70
	regTMMux       = 0x71
	regPLLVCOI     = 0x72
	regPLLCPEn     = 0x73
	regRFMisc      = 0x7a
	regRef         = 0x7c
	regIFFreqHi    = 0x28
	regIFFreqLo    = 0x29
	regADCMisc     = 0x38
	regAGCTarget   = 0x39
	regAGCAttack   = 0x3a
	regAGCDecay    = 0x3b
	regCICDec      = 0x3f
	regDataRateHi  = 0x40
	regDataRateLo  = 0x41
	regTmgGainHi   = 0x42
	regTmgGainLo   = 0x43
	regPhaseGain   = 0x44
	regFreqGain    = 0x45
	regFreqGain2   = 0x46
	regAmplGain    = 0x47
	regAGCManual   = 0x78
	regADCDCLevel  = 0x79
	regRXMisc      = 0x7d
	regFSKDev2     = 0x25
	regFSKDev1     = 0x26
	regFSKDev0     = 0x27
	regTXPwr       = 0x30
	regTXRateHi    = 0x31
	regTXRateMid   = 0x32
	regTXRateLo    = 0x33
	regTXDriver    = 0x7b
)

// initRegisters is the fixed 50-entry (address, value) table every
// transceiver gets on init. Its FREQ0..3 values are base-frequency
// defaults; Controller.Init writes the whole table, then rewrites
// FREQ3..0 with frequencyWords of the corrected frequency.
var initRegisters = []struct{ addr, value byte }{
	{regIFMode, 0x00},
	{regModulation, 0x41},
	{regEncoding, 0x07},
	{regFraming, 0x84},
	{regCRCInit3, 0xff},
	{regCRCInit2, 0xff},
	{regCRCInit1, 0xff},
	{regCRCInit0, 0xff},
	{regFreq3, 0x38},
	{regFreq2, 0x90},
	{regFreq1, 0x00},
	{regFreq0, 0x01},
	{regPLLLoop, 0x1d},
	{regPLLRanging, 0x08},
	{regPLLRngClk, 0x03},
	{regModMisc, 0x03},
	{regSpareOut, 0x00},
	{regTestObs, 0x00},
	{regAPEOver, 0x00},
	{regTMMux, 0x00},
	{regPLLVCOI, 0x01},
	{regPLLCPEn, 0x01},
	{regRFMisc, 0xb0},
	{regRef, 0x23},
	{regIFFreqHi, 0x20},
	{regIFFreqLo, 0x00},
	{regADCMisc, 0x01},
	{regAGCTarget, 0x0e},
	{regAGCAttack, 0x11},
	{regAGCDecay, 0x0e},
	{regCICDec, 0x3f},
	{regDataRateHi, 0x19},
	{regDataRateLo, 0x66},
	{regTmgGainHi, 0x01},
	{regTmgGainLo, 0x96},
	{regPhaseGain, 0x03},
	{regFreqGain, 0x04},
	{regFreqGain2, 0x0a},
	{regAmplGain, 0x06},
	{regAGCManual, 0x00},
	{regADCDCLevel, 0x10},
	{regRXMisc, 0x35},
	{regFSKDev2, 0x00},
	{regFSKDev1, 0x31},
	{regFSKDev0, 0x27},
	{regTXPwr, 0x03},
	{regTXRateHi, 0x00},
	{regTXRateMid, 0x51},
	{regTXRateLo, 0xec},
	{regTXDriver, 0x88},
}

// frequencyWords returns the 4 FREQ3..FREQ0 register bytes for a tuned
// carrier frequency in Hz: round(freq/16e6 * 2^24), odd-forced (the
// PLL's divider requires an odd tuning word), big-endian.
func frequencyWords(tunedHz int64) [4]byte {
	freqVal := int64(float64(tunedHz)/16_000_000.0*16_777_216.0 + 0.5)
	if freqVal%2 == 0 {
		freqVal++
	}
	return [4]byte{
		byte(freqVal >> 24),
		byte(freqVal >> 16),
		byte(freqVal >> 8),
		byte(freqVal),
	}
}
