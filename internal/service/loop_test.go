package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/config"
	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/frame"
	"github.com/matthewwall/weewx-ws28xx/internal/transceiver"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
	"github.com/matthewwall/weewx-ws28xx/internal/usbhid"
)

func testOptions() config.Options {
	o := config.Default()
	o.CommInterval = [2]time.Duration{5 * time.Millisecond, 5 * time.Millisecond}
	return o
}

// fakeDongle is a scripted usbhid.DongleLink: ReadState reports data-ready
// once a queued frame is present, ReadFrame pops the queue, WriteFrame
// records what the state machine sent.
type fakeDongle struct {
	mu        sync.Mutex
	queue     [][]byte
	written   [][]byte
	registers map[byte]byte
	execCount int
}

func newFakeDongle() *fakeDongle {
	return &fakeDongle{registers: make(map[byte]byte)}
}

func (f *fakeDongle) push(buf []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, buf)
}

func (f *fakeDongle) WriteRegister(addr, value byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registers[addr] = value
	return nil
}

func (f *fakeDongle) WriteCommand(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(payload) > 0 && payload[0] == 0xd9 {
		f.execCount++
	}
	return nil
}

func (f *fakeDongle) WriteFrame(buf []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	f.written = append(f.written, cp)
	return nil
}

func (f *fakeDongle) ReadFrame() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	buf := f.queue[0]
	f.queue = f.queue[1:]
	return buf, nil
}

func (f *fakeDongle) ReadState() (byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return usbhid.StateIdle, false, nil
	}
	return usbhid.StateDataReady, true, nil
}

func (f *fakeDongle) ReadConfigFlash(addr uint16, length int) ([]byte, error) {
	return make([]byte, length), nil
}

func (f *fakeDongle) Close() error { return nil }

func (f *fakeDongle) lastWritten() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.written) == 0 {
		return nil
	}
	return f.written[len(f.written)-1]
}

func sampleCurrentFrame(deviceID types.DeviceId) []byte {
	obs := types.Observation{
		Timestamp:   time.Date(2026, time.March, 1, 8, 30, 0, 0, time.UTC),
		TempIndoor:  21.5,
		TempOutdoor: 12.3,
		HumidityIndoor:  45,
		HumidityOutdoor: 60,
		WindDirection: types.WindDirectionInvalid,
		GustDirection: types.WindDirectionInvalid,
		WeatherState:  types.WeatherStateCloudy,
	}
	return frame.EncodeCurrent(deviceID, obs)
}

func TestRunDecodesCurrentWeatherIntoSlots(t *testing.T) {
	dongle := newFakeDongle()
	dongle.push(sampleCurrentFrame(0x42))

	ctrl := transceiver.New(dongle, types.RegionUS)
	slots := &Slots{}
	obsCh := make(chan types.Observation, 1)
	loop := New(dongle, ctrl, slots, testOptions(), obsCh)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go loop.Run(ctx, &wg)
	wg.Wait()

	obs, ok := slots.Observation()
	if !ok {
		t.Fatal("expected an observation to have been decoded")
	}
	if obs.TempOutdoor < 12.2 || obs.TempOutdoor > 12.4 {
		t.Errorf("TempOutdoor = %v, want ~12.3", obs.TempOutdoor)
	}
	if slots.DeviceID() != 0x42 {
		t.Errorf("DeviceID = %#x, want 0x42", slots.DeviceID())
	}

	select {
	case got := <-obsCh:
		if got.TempIndoor != obs.TempIndoor {
			t.Errorf("distributed observation mismatch: %v vs %v", got, obs)
		}
	default:
		t.Error("expected the observation channel to receive a copy")
	}
}

func TestRunRequestsSetTimeBeforePendingConfig(t *testing.T) {
	dongle := newFakeDongle()
	dongle.push(sampleCurrentFrame(0x7))

	ctrl := transceiver.New(dongle, types.RegionUS)
	slots := &Slots{}
	slots.WithPending(func(p *types.PendingWrites) {
		p.SetTimeRequested = true
		cfg := types.Config{LCDContrast: 4}
		p.PendingConfig = &cfg
	})

	loop := New(dongle, ctrl, slots, testOptions(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go loop.Run(ctx, &wg)
	wg.Wait()

	got := dongle.lastWritten()
	if got == nil {
		t.Fatal("expected a write_frame call")
	}
	if got[3] != byte(frame.RequestSendTime) {
		t.Errorf("action byte = %#02x, want RequestSendTime (SetTime must precede queued config writes)", got[3])
	}
}

func TestRunRearmsOnSyncLoss(t *testing.T) {
	dongle := newFakeDongle() // queue stays empty: ReadState never reports ready
	ctrl := transceiver.New(dongle, types.RegionUS)
	slots := &Slots{}
	loop := New(dongle, ctrl, slots, testOptions(), nil)
	loop.pollWindow = 5 * time.Millisecond
	loop.pollInterval = 1 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go loop.Run(ctx, &wg)
	wg.Wait()

	dongle.mu.Lock()
	execCount := dongle.execCount
	dongle.mu.Unlock()
	if execCount == 0 {
		t.Error("expected Execute to be called to re-arm reception on sync loss")
	}
}

// TestRunSyncLossSetsNoContactThenClearsOnSuccess exercises the
// documented sync-loss scenario: an extended run of data-not-ready polls
// latches health to errs.ErrNoContact, and the next successfully decoded
// frame clears it back to nil.
func TestRunSyncLossSetsNoContactThenClearsOnSuccess(t *testing.T) {
	dongle := newFakeDongle() // queue stays empty: ReadState never reports ready
	ctrl := transceiver.New(dongle, types.RegionUS)
	slots := &Slots{}
	loop := New(dongle, ctrl, slots, testOptions(), nil)
	loop.pollWindow = 5 * time.Millisecond
	loop.pollInterval = 1 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	var firstRun sync.WaitGroup
	firstRun.Add(1)
	go loop.Run(ctx, &firstRun)

	deadline := time.Now().Add(200 * time.Millisecond)
	for slots.Health() != errs.ErrNoContact && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if got := slots.Health(); got != errs.ErrNoContact {
		t.Fatalf("Health() = %v, want errs.ErrNoContact after sustained sync loss", got)
	}

	dongle.push(sampleCurrentFrame(0x42))
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	var wg sync.WaitGroup
	wg.Add(1)
	go loop.Run(ctx2, &wg)
	deadline2 := time.Now().Add(150 * time.Millisecond)
	for slots.Health() != nil && time.Now().Before(deadline2) {
		time.Sleep(time.Millisecond)
	}
	cancel2()
	wg.Wait()

	if got := slots.Health(); got != nil {
		t.Errorf("Health() = %v, want nil once a frame is decoded successfully", got)
	}
}

// TestRunTransportFaultBudgetExhaustionSetsDegraded exercises the
// distinct Degraded health state: a dongle whose ReadState always errors
// burns through the configured retry budget and latches health to
// errs.ErrDegraded, not errs.ErrNoContact — the two sentinels mark
// different failure paths (transport read/write faults on an
// otherwise-synced link vs. no frame arriving at all).
func TestRunTransportFaultBudgetExhaustionSetsDegraded(t *testing.T) {
	dongle := &erroringDongle{fakeDongle: newFakeDongle()}
	ctrl := transceiver.New(dongle, types.RegionUS)
	slots := &Slots{}
	opts := testOptions()
	opts.MaxTries = 2
	loop := New(dongle, ctrl, slots, opts, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go loop.Run(ctx, &wg)
	wg.Wait()

	if got := slots.Health(); got != errs.ErrDegraded {
		t.Errorf("Health() = %v, want errs.ErrDegraded once the transport fault budget is exhausted", got)
	}
}

type erroringDongle struct {
	*fakeDongle
}

func (e *erroringDongle) ReadState() (byte, bool, error) {
	return usbhid.StateIdle, false, errs.NewTransportFault("ReadState", fmt.Errorf("simulated read failure"))
}

func TestRunPushesPendingConfigAfterGetConfigDiffers(t *testing.T) {
	dongle := newFakeDongle()
	onWireFrame, onWireCfg := encodeSampleConfigFrame(0x9)
	dongle.push(onWireFrame)

	ctrl := transceiver.New(dongle, types.RegionUS)
	slots := &Slots{}
	pending := onWireCfg
	pending.LCDContrast = 8 // differs from what the console just reported
	slots.WithPending(func(p *types.PendingWrites) { p.PendingConfig = &pending })

	loop := New(dongle, ctrl, slots, testOptions(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go loop.Run(ctx, &wg)
	wg.Wait()

	got := dongle.lastWritten()
	if got == nil {
		t.Fatal("expected a write_frame call")
	}
	if got[3] != byte(frame.RequestSetConfig) {
		t.Errorf("action byte = %#02x, want RequestSetConfig since the decoded config still differs from pending", got[3])
	}
}

func encodeSampleConfigFrame(deviceID types.DeviceId) ([]byte, types.Config) {
	cfg := types.Config{
		LCDContrast:        5,
		TempIndoorMin:      10.0,
		TempIndoorMax:      30.0,
		TempOutdoorMin:     -10.0,
		TempOutdoorMax:     40.0,
		HumidityIndoorMin:  20,
		HumidityIndoorMax:  80,
		HumidityOutdoorMin: 20,
		HumidityOutdoorMax: 80,
	}
	buf := frame.EncodeConfig(deviceID, cfg)
	buf[3] = byte(frame.ResponseGetConfig) // the console's GetConfig reply type
	return buf, cfg
}
