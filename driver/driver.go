// Package driver is the public façade over the transceiver service
// worker (spec.md §4.6): the single exported surface a host application
// programs against. Every method is safe to call from any goroutine; the
// USB transport itself is only ever touched by the worker goroutine
// started in Open.
package driver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/matthewwall/weewx-ws28xx/internal/config"
	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/log"
	"github.com/matthewwall/weewx-ws28xx/internal/service"
	"github.com/matthewwall/weewx-ws28xx/internal/transceiver"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
	"github.com/matthewwall/weewx-ws28xx/internal/usbhid"
)

// Driver is a running transceiver: one worker goroutine plus the shared
// slots and pending-write queue the façade methods below read and write.
type Driver struct {
	dongle usbhid.DongleLink
	opts   config.Options
	info   types.TransceiverInfo

	slots *service.Slots
	loop  *service.Loop

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// observationCh, the obsCh argument of Open/OpenWith when non-nil,
	// receives a copy of every decoded Current Weather
	// snapshot — a host can forward these onto its own pipeline without
	// polling CurrentObservation.
	observationCh chan types.Observation
}

// Open enumerates the dongle over USB, performs the one-shot AX5051
// bring-up, and starts the service worker. obsCh may be nil.
func Open(opts config.Options, obsCh chan types.Observation) (*Driver, error) {
	dongle, err := usbhid.Open()
	if err != nil {
		return nil, err
	}
	d, err := OpenWith(dongle, opts, obsCh)
	if err != nil {
		dongle.Close()
		return nil, err
	}
	return d, nil
}

// OpenWith wires a Driver around an already-constructed DongleLink,
// letting tests substitute a fake transport for the real USB device.
func OpenWith(dongle usbhid.DongleLink, opts config.Options, obsCh chan types.Observation) (*Driver, error) {
	ctrl := transceiver.New(dongle, opts.Frequency)
	info, err := ctrl.Init()
	if err != nil {
		return nil, err
	}

	slots := &service.Slots{}
	slots.SeedDeviceID(info.DeviceID)

	loop := service.New(dongle, ctrl, slots, opts, obsCh)

	d := &Driver{
		dongle:        dongle,
		opts:          opts,
		info:          info,
		slots:         slots,
		loop:          loop,
		observationCh: obsCh,
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop.Run(ctx, &d.wg)

	return d, nil
}

// Close signals the worker to stop and waits for it to join, within the
// 1-second budget spec.md §5 requires, then releases the USB handle.
func (d *Driver) Close() error {
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		log.Warn("service worker did not join within 1s of shutdown")
	}

	return d.dongle.Close()
}

// CurrentObservation returns the most recently decoded Current Weather
// snapshot, or ok=false if none has arrived yet.
func (d *Driver) CurrentObservation() (types.Observation, bool) {
	return d.slots.Observation()
}

// GetConfig returns the most recently decoded console Config, or
// ok=false if none has arrived yet.
func (d *Driver) GetConfig() (types.Config, bool) {
	return d.slots.ConfigSnapshot()
}

// SetConfig validates cfg and queues it as the transceiver's next
// pending write. It does not block for the console to accept it; poll
// GetConfig to observe the write taking effect.
func (d *Driver) SetConfig(cfg types.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	id := uuid.NewString()
	d.slots.WithPending(func(p *types.PendingWrites) {
		p.PendingConfig = &cfg
		p.PendingConfigID = id
	})
	return nil
}

// SetInterval is a convenience over SetConfig that mutates only the
// archive interval, leaving every other field at its last known value.
func (d *Driver) SetInterval(minutes int) error {
	cfg, ok := d.GetConfig()
	if !ok {
		return fmt.Errorf("set_interval: %w", errs.ErrUnpaired)
	}
	cfg.HistoryInterval = types.HistoryIntervalFromMinutes(minutes)
	return d.SetConfig(cfg)
}

// SetTime queues a SendTime write with the host clock, sent on the next
// Current Weather reply.
func (d *Driver) SetTime() {
	id := uuid.NewString()
	d.slots.WithPending(func(p *types.PendingWrites) {
		p.SetTimeRequested = true
		p.SetTimeID = id
	})
}

// Pair blocks until the transceiver state reaches Paired or timeout
// elapses, returning errs.ErrTimeout on expiry. It never touches the USB
// transport directly — the worker goroutine already started by Open is
// the only path that ever sees the console's pairing handshake — Pair
// just observes the shared state transition.
func (d *Driver) Pair(ctx context.Context, timeout time.Duration) (types.DeviceId, error) {
	if d.TransceiverIsPaired() {
		return d.slots.DeviceID(), nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0, errs.ErrCancelled
		case <-deadline.C:
			return 0, errs.ErrTimeout
		case <-poll.C:
			if d.TransceiverIsPaired() {
				return d.slots.DeviceID(), nil
			}
		}
	}
}

// TransceiverIsPresent reports whether the dongle is still reachable
// over USB — false only once sync-loss recovery has exhausted its
// retry budget without success.
func (d *Driver) TransceiverIsPresent() bool {
	return d.slots.Health() != errs.ErrNoContact
}

// Health returns nil when the worker's last cycle succeeded, or otherwise
// the most recent transport fault (while still within the retry budget),
// errs.ErrNoContact (sync-loss recovery exhausted) or errs.ErrDegraded
// (transport fault budget exhausted on an otherwise-synced link) — the
// health query spec.md §7 calls for.
func (d *Driver) Health() error {
	return d.slots.Health()
}

// TransceiverIsPaired reports whether the console has adopted a device
// id and the state machine has observed it.
func (d *Driver) TransceiverIsPaired() bool {
	return d.slots.State() == types.StatePaired
}

// GetTransceiverSerial returns the dongle's own 14-digit serial number,
// read once at Open time.
func (d *Driver) GetTransceiverSerial() string { return d.info.Serial }

// GetTransceiverId returns the console's adopted device id, zero if
// unpaired.
func (d *Driver) GetTransceiverId() types.DeviceId { return d.slots.DeviceID() }
