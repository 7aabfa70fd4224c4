// Package service runs the worker goroutine that owns the USB
// transport exclusively (spec.md §5): poll, read, decode, advance the
// protocol state machine, write, sleep — forever, until cancelled.
package service

import (
	"context"
	"sync"
	"time"

	"github.com/matthewwall/weewx-ws28xx/internal/config"
	"github.com/matthewwall/weewx-ws28xx/internal/errs"
	"github.com/matthewwall/weewx-ws28xx/internal/frame"
	"github.com/matthewwall/weewx-ws28xx/internal/log"
	"github.com/matthewwall/weewx-ws28xx/internal/protocol"
	"github.com/matthewwall/weewx-ws28xx/internal/transceiver"
	"github.com/matthewwall/weewx-ws28xx/internal/types"
	"github.com/matthewwall/weewx-ws28xx/internal/usbhid"
)

// readStatePoll and readStateWindow are the fixed cadence spec.md §4.5
// names for the read_state retry loop: not configurable, unlike the
// comm interval below.
const (
	readStatePoll   = 200 * time.Millisecond
	readStateWindow = 10 * time.Second
	syncLossRetries = 3
)

// Slots is the mutex-guarded shared state the façade reads and the
// worker writes. Never locked across a USB transfer (spec.md §5's
// concurrency rule): every method below takes the lock, copies or
// mutates, and releases before the next transport call.
type Slots struct {
	mu sync.Mutex

	state          types.TransceiverState
	deviceID       types.DeviceId
	observation    types.Observation
	hasObservation bool
	config         types.Config
	hasConfig      bool
	history        []types.HistoryRecord
	pending        types.PendingWrites
	health         error // nil, errs.ErrNoContact, errs.ErrDegraded, or a raw TransportFault

	historyLatestIdx    types.HistoryIndex
	hasHistoryLatestIdx bool
}

// Observation returns the most recently decoded Current Weather snapshot.
func (s *Slots) Observation() (types.Observation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.observation, s.hasObservation
}

// ConfigSnapshot returns the most recently decoded console Config.
func (s *Slots) ConfigSnapshot() (types.Config, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config, s.hasConfig
}

// HistorySnapshot returns a copy of the accumulated history cache.
func (s *Slots) HistorySnapshot() []types.HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.HistoryRecord, len(s.history))
	copy(out, s.history)
	return out
}

// ClearHistory empties the accumulated history cache.
func (s *Slots) ClearHistory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

func (s *Slots) appendHistory(recs []types.HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, recs...)
}

// HistoryLatestIdx returns the console's current archive write pointer
// (LatestHistoryIndex), decoded from the most recent History frame
// header — not an approximation derived from what's been cached.
func (s *Slots) HistoryLatestIdx() (types.HistoryIndex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historyLatestIdx, s.hasHistoryLatestIdx
}

func (s *Slots) setHistoryLatestIdx(idx types.HistoryIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyLatestIdx, s.hasHistoryLatestIdx = idx, true
}

func (s *Slots) setObservation(o types.Observation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observation, s.hasObservation = o, true
}

func (s *Slots) setConfig(c types.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config, s.hasConfig = c, true
}

// Health returns nil when the last cycle succeeded, or otherwise the most
// recent transport fault, errs.ErrNoContact, or errs.ErrDegraded once the
// transport fault budget is exhausted.
func (s *Slots) Health() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.health
}

// State returns the transceiver's current driven state.
func (s *Slots) State() types.TransceiverState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// DeviceID returns the currently adopted device id, zero if unpaired.
func (s *Slots) DeviceID() types.DeviceId {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceID
}

func (s *Slots) setHealth(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = err
}

func (s *Slots) setState(st types.TransceiverState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *Slots) setDeviceID(id types.DeviceId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceID = id
}

// WithPending calls f with a pointer to the pending writes while holding
// the slots' mutex; f may mutate them. The worker re-reads them fresh
// every cycle through this same method.
func (s *Slots) WithPending(f func(*types.PendingWrites)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.pending)
}

// SeedDeviceID adopts a device id recovered from the dongle's EEPROM
// before the worker loop starts, so a console paired in a previous run
// is immediately reported as paired rather than waiting for its next
// Current Weather transmission.
func (s *Slots) SeedDeviceID(id types.DeviceId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deviceID = id
	if id.Valid() {
		s.state = types.StatePaired
	}
}

// Loop is the worker: one goroutine, one exclusive owner of dongle.
type Loop struct {
	dongle usbhid.DongleLink
	ctrl   *transceiver.Controller
	dedup  *protocol.Dedup
	slots  *Slots

	maxTries     int
	sleepLong    time.Duration
	sleepShort   time.Duration
	pollInterval time.Duration
	pollWindow   time.Duration

	observationCh     chan types.Observation
	transportFailures int

	// historyLatestIdx/historyThisIdx are the ring pointers from the most
	// recently decoded History frame, carried forward across cycles so
	// the ResponseGetCurrent catchup decision (and the health/progress
	// façade) still has them after a cycle that wasn't itself a History
	// reply. Both zero (equal) before the first History frame arrives.
	historyLatestIdx types.HistoryIndex
	historyThisIdx   types.HistoryIndex
}

// New constructs a Loop. observationCh, if non-nil, receives a copy of
// every decoded Current Weather snapshot — the façade's equivalent of
// the teacher's ReadingDistributor channel. The inter-frame sleep
// cadence (380ms then 200ms by default) comes from opts.CommInterval.
func New(dongle usbhid.DongleLink, ctrl *transceiver.Controller, slots *Slots, opts config.Options, observationCh chan types.Observation) *Loop {
	return &Loop{
		dongle:        dongle,
		ctrl:          ctrl,
		dedup:         protocol.NewDedup(),
		slots:         slots,
		maxTries:      opts.MaxTries,
		sleepLong:     opts.CommInterval[0],
		sleepShort:    opts.CommInterval[1],
		pollInterval:  readStatePoll,
		pollWindow:    readStateWindow,
		observationCh: observationCh,
	}
}

// Run drives the poll/read/decode/write cycle until ctx is cancelled.
// Callers launch this with `go`, mirroring the teacher's GetLoopPackets
// goroutine shape: a context-checked for/select wrapping one cycle.
func (l *Loop) Run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	log.Info("starting transceiver service loop")

	l.slots.setState(types.StateIdle)
	syncLossCount := 0

	for {
		select {
		case <-ctx.Done():
			log.Info("service loop: cancellation received, shutting down")
			return
		default:
		}

		ready, err := l.pollReadState(ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			l.backoffTransportFault(ctx, err)
			continue
		}
		if !ready {
			syncLossCount++
			log.Warnw("service loop: no data-ready within poll window", "attempt", syncLossCount)
			if syncLossCount >= syncLossRetries {
				l.slots.setHealth(errs.ErrNoContact)
				syncLossCount = 0
			}
			if rearmErr := l.ctrl.Execute(); rearmErr != nil {
				l.backoffTransportFault(ctx, rearmErr)
			}
			continue
		}
		syncLossCount = 0
		l.slots.setHealth(nil)
		l.transportFailures = 0

		if err := l.runCycle(ctx); err != nil {
			if errs.IsCodecFaultKind(err, errs.CodecBadLength) ||
				errs.IsCodecFaultKind(err, errs.CodecBadChecksum) ||
				errs.IsCodecFaultKind(err, errs.CodecUnknownResponseType) {
				log.Warnw("service loop: discarding malformed frame", "error", err)
			} else {
				l.backoffTransportFault(ctx, err)
				continue
			}
		}

		l.sleep(ctx, l.sleepLong)
		l.sleep(ctx, l.sleepShort)
	}
}

// pollReadState retries ReadState every l.pollInterval until a data-ready
// state is observed or l.pollWindow elapses.
func (l *Loop) pollReadState(ctx context.Context) (bool, error) {
	deadline := time.Now().Add(l.pollWindow)
	for time.Now().Before(deadline) {
		_, ready, err := l.dongle.ReadState()
		if err != nil {
			return false, err
		}
		if ready {
			return true, nil
		}
		select {
		case <-ctx.Done():
			return false, context.Canceled
		case <-time.After(l.pollInterval):
		}
	}
	return false, nil
}

// runCycle reads one frame, decodes it, applies it to Slots, advances
// the protocol state machine, and writes the next request.
func (l *Loop) runCycle(ctx context.Context) error {
	buf, err := l.dongle.ReadFrame()
	if err != nil {
		return err
	}
	if len(buf) < 4 {
		return errs.NewCodecFault(errs.CodecBadLength, "frame shorter than header")
	}

	now := time.Now()
	if l.dedup.Seen(buf, now) {
		return nil
	}

	resp := frame.ResponseType(buf[3])
	var decodedConfig *types.Config

	switch resp {
	case frame.ResponseGetCurrent:
		obs, id, err := frame.DecodeCurrent(buf)
		if err != nil {
			return err
		}
		l.slots.setObservation(obs)
		l.slots.setDeviceID(id)
		l.slots.setState(types.StatePaired)
		if l.observationCh != nil {
			select {
			case l.observationCh <- obs:
			default:
			}
		}

	case frame.ResponseGetConfig:
		cfg, id, err := frame.DecodeConfig(buf)
		if err != nil {
			return err
		}
		l.slots.setConfig(cfg)
		l.slots.setDeviceID(id)
		decodedConfig = &cfg
		l.slots.WithPending(func(p *types.PendingWrites) {
			if p.PendingConfig != nil && p.PendingConfig.Equal(cfg) {
				p.ClearConfig()
			}
		})

	case frame.ResponseGetHistory:
		recs, id, latestIdx, thisIdx, err := frame.DecodeHistory(buf)
		if err != nil {
			return err
		}
		l.slots.setDeviceID(id)
		l.slots.appendHistory(recs)
		l.slots.setHistoryLatestIdx(latestIdx)
		l.historyLatestIdx, l.historyThisIdx = latestIdx, thisIdx

	case frame.ResponseWriteAck:
		l.slots.WithPending(func(p *types.PendingWrites) { p.ClearSetTime() })

	case frame.ResponseConsoleRequestsSetConfig, frame.ResponseConsoleRequestsSetTime:
		id := types.DeviceId(uint16(buf[1])<<8 | uint16(buf[2]))
		l.slots.setDeviceID(id)
		l.slots.setState(types.StatePaired)

	default:
		return errs.NewCodecFault(errs.CodecUnknownResponseType, resp.String())
	}

	var pendingCopy types.PendingWrites
	l.slots.WithPending(func(p *types.PendingWrites) { pendingCopy = *p })

	_, seenHistory := l.slots.HistoryLatestIdx()
	next := protocol.Next(resp, protocol.Inputs{
		DeviceID:      l.slots.DeviceID(),
		Pending:       &pendingCopy,
		Now:           now,
		DecodedConfig: decodedConfig,
		HistoryDone:   seenHistory && l.historyLatestIdx == l.historyThisIdx,
		LatestIdx:     l.historyLatestIdx,
		ThisIdx:       l.historyThisIdx,
	})

	return l.dongle.WriteFrame(padFrame(next))
}

// padFrame extends a short write to the fixed 273-byte frame the USB
// transport requires.
func padFrame(buf []byte) []byte {
	if len(buf) >= usbhid.FrameSize {
		return buf[:usbhid.FrameSize]
	}
	out := make([]byte, usbhid.FrameSize)
	copy(out, buf)
	return out
}

// backoffTransportFault records a transport error and waits an
// doubling delay (200ms, 400ms, then 800ms for every later attempt)
// before the loop retries. Once the retry budget (l.maxTries) is exhausted
// within an unbroken run of failures, health is latched to ErrDegraded
// rather than the raw transport error — the loop keeps running and
// retrying; spec.md §7 calls for surfacing Degraded, not terminating the
// process. ErrNoContact is set only by the sync-loss recovery path in
// Run; a transport fault during that recovery also comes through here.
func (l *Loop) backoffTransportFault(ctx context.Context, err error) {
	l.transportFailures++
	log.Errorw("service loop: transport fault", "error", err, "attempt", l.transportFailures)

	if l.transportFailures > l.maxTries {
		l.slots.setHealth(errs.ErrDegraded)
	} else {
		l.slots.setHealth(err)
	}

	delay := 200 * time.Millisecond
	for i := 1; i < l.transportFailures && i < 3; i++ {
		delay *= 2
	}
	l.sleep(ctx, delay)
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
