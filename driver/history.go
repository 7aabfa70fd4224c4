package driver

import (
	"time"

	"github.com/google/uuid"

	"github.com/matthewwall/weewx-ws28xx/internal/types"
)

// StartCachingHistory arms the protocol state machine's history-catchup
// path: once the worker next sees a Current Weather reply with nothing
// higher-priority pending, it starts walking the console's archive ring
// with rtGetHistory until a History reply's ring pointers (latest and
// this index) are equal. since, if
// non-nil, is recorded for progress reporting only — the simplified
// history frame this driver decodes carries no per-record selection by
// timestamp, so filtering by since is left to the caller reading
// GetHistoryCacheRecords. numRecords, if > 0, bounds how many records
// GetUncachedHistoryCount treats as "wanted."
func (d *Driver) StartCachingHistory(since *time.Time, numRecords int) {
	id := uuid.NewString()
	d.slots.WithPending(func(p *types.PendingWrites) {
		p.HistoryCatchup = true
		p.HistoryCatchupID = id
		p.HistoryWant = numRecords
		if since != nil {
			p.HistorySince = *since
		}
	})
}

// StopCachingHistory disarms the history-catchup path; any records
// already decoded remain in the cache.
func (d *Driver) StopCachingHistory() {
	d.slots.WithPending(func(p *types.PendingWrites) { p.ClearHistory() })
}

// GetHistoryCacheRecords returns a copy of the accumulated history
// cache in arrival order (spec.md §5's arrival-order guarantee); after the
// ring wraps, a later record can carry a lower ring index.
func (d *Driver) GetHistoryCacheRecords() []types.HistoryRecord {
	return d.slots.HistorySnapshot()
}

// ClearHistoryCache empties the accumulated history cache without
// affecting whether catchup is currently armed.
func (d *Driver) ClearHistoryCache() {
	d.slots.ClearHistory()
}

// GetNumHistoryScanned reports how many archive records have been
// decoded into the cache since it was last cleared.
func (d *Driver) GetNumHistoryScanned() int {
	return len(d.slots.HistorySnapshot())
}

// GetUncachedHistoryCount reports how many of the records requested by
// the last StartCachingHistory call have not yet been scanned. Zero
// means either catchup is unbounded (numRecords was 0) or has caught up
// to what was asked for.
func (d *Driver) GetUncachedHistoryCount() int {
	want := d.pendingHistoryWant()
	if want <= 0 {
		return 0
	}
	scanned := d.GetNumHistoryScanned()
	if scanned >= want {
		return 0
	}
	return want - scanned
}

// GetNextHistoryIndex returns the ring index the worker will request
// next, i.e. one past the index of the most recently cached record.
func (d *Driver) GetNextHistoryIndex() (types.HistoryIndex, bool) {
	last, ok := d.latestCachedIndex()
	if !ok {
		return 0, false
	}
	return last.Next(), true
}

// GetLatestHistoryIndex returns the console's current archive write
// pointer (LatestHistoryIndex), decoded from the most recent History
// frame header — the console's own counter, not a derivative of how
// much this driver happens to have scanned.
func (d *Driver) GetLatestHistoryIndex() (types.HistoryIndex, bool) {
	return d.slots.HistoryLatestIdx()
}

func (d *Driver) latestCachedIndex() (types.HistoryIndex, bool) {
	recs := d.slots.HistorySnapshot()
	if len(recs) == 0 {
		return 0, false
	}
	return recs[len(recs)-1].Index, true
}

func (d *Driver) pendingHistoryWant() int {
	var want int
	d.slots.WithPending(func(p *types.PendingWrites) { want = p.HistoryWant })
	return want
}
