package imagefetch

import (
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	progressMinInterval  = 50 * time.Millisecond
	progressHeartbeat    = 400 * time.Millisecond
	progressMinBytes     = 256 << 10
	progressMinPercent   = 1
	progressForcePercent = 5
)

// throttle decides which downloading events are worth publishing. A large
// download produces thousands of reads; the UI only needs a few updates a
// second.
type throttle struct {
	clock clockwork.Clock

	emitted    bool
	lastAt     time.Time
	lastPct    int
	lastBytes  uint64
	lastTotal  uint64
	totalKnown bool
}

func newThrottle(c clockwork.Clock) *throttle { return &throttle{clock: c} }

// allow reports whether an event for this sample should be published and
// records it if so.
func (t *throttle) allow(pct int, downloaded uint64, total *uint64) bool {
	now := t.clock.Now()
	if !t.emitted || t.decide(now, pct, downloaded, total) {
		t.emitted = true
		t.lastAt = now
		t.lastPct = pct
		t.lastBytes = downloaded
		t.totalKnown = total != nil
		if total != nil {
			t.lastTotal = *total
		}
		return true
	}
	return false
}

func (t *throttle) decide(now time.Time, pct int, downloaded uint64, total *uint64) bool {
	elapsed := now.Sub(t.lastAt)
	pctDelta := pct - t.lastPct
	var bytesDelta uint64
	if downloaded > t.lastBytes {
		bytesDelta = downloaded - t.lastBytes
	}
	totalChanged := (total != nil) != t.totalKnown || (total != nil && *total != t.lastTotal)

	switch {
	case pctDelta >= progressForcePercent:
		return true
	case pctDelta >= progressMinPercent && elapsed >= progressMinInterval:
		return true
	case bytesDelta >= progressMinBytes && elapsed >= progressMinInterval:
		return true
	case totalChanged:
		return true
	}
	return elapsed >= progressHeartbeat
}

// percent returns downloaded as a whole percentage of total, or 0 when the
// total is unknown.
func percent(downloaded uint64, total *uint64) int {
	if total == nil || *total == 0 {
		return 0
	}
	p := downloaded * 100 / *total
	if p > 100 {
		p = 100
	}
	return int(p)
}
