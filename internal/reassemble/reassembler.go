// Package reassemble combines fragmented SplitUpWaveform packets (begin /
// middle / end flags) into a single logical waveform record keyed by
// (channelId, rtc). Grounded on spec.md 4.7; there is no direct idle-timeout
// eviction analogue in the teacher or the rest of the pack, so Sweep's
// timer-driven eviction is built to spec.md's own 5-second default. The
// underlying map-of-buckets is a plain map guarded by a single sync.Mutex,
// keyed by (channelId, rtc).
package reassemble

import (
	"sync"
	"time"

	"github.com/kstaniek/go-ampio-server/internal/decoder"
	"github.com/kstaniek/go-ampio-server/internal/metrics"
	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// DefaultIdleTimeout is the default bucket eviction window (spec.md 4.7).
const DefaultIdleTimeout = 5 * time.Second

type bucketKey struct {
	channelID uint16
	rtc       uint64
}

type bucket struct {
	header     packet.Header
	decimation uint16
	fragments  [][]int16
	lastSeen   time.Time
}

// Reassembler holds in-flight split-waveform buckets for one device.
type Reassembler struct {
	mu          sync.Mutex
	buckets     map[bucketKey]*bucket
	idleTimeout time.Duration
}

// New builds a Reassembler. idleTimeout <= 0 selects DefaultIdleTimeout.
func New(idleTimeout time.Duration) *Reassembler {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &Reassembler{
		buckets:     make(map[bucketKey]*bucket),
		idleTimeout: idleTimeout,
	}
}

// Feed processes one decoded SplitUpWaveform fragment. A FullPacket
// (HasBegin and HasEnd both set) passes straight through. A HasEnd
// fragment completes its bucket: the returned record has its Samples
// formed from every stored fragment concatenated in arrival order,
// followed by this fragment's own samples, and ok is true. Any other
// fragment is stored and (zero-value, false) is returned.
func (r *Reassembler) Feed(rec decoder.WaveformRecord) (decoder.WaveformRecord, bool) {
	h := rec.Header()
	hasBegin := h.Flags&packet.FlagHasBegin != 0
	hasEnd := h.Flags&packet.FlagHasEnd != 0
	if hasBegin && hasEnd {
		return rec, true
	}

	key := bucketKey{channelID: h.ChannelID, rtc: h.RTC}
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = &bucket{header: h, decimation: rec.DecimationFactor}
		r.buckets[key] = b
	}
	b.lastSeen = r.now()
	b.fragments = append(b.fragments, rec.Samples)

	if !hasEnd {
		return decoder.WaveformRecord{}, false
	}

	merged := mergeSamples(b.fragments)
	delete(r.buckets, key)
	metrics.IncReassemblyCompleted()
	return decoder.NewWaveformRecord(b.header, b.decimation, merged), true
}

// Sweep evicts buckets that have been idle longer than the configured
// timeout, incrementing the reassembly-timeout metric for each. Intended
// to be called from a periodic ticker alongside the framer's flush timer.
func (r *Reassembler) Sweep() int {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for key, b := range r.buckets {
		if now.Sub(b.lastSeen) > r.idleTimeout {
			delete(r.buckets, key)
			metrics.IncReassemblyTimeout()
			evicted++
		}
	}
	return evicted
}

// nowFunc is overridden in tests to avoid real sleeps.
var nowFunc = time.Now

func (r *Reassembler) now() time.Time { return nowFunc() }

func mergeSamples(fragments [][]int16) []int16 {
	total := 0
	for _, f := range fragments {
		total += len(f)
	}
	merged := make([]int16, 0, total)
	for _, f := range fragments {
		merged = append(merged, f...)
	}
	return merged
}
