// Package pair coordinates info/waveform packet pairs: it decodes both
// halves of a pair on the same worker and emits them together only when
// both succeed and agree on rtc. Grounded on original_source's
// ParserPairWorker<InfoT,WaveT> (single job queue, enqueuePairJob /
// enqueueSingleJob, processNext dispatch), rebuilt as a small
// workerpool-shaped fan-out so pair throughput scales with worker count
// like every other stage of the pipeline.
package pair

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kstaniek/go-ampio-server/internal/decoder"
	"github.com/kstaniek/go-ampio-server/internal/metrics"
	"github.com/kstaniek/go-ampio-server/internal/packet"
)

// ItemKind discriminates the variant populated in an emitted Item.
type ItemKind uint8

const (
	KindInfo ItemKind = iota
	KindWave
	KindError
)

// Item is one emission from the coordinator's output channel. Per spec.md
// 4.6, a successful pair is emitted as two consecutive items (KindInfo
// immediately followed by KindWave); a failed half or an rtc mismatch is
// emitted as one KindError item per affected half.
type Item[InfoT decoder.Record, WaveT decoder.Record] struct {
	Kind    ItemKind
	Info    InfoT
	Wave    WaveT
	Err     error
	ErrType packet.Type
}

// Job is an atomic unit of pair work. Exactly one of Info/Wave may be nil
// (an orphan single-half job); both present is the common paired case.
type Job struct {
	Info []byte
	Wave []byte
}

// Coordinator dispatches Jobs across n workers, strict round-robin, each
// worker owning its own InfoT and WaveT decoder instances so both halves
// of a job are always decoded by the same worker.
type Coordinator[InfoT decoder.Record, WaveT decoder.Record] struct {
	infoType packet.Type
	waveType packet.Type
	jobs     []chan Job
	out      chan Item[InfoT, WaveT]
	next     int
	group    *errgroup.Group
	cancel   context.CancelFunc
}

// New builds a Coordinator for the given info/wave type pair.
func New[InfoT decoder.Record, WaveT decoder.Record](
	ctx context.Context, n, queueDepth int,
	infoType, waveType packet.Type,
	newInfoDecoder func() *decoder.Decoder[InfoT],
	newWaveDecoder func() *decoder.Decoder[WaveT],
) *Coordinator[InfoT, WaveT] {
	if n < 1 {
		n = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	group, gctx := errgroup.WithContext(ctx)
	c := &Coordinator[InfoT, WaveT]{
		infoType: infoType,
		waveType: waveType,
		jobs:     make([]chan Job, n),
		out:      make(chan Item[InfoT, WaveT], queueDepth*n*2),
		group:    group,
		cancel:   cancel,
	}
	for i := 0; i < n; i++ {
		jobs := make(chan Job, queueDepth)
		c.jobs[i] = jobs
		infoDec := newInfoDecoder()
		waveDec := newWaveDecoder()
		group.Go(func() error {
			c.runWorker(gctx, infoDec, waveDec, jobs)
			return nil
		})
	}
	return c
}

func (c *Coordinator[InfoT, WaveT]) runWorker(ctx context.Context, infoDec *decoder.Decoder[InfoT], waveDec *decoder.Decoder[WaveT], jobs <-chan Job) {
	for {
		select {
		case job, ok := <-jobs:
			if !ok {
				return
			}
			c.process(infoDec, waveDec, job)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Coordinator[InfoT, WaveT]) process(infoDec *decoder.Decoder[InfoT], waveDec *decoder.Decoder[WaveT], job Job) {
	switch {
	case job.Info != nil && job.Wave != nil:
		c.processPair(infoDec, waveDec, job)
	case job.Info != nil:
		c.processSingleInfo(infoDec, job.Info)
	case job.Wave != nil:
		c.processSingleWave(waveDec, job.Wave)
	}
}

func (c *Coordinator[InfoT, WaveT]) processPair(infoDec *decoder.Decoder[InfoT], waveDec *decoder.Decoder[WaveT], job Job) {
	infoRec, infoErr := infoDec.Decode(job.Info)
	waveRec, waveErr := waveDec.Decode(job.Wave)
	if infoErr != nil || waveErr != nil {
		// Emit one ParseError per failed half so per-type failure counters
		// downstream stay consistent; discard the pair either way.
		if infoErr != nil {
			c.out <- Item[InfoT, WaveT]{Kind: KindError, Err: infoErr, ErrType: c.infoType}
		}
		if waveErr != nil {
			c.out <- Item[InfoT, WaveT]{Kind: KindError, Err: waveErr, ErrType: c.waveType}
		}
		return
	}
	if infoRec.Header().RTC != waveRec.Header().RTC {
		metrics.IncPairRtcMismatch()
		device := infoRec.Header().DeviceID
		c.out <- Item[InfoT, WaveT]{Kind: KindError, Err: packet.NewParseError(c.infoType, device, packet.ErrRtcMismatch), ErrType: c.infoType}
		c.out <- Item[InfoT, WaveT]{Kind: KindError, Err: packet.NewParseError(c.waveType, device, packet.ErrRtcMismatch), ErrType: c.waveType}
		return
	}
	metrics.IncPairMatched()
	c.out <- Item[InfoT, WaveT]{Kind: KindInfo, Info: infoRec}
	c.out <- Item[InfoT, WaveT]{Kind: KindWave, Wave: waveRec}
}

func (c *Coordinator[InfoT, WaveT]) processSingleInfo(infoDec *decoder.Decoder[InfoT], view []byte) {
	rec, err := infoDec.Decode(view)
	if err != nil {
		c.out <- Item[InfoT, WaveT]{Kind: KindError, Err: err, ErrType: c.infoType}
		return
	}
	c.out <- Item[InfoT, WaveT]{Kind: KindInfo, Info: rec}
}

func (c *Coordinator[InfoT, WaveT]) processSingleWave(waveDec *decoder.Decoder[WaveT], view []byte) {
	rec, err := waveDec.Decode(view)
	if err != nil {
		c.out <- Item[InfoT, WaveT]{Kind: KindError, Err: err, ErrType: c.waveType}
		return
	}
	c.out <- Item[InfoT, WaveT]{Kind: KindWave, Wave: rec}
}

func (c *Coordinator[InfoT, WaveT]) dispatch(job Job) {
	w := c.jobs[c.next]
	c.next = (c.next + 1) % len(c.jobs)
	w <- job
}

// EnqueuePair submits a matched pair as a single atomic job, guaranteeing
// both halves are decoded by the same worker.
func (c *Coordinator[InfoT, WaveT]) EnqueuePair(info, wave []byte) { c.dispatch(Job{Info: info, Wave: wave}) }

// EnqueueSingleInfo submits an orphan info-only slice (no matching
// waveform arrived in this batch).
func (c *Coordinator[InfoT, WaveT]) EnqueueSingleInfo(info []byte) { c.dispatch(Job{Info: info}) }

// EnqueueSingleWave submits an orphan waveform-only slice.
func (c *Coordinator[InfoT, WaveT]) EnqueueSingleWave(wave []byte) { c.dispatch(Job{Wave: wave}) }

// Output returns the coordinator's single output channel.
func (c *Coordinator[InfoT, WaveT]) Output() <-chan Item[InfoT, WaveT] { return c.out }

// Close drains pending jobs and waits for all workers to exit before
// closing the output channel.
func (c *Coordinator[InfoT, WaveT]) Close() {
	for _, j := range c.jobs {
		close(j)
	}
	_ = c.group.Wait()
	close(c.out)
}

// Cancel hard-stops all workers without draining pending jobs.
func (c *Coordinator[InfoT, WaveT]) Cancel() {
	c.cancel()
	_ = c.group.Wait()
	close(c.out)
}
