package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kstaniek/go-ampio-server/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"framed", snap.Framed,
					"decoded", snap.Decoded,
					"malformed", snap.Malformed,
					"decode_errors", snap.DecodeErrors,
					"pairs_matched", snap.PairsMatched,
					"pairs_rtc_mismatch", snap.PairsRtcMismatch,
					"reassembly_completed", snap.ReassemblyCompleted,
					"reassembly_timeouts", snap.ReassemblyTimeouts,
					"channel_dropped", snap.ChannelDropped,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
