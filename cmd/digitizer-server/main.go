// Command digitizer-server is the composition root for the digitizer
// packet-ingest pipeline: it accepts raw byte-stream connections from
// digitizer devices, feeds each through a per-device device.PacketBuffer,
// and fans decoded records out to local subscribers over Prometheus
// metrics/logging. Device discovery and the command/control channel are
// out of scope (spec.md 1); this binary's TCP listener is the thin, real
// stand-in for whatever handoff a deployment's discovery layer performs.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/go-ampio-server/internal/device"
	"github.com/kstaniek/go-ampio-server/internal/event"
	"github.com/kstaniek/go-ampio-server/internal/metrics"
	"github.com/kstaniek/go-ampio-server/internal/packet"
	"github.com/kstaniek/go-ampio-server/internal/serial"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("digitizer-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel, cfg.logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	reg := packet.NewRegistry()

	var pipelinesMu sync.Mutex
	pipelines := make(map[uint32]*devicePipeline)

	mgr := device.NewManager(reg, func(pb *device.PacketBuffer) {
		deviceID := pb.DeviceID()
		dp := buildPipeline(ctx, reg, pb, cfg, func(batch []event.Event) {
			logParsedBatch(l, deviceID, batch)
		})
		pipelinesMu.Lock()
		pipelines[pb.DeviceID()] = dp
		pipelinesMu.Unlock()
	})

	go sweepReassembly(ctx, cfg.reassemblySweep, func() []*devicePipeline {
		pipelinesMu.Lock()
		defer pipelinesMu.Unlock()
		out := make([]*devicePipeline, 0, len(pipelines))
		for _, dp := range pipelines {
			out = append(out, dp)
		}
		return out
	})

	if cfg.serialPort != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runSerialIngest(ctx, cfg, mgr, &pipelinesMu, pipelines, l)
		}()
	} else {
		ln, err := net.Listen("tcp", cfg.listenAddr)
		if err != nil {
			l.Error("listen_failed", "addr", cfg.listenAddr, "error", err)
			return
		}
		l.Info("tcp_listen", "addr", ln.Addr().String())

		go func() { <-ctx.Done(); _ = ln.Close() }()
		go acceptLoop(ctx, ln, mgr, &pipelinesMu, pipelines, l, &wg)

		go func() {
			if !cfg.mdnsEnable {
				return
			}
			_, port, err := net.SplitHostPort(ln.Addr().String())
			if err != nil {
				l.Warn("mdns_port_parse_failed", "error", err)
				return
			}
			var portNum int
			_, _ = fmt.Sscanf(port, "%d", &portNum)
			cleanup, err := startMDNS(ctx, cfg, portNum)
			if err != nil {
				l.Warn("mdns_start_failed", "error", err)
				return
			}
			l.Info("mdns_started", "service", mdnsServiceType, "port", portNum)
			go func() { <-ctx.Done(); cleanup() }()
		}()
	}

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		httpSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = httpSrv.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()

	pipelinesMu.Lock()
	for _, dp := range pipelines {
		dp.close()
	}
	pipelinesMu.Unlock()
	wg.Wait()
}

// acceptLoop accepts connections and, for each, peeks the 16-byte wire
// header to learn the device id before handing the connection to
// device.Manager - the only device-identification logic this stand-in
// performs; a real discovery layer would supply the device id out of band.
func acceptLoop(ctx context.Context, ln net.Listener, mgr *device.Manager, pipelinesMu *sync.Mutex, pipelines map[uint32]*devicePipeline, l *slog.Logger, wg *sync.WaitGroup) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			l.Warn("accept_error", "error", err)
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			handleConn(ctx, conn, mgr, pipelinesMu, pipelines, l)
		}()
	}
}

// runSerialIngest is the serial-link counterpart to acceptLoop/handleConn: a
// serial port carries exactly one digitizer, identified up front by
// --device-id rather than learned from a wire header, and reopens the port
// on read error until the process is shutting down.
func runSerialIngest(ctx context.Context, cfg *appConfig, mgr *device.Manager, pipelinesMu *sync.Mutex, pipelines map[uint32]*devicePipeline, l *slog.Logger) {
	connLogger := l.With("device_id", cfg.deviceID, "serial_port", cfg.serialPort)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		port, err := serial.Open(cfg.serialPort, cfg.serialBaud, cfg.serialReadTimeout)
		if err != nil {
			connLogger.Error("serial_open_failed", "error", err)
			return
		}
		connLogger.Info("serial_connected")

		pb := mgr.Connect(cfg.deviceID)
		if err := pb.ProcessData(port); err != nil {
			connLogger.Warn("serial_stream_error", "error", err)
		}
		_ = port.Close()
		connLogger.Info("serial_disconnected")

		if _, ok := mgr.Disconnect(cfg.deviceID); ok {
			pipelinesMu.Lock()
			if p, ok := pipelines[cfg.deviceID]; ok {
				delete(pipelines, cfg.deviceID)
				p.close()
			}
			pipelinesMu.Unlock()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// logParsedBatch is the default, always-on OnParsed subscriber: the thin,
// real stand-in for whatever downstream system (GUI panel, recorder,
// analysis pipeline) consumes a device's parsed records in a full
// deployment (spec.md 1's GUI panels are out of scope here). It logs one
// summary line per flushed batch rather than the deployment-specific
// consumer the spec leaves unspecified.
func logParsedBatch(l *slog.Logger, deviceID uint32, batch []event.Event) {
	errs := 0
	for _, e := range batch {
		if e.Kind == event.KindParseError {
			errs++
		}
	}
	l.Debug("parsed_batch", "device_id", deviceID, "count", len(batch), "errors", errs)
}

func handleConn(ctx context.Context, conn net.Conn, mgr *device.Manager, pipelinesMu *sync.Mutex, pipelines map[uint32]*devicePipeline, l *slog.Logger) {
	defer conn.Close()
	r := bufio.NewReaderSize(conn, 64*1024)
	head, err := r.Peek(packet.HeaderSize)
	if err != nil {
		l.Warn("conn_header_peek_failed", "remote", conn.RemoteAddr().String(), "error", err)
		return
	}
	deviceID := packet.DecodeHeader(head).DeviceID
	connLogger := l.With("device_id", deviceID, "remote", conn.RemoteAddr().String())

	pb := mgr.Connect(deviceID)
	connLogger.Info("device_connected")

	if err := pb.ProcessData(r); err != nil {
		connLogger.Warn("device_stream_error", "error", err)
	}
	connLogger.Info("device_disconnected")

	if _, ok := mgr.Disconnect(deviceID); ok {
		pipelinesMu.Lock()
		if p, ok := pipelines[deviceID]; ok {
			delete(pipelines, deviceID)
			p.close()
		}
		pipelinesMu.Unlock()
	}
}
