package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// appConfig is the fully-resolved configuration for one digitizer-server
// process. Shape (flags + env override table + validate) ported from
// cmd/can-server/config.go, re-scoped to the packet-ingest pipeline's knobs
// (spec.md 6: parser_pool_size, emit_interval_ms, reassembly_timeout_ms,
// batch_mode) and switched to spf13/pflag for POSIX/GNU-style long flags.
// There is no flag for the framer flush interval: nothing in this binary
// drives PacketBuffer.Tick, so a partial tail is framed only on the next read.
type appConfig struct {
	listenAddr string
	deviceID   uint32

	serialPort        string
	serialBaud        int
	serialReadTimeout time.Duration

	logFormat string
	logLevel  string
	logFile   string

	metricsAddr     string
	logMetricsEvery time.Duration

	poolSize       int
	poolQueueDepth int

	reassemblyTimeout time.Duration
	reassemblySweep   time.Duration

	emitInterval  time.Duration
	emitBatchSize int
	emitFastPath  bool

	hubBuffer int
	hubPolicy string

	mdnsEnable bool
	mdnsName   string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := pflag.String("listen", ":20100", "TCP listen address for digitizer connections")
	deviceID := pflag.Uint32("device-id", 1, "Device id of the digitizer read from --serial-port, also advertised in mDNS TXT metadata; TCP connections on --listen are identified by their wire header")
	serialPort := pflag.String("serial-port", "", "Serial device path (e.g., /dev/ttyUSB0); when set, the digitizer is read from this port instead of --listen")
	serialBaud := pflag.Int("serial-baud", 115200, "Serial baud rate")
	serialReadTimeout := pflag.Duration("serial-read-timeout", 500*time.Millisecond, "Serial read timeout per Read call")
	logFormat := pflag.String("log-format", "text", "Log format: text|json")
	logLevel := pflag.String("log-level", "info", "Log level: debug|info|warn|error")
	logFile := pflag.String("log-file", "", "If set, write rotated log output here instead of stderr")
	metricsAddr := pflag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := pflag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters")
	poolSize := pflag.Int("parser-pool-size", 16, "Worker count per packet type (spec.md parser_pool_size)")
	poolQueueDepth := pflag.Int("parser-pool-queue-depth", 64, "Per-worker job queue depth")
	reassemblyTimeout := pflag.Duration("reassembly-timeout", 5*time.Second, "Split-waveform reassembly idle eviction window")
	reassemblySweep := pflag.Duration("reassembly-sweep-interval", time.Second, "How often stale reassembly buckets are swept")
	emitInterval := pflag.Duration("emit-interval", 50*time.Millisecond, "Emit batch flush interval (spec.md emit_interval_ms)")
	emitBatchSize := pflag.Int("emit-batch-size", 128, "Emit batch size threshold")
	emitFastPath := pflag.Bool("emit-fast-path", false, "Bypass batching and deliver each record immediately (spec.md batch_mode=false)")
	hubBuffer := pflag.Int("hub-buffer", 512, "Per-subscriber emit hub buffer (batches); validated only, not applied: PacketBuffer subscribers use a fixed 32-batch buffer")
	hubPolicy := pflag.String("hub-policy", "drop", "Emit hub backpressure policy: drop|kick; validated only, not applied: PacketBuffer hubs always drop")
	mdnsEnable := pflag.Bool("mdns-enable", false, "Enable mDNS advertisement of this device's listener")
	mdnsName := pflag.String("mdns-name", "", "mDNS instance name (default digitizer-server-<hostname>)")
	showVersion := pflag.Bool("version", false, "Print version and exit")
	pflag.Parse()

	set := map[string]struct{}{}
	pflag.Visit(func(f *pflag.Flag) { set[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.deviceID = *deviceID
	cfg.serialPort = *serialPort
	cfg.serialBaud = *serialBaud
	cfg.serialReadTimeout = *serialReadTimeout
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.logFile = *logFile
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.poolSize = *poolSize
	cfg.poolQueueDepth = *poolQueueDepth
	cfg.reassemblyTimeout = *reassemblyTimeout
	cfg.reassemblySweep = *reassemblySweep
	cfg.emitInterval = *emitInterval
	cfg.emitBatchSize = *emitBatchSize
	cfg.emitFastPath = *emitFastPath
	cfg.hubBuffer = *hubBuffer
	cfg.hubPolicy = *hubPolicy
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName

	if err := applyEnvOverrides(cfg, set); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	switch c.hubPolicy {
	case "drop", "kick":
	default:
		return fmt.Errorf("invalid hub-policy: %s", c.hubPolicy)
	}
	if c.serialPort != "" && c.serialBaud <= 0 {
		return fmt.Errorf("serial-baud must be > 0 (got %d)", c.serialBaud)
	}
	if c.poolSize <= 0 {
		return fmt.Errorf("parser-pool-size must be > 0 (got %d)", c.poolSize)
	}
	if c.poolQueueDepth <= 0 {
		return fmt.Errorf("parser-pool-queue-depth must be > 0 (got %d)", c.poolQueueDepth)
	}
	if c.reassemblyTimeout <= 0 {
		return fmt.Errorf("reassembly-timeout must be > 0")
	}
	if c.emitInterval <= 0 {
		return fmt.Errorf("emit-interval must be > 0")
	}
	if c.hubBuffer <= 0 {
		return fmt.Errorf("hub-buffer must be > 0")
	}
	return nil
}

// applyEnvOverrides maps DIGITIZER_* environment variables onto cfg unless
// the corresponding flag was explicitly set (flag wins).
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }
	setErr := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if _, ok := set["listen"]; !ok {
		if v, ok := get("DIGITIZER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["device-id"]; !ok {
		if v, ok := get("DIGITIZER_DEVICE_ID"); ok && v != "" {
			if n, err := strconv.ParseUint(v, 10, 32); err == nil {
				c.deviceID = uint32(n)
			} else {
				setErr(fmt.Errorf("invalid DIGITIZER_DEVICE_ID: %w", err))
			}
		}
	}
	if _, ok := set["log-file"]; !ok {
		if v, ok := get("DIGITIZER_LOG_FILE"); ok {
			c.logFile = v
		}
	}
	if _, ok := set["serial-port"]; !ok {
		if v, ok := get("DIGITIZER_SERIAL_PORT"); ok {
			c.serialPort = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("DIGITIZER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("DIGITIZER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("DIGITIZER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["parser-pool-size"]; !ok {
		if v, ok := get("DIGITIZER_PARSER_POOL_SIZE"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.poolSize = n
			} else if err != nil {
				setErr(fmt.Errorf("invalid DIGITIZER_PARSER_POOL_SIZE: %w", err))
			}
		}
	}
	if _, ok := set["emit-interval"]; !ok {
		if v, ok := get("DIGITIZER_EMIT_INTERVAL_MS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.emitInterval = time.Duration(n) * time.Millisecond
			} else if err != nil {
				setErr(fmt.Errorf("invalid DIGITIZER_EMIT_INTERVAL_MS: %w", err))
			}
		}
	}
	if _, ok := set["reassembly-timeout"]; !ok {
		if v, ok := get("DIGITIZER_REASSEMBLY_TIMEOUT_MS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.reassemblyTimeout = time.Duration(n) * time.Millisecond
			} else if err != nil {
				setErr(fmt.Errorf("invalid DIGITIZER_REASSEMBLY_TIMEOUT_MS: %w", err))
			}
		}
	}
	if _, ok := set["emit-fast-path"]; !ok {
		if v, ok := get("DIGITIZER_BATCH_MODE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "0", "false", "no", "off":
				c.emitFastPath = true
			case "1", "true", "yes", "on":
				c.emitFastPath = false
			}
		}
	}
	if _, ok := set["hub-policy"]; !ok {
		if v, ok := get("DIGITIZER_HUB_POLICY"); ok && v != "" {
			c.hubPolicy = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("DIGITIZER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("DIGITIZER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("DIGITIZER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil {
				setErr(fmt.Errorf("invalid DIGITIZER_LOG_METRICS_INTERVAL: %w", err))
			}
		}
	}
	return firstErr
}
