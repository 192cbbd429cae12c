package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsServiceType = "_digitizer-server._tcp"

// startMDNS registers the device-ingest listener via mDNS and returns a
// cleanup function; a no-op when disabled. Ported from
// cmd/can-server/mdns.go, same grandcat/zeroconf usage.
func startMDNS(ctx context.Context, cfg *appConfig, port int) (func(), error) {
	if !cfg.mdnsEnable {
		return func() {}, nil
	}
	instance := cfg.mdnsName
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("digitizer-server-%s", host)
	}
	meta := []string{
		"version=" + version,
		"commit=" + commit,
		"device_id=" + fmt.Sprint(cfg.deviceID),
	}
	svc, err := zeroconf.Register(instance, mdnsServiceType, "local.", port, meta, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns register: %w", err)
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		svc.Shutdown()
	}()
	return func() { close(done); svc.Shutdown(); time.Sleep(50 * time.Millisecond) }, nil
}
