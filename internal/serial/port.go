package serial

import (
	"time"

	"github.com/tarm/serial"
)

// Port abstracts tarm/serial for testability. It satisfies io.ReadWriteCloser,
// so it plugs directly into internal/device.PacketBuffer.ProcessData for
// digitizers that expose a serial link instead of a TCP one.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Open opens a serial digitizer transport at the given baud rate. readTimeout
// bounds how long a single Read call blocks, so the ingest loop can check for
// shutdown between reads.
func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	cfg := &serial.Config{Name: name, Baud: baud, ReadTimeout: readTimeout}
	return serial.OpenPort(cfg)
}
