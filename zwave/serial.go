package zwave

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
)

// port is the narrow subset of go.bug.st/serial.Port this link actually
// calls. serial.Port satisfies it structurally; tests substitute a fake
// without needing real hardware.
type port interface {
	Read(b []byte) (int, error)
	Write(b []byte) (int, error)
	Close() error
}

// SerialLink owns the byte transport to the stick: a single named serial
// port opened at 115200-8N1 with a one-byte receive threshold and an
// inter-byte read timeout.
//
// Thread safety: Write is serialised by an internal mutex so the engine
// worker (sending a message or a SendDataAbort) and the ReceiveLoop (sending
// ACK/NAK) never interleave bytes on the wire. Close is idempotent.
type SerialLink struct {
	portName string
	port     port

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// ReadResult is the outcome of a single blocking byte read.
type ReadResult struct {
	Byte    byte
	EOF     bool
	Timeout bool
}

// ReceiveTimeout bounds how long a single byte read blocks before reporting
// "nothing yet". A var so configuration can adjust it.
var ReceiveTimeout = 1000 * time.Millisecond

// OpenSerialLink opens portName at 115200-8N1 with the inter-byte read
// timeout the ReceiveLoop's byte-blocking contract requires.
func OpenSerialLink(portName string) (*SerialLink, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, newLinkError("open", fmt.Errorf("%w: %v", ErrPortUnavailable, err), !isPortMissing(err))
	}

	if err := port.SetReadTimeout(ReceiveTimeout); err != nil {
		port.Close()
		return nil, newLinkError("set read timeout", err, true)
	}

	return &SerialLink{
		portName: portName,
		port:     port,
		closed:   make(chan struct{}),
	}, nil
}

// isPortMissing is a best-effort classification of "no such port" errors as
// non-recoverable-by-retry (the Watchdog should still retry periodically,
// but a tight reconnect loop is pointless while the device is unplugged).
func isPortMissing(err error) bool {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return portErr.Code() != serial.PortBusy
	}
	return true
}

// ReadByteBlockingOrTimeout reads a single byte, blocking up to the
// configured inter-byte timeout. Any read error, EOF included, reports EOF:
// the loops treat both the same way, as "this link is finished".
func (l *SerialLink) ReadByteBlockingOrTimeout() ReadResult {
	buf := make([]byte, 1)
	n, err := l.port.Read(buf)
	if err != nil {
		return ReadResult{EOF: true}
	}
	if n == 0 {
		// go.bug.st/serial returns (0, nil) on a read-timeout expiry.
		return ReadResult{Timeout: true}
	}
	return ReadResult{Byte: buf[0]}
}

// WriteAll writes bytes atomically with respect to concurrent writers.
func (l *SerialLink) WriteAll(b []byte) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	_, err := l.port.Write(b)
	if err != nil {
		return newLinkError("write", err, true)
	}
	return nil
}

// Close is idempotent.
func (l *SerialLink) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		err = l.port.Close()
	})
	return err
}

// PortName returns the port this link was opened against, for reconnect.
func (l *SerialLink) PortName() string { return l.portName }

// newSerialLinkFromPort wraps an already-open port, bypassing the real
// go.bug.st/serial.Open call. Used by tests to drive the engine/receive loop
// against a fake transport instead of real hardware.
func newSerialLinkFromPort(portName string, p port) *SerialLink {
	return &SerialLink{portName: portName, port: p, closed: make(chan struct{})}
}
