package zwave

import (
	"sync"
	"sync/atomic"
)

// ReceiveLoop is the dedicated reader goroutine: it recognises the
// single-byte control codes, assembles SOF frames, ACKs what validates, and
// feeds everything to the TransactionEngine.
type ReceiveLoop struct {
	link   *SerialLink
	engine *TransactionEngine
	state  *ControllerState
	logger Logger

	closeOnce sync.Once
	closed    chan struct{}
	running   atomic.Bool
}

// NewReceiveLoop wires the loop to its collaborators.
func NewReceiveLoop(link *SerialLink, engine *TransactionEngine, state *ControllerState, logger Logger) *ReceiveLoop {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ReceiveLoop{
		link:   link,
		engine: engine,
		state:  state,
		logger: logger,
		closed: make(chan struct{}),
	}
}

// Run transmits a single NAK to resynchronise the stick, then reads until an
// I/O error (the stick went away, or the port was closed). It never returns
// an error itself — on exit the Watchdog's liveness check notices and
// respawns the loop on a reopened link.
func (r *ReceiveLoop) Run() {
	r.running.Store(true)
	defer r.running.Store(false)

	if err := r.link.WriteAll([]byte{ControlNAK}); err != nil {
		r.logger.Warn("initial resync NAK failed", "err", err)
		return
	}

	for {
		select {
		case <-r.closed:
			return
		default:
		}

		res := r.link.ReadByteBlockingOrTimeout()
		if res.Timeout {
			continue
		}
		if res.EOF {
			r.logger.Info("receive loop exiting on I/O error")
			return
		}

		r.handleByte(res.Byte)
	}
}

func (r *ReceiveLoop) handleByte(b byte) {
	switch b {
	case ControlSOF:
		r.state.incSOF()
		r.readFrame()
	case ControlACK:
		r.engine.OnControlByte(ControlACK)
	case ControlNAK:
		r.engine.OnControlByte(ControlNAK)
	case ControlCAN:
		r.engine.OnControlByte(ControlCAN)
	default:
		r.state.incOOF()
		if err := r.link.WriteAll([]byte{ControlNAK}); err != nil {
			r.logger.Warn("NAK-on-unrecognized-byte write failed", "err", err)
		}
	}
}

// readFrame reads the LEN byte and the remaining frame bytes, decodes, and
// on success ACKs the wire and invokes the engine. On a bad checksum the
// frame is dropped without an ACK, so the stick retransmits.
func (r *ReceiveLoop) readFrame() {
	lenByte, ok := r.readByteRetryingTimeouts()
	if !ok {
		return
	}

	total := FrameLength(lenByte)
	buf := make([]byte, total)
	buf[0] = ControlSOF
	buf[1] = lenByte

	for i := 2; i < total; i++ {
		b, ok := r.readByteRetryingTimeouts()
		if !ok {
			return
		}
		buf[i] = b
	}

	frame, err := Decode(buf)
	if err != nil {
		r.logger.Debug("dropping invalid frame", "err", err)
		return
	}

	if err := r.link.WriteAll([]byte{ControlACK}); err != nil {
		r.logger.Warn("ACK write failed", "err", err)
		return
	}

	r.engine.OnFrame(frame)
}

// readByteRetryingTimeouts reads one byte, retrying across inter-byte read
// timeouts (those just mean "nothing yet") and returning false only on a
// genuine I/O error, which the caller treats as loop-exit.
func (r *ReceiveLoop) readByteRetryingTimeouts() (byte, bool) {
	for {
		select {
		case <-r.closed:
			return 0, false
		default:
		}

		res := r.link.ReadByteBlockingOrTimeout()
		if res.Timeout {
			continue
		}
		if res.EOF {
			return 0, false
		}
		return res.Byte, true
	}
}

// IsRunning reports whether the loop goroutine is currently executing Run.
// Consulted by the Watchdog's liveness check.
func (r *ReceiveLoop) IsRunning() bool { return r.running.Load() }

// Stop requests the loop to exit at its next byte-read boundary. Closing the
// underlying link (which Controller.Close does regardless) is the more
// immediate mechanism, since a blocking Read is what actually needs
// interrupting; this covers the between-reads window too.
func (r *ReceiveLoop) Stop() {
	r.closeOnce.Do(func() { close(r.closed) })
}
