package zwave

import (
	"sync"
	"sync/atomic"
	"time"
)

// Engine timing tunables. Exported as vars, not consts, so configuration (and
// tests) can adjust them instead of sleeping real-world durations.
var (
	ResponseTimeout = 5000 * time.Millisecond
	CANBackoff      = 100 * time.Millisecond
)

// WakeUpChecker reports whether a non-listening node is currently known to
// be asleep. A registered WakeUp command-class processor is the natural
// implementation. A nil checker means every node is treated as awake (no
// deferral).
type WakeUpChecker interface {
	IsAsleep(node *Node) bool
}

// FailedSendDataHandler is consulted after a SendData transaction times out,
// in place of the engine's default re-enqueue. Returning true means the hook
// has taken ownership of msg (retried, rerouted, or marked the node dead via
// its own side effects); the engine then does nothing further with it.
type FailedSendDataHandler interface {
	HandleFailedSendData(msg *SerialMessage, node *Node) (handled bool)
}

// TransactionEngine is the single worker that owns the one-outstanding-
// transaction invariant. It takes messages off the PriorityQueue, writes
// them to the SerialLink, and waits for the completion latch raised by
// OnFrame or OnControlByte.
type TransactionEngine struct {
	link     *SerialLink
	queue    *PriorityQueue
	registry *ProcessorRegistry
	nodes    *NodeRegistry
	state    *ControllerState
	events   *listenerList
	logger   Logger

	wakeUp WakeUpChecker
	onFail FailedSendDataHandler

	latch *completionLatch

	mu       sync.RWMutex
	inFlight *SerialMessage

	wg      sync.WaitGroup
	done    chan struct{}
	stop    sync.Once
	running atomic.Bool
}

// NewTransactionEngine wires the engine to its collaborators. wakeUp and
// onFail may be nil; sensible defaults (never asleep, always retry) apply.
func NewTransactionEngine(
	link *SerialLink,
	queue *PriorityQueue,
	registry *ProcessorRegistry,
	nodes *NodeRegistry,
	state *ControllerState,
	events *listenerList,
	logger Logger,
) *TransactionEngine {
	if logger == nil {
		logger = noopLogger{}
	}
	return &TransactionEngine{
		link:     link,
		queue:    queue,
		registry: registry,
		nodes:    nodes,
		state:    state,
		events:   events,
		logger:   logger,
		latch:    newCompletionLatch(),
		done:     make(chan struct{}),
	}
}

// SetWakeUpChecker installs the wake-up collaborator consulted before
// dispatching a SendData to a non-listening node.
func (e *TransactionEngine) SetWakeUpChecker(w WakeUpChecker) { e.wakeUp = w }

// SetFailedSendDataHandler installs the SendData timeout-escalation
// collaborator.
func (e *TransactionEngine) SetFailedSendDataHandler(h FailedSendDataHandler) { e.onFail = h }

// Submit enqueues msg. Safe from any goroutine.
func (e *TransactionEngine) Submit(msg *SerialMessage) {
	e.queue.Enqueue(msg)
}

// InFlight returns the message currently awaiting completion, or nil.
func (e *TransactionEngine) InFlight() *SerialMessage {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.inFlight
}

// Run is the engine's single worker loop. It blocks until Stop is called or
// the queue is closed, and should be started in its own goroutine by the
// Controller façade.
func (e *TransactionEngine) Run() {
	e.wg.Add(1)
	e.running.Store(true)
	defer e.running.Store(false)
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		default:
		}

		msg, ok := e.queue.Take()
		if !ok {
			return // queue closed: Controller.Close is tearing down
		}

		if e.shouldDeferForWakeUp(msg) {
			continue
		}

		if !e.runTransaction(msg) {
			// Write to the link failed: the wire is gone. Exit so the
			// Watchdog's liveness check finds this worker dead and respawns
			// it on a freshly reopened link, mirroring how the ReceiveLoop
			// exits on I/O error.
			return
		}
	}
}

// shouldDeferForWakeUp diverts a non-Low SendData targeting a known-asleep,
// non-listening node to the node's wake-up queue instead of transmitting it.
func (e *TransactionEngine) shouldDeferForWakeUp(msg *SerialMessage) bool {
	if !msg.IsSendData() || msg.Priority == PriorityLow || e.wakeUp == nil {
		return false
	}
	node := e.nodes.Get(msg.TargetNodeID)
	if node == nil || node.Listening || node.FrequentlyListening {
		return false
	}
	if !e.wakeUp.IsAsleep(node) {
		return false
	}
	node.QueueForWakeUp(msg)
	e.logger.Debug("deferred message to wake-up queue", "node", msg.TargetNodeID, "class", msg.MessageClass)
	return true
}

// runTransaction drives one message through send, wait, and retry. It
// returns false only on a link write failure, signalling the caller that the
// wire itself is gone and the run loop should exit.
func (e *TransactionEngine) runTransaction(msg *SerialMessage) bool {
	e.latch.Drain()

	e.mu.Lock()
	e.inFlight = msg
	e.mu.Unlock()

	payload := msg.Payload
	if msg.IsSendData() {
		// SendData on the wire: node ID, data length, data, transmit
		// options, callback ID.
		payload = make([]byte, 0, len(msg.Payload)+4)
		payload = append(payload, msg.TargetNodeID, byte(len(msg.Payload)))
		payload = append(payload, msg.Payload...)
		payload = append(payload, msg.TransmitOptions, msg.CallbackID)
	}

	if err := e.link.WriteAll(Encode(Frame{
		MessageType:  msg.MessageType,
		MessageClass: msg.MessageClass,
		Payload:      payload,
	})); err != nil {
		e.logger.Error("write failed", "trace", msg.TraceID, "class", msg.MessageClass, "err", err)
		e.clearInFlight()
		e.queue.Enqueue(msg) // not this message's fault; preserve it for the respawned engine
		return false
	}

	outcome, signalled := e.latch.Wait(ResponseTimeout)
	if signalled {
		e.onSignalled(msg, outcome)
		return true
	}

	e.onTimeout(msg)
	return true
}

func (e *TransactionEngine) onSignalled(msg *SerialMessage, outcome latchOutcome) {
	e.clearInFlight()

	switch outcome {
	case outcomeComplete:
		e.events.dispatch(Event{Kind: EventTransactionCompleted, Timestamp: time.Now(), Message: msg})
	case outcomeNAK:
		// Protocol-level rejection. The attempt budget governs the requeue,
		// same as a timeout.
		e.logger.Warn("transaction rejected", "trace", msg.TraceID, "class", msg.MessageClass, "err", ErrControllerNAK)
		e.retryOrDiscard(msg)
	case outcomeCAN:
		// Stick-side cancel: requeue unconditionally, then let the stick
		// settle before the next take.
		e.logger.Debug("transaction cancelled, re-enqueueing", "trace", msg.TraceID, "err", ErrControllerCAN)
		e.queue.Enqueue(msg)
		time.Sleep(CANBackoff)
	}
}

func (e *TransactionEngine) onTimeout(msg *SerialMessage) {
	e.state.incTimeout()
	e.logger.Warn("transaction timed out", "trace", msg.TraceID, "class", msg.MessageClass, "err", ErrTransactionTimeout)

	if msg.MessageClass == ClassSendData {
		// Tell the stick to stop trying before the retry goes out.
		abort := NewSerialMessage(ClassSendDataAbort, TypeRequest, PriorityHigh, nil)
		if err := e.link.WriteAll(Encode(Frame{
			MessageType:  abort.MessageType,
			MessageClass: abort.MessageClass,
			Payload:      abort.Payload,
		})); err != nil {
			e.logger.Error("send data abort write failed", "err", err)
		}
	}

	e.clearInFlight()

	msg.AttemptsRemaining--
	if msg.AttemptsRemaining < 0 {
		e.logger.Warn("discarding message after exhausting retry budget", "trace", msg.TraceID, "class", msg.MessageClass)
		return
	}

	if msg.MessageClass == ClassSendData && e.onFail != nil {
		node := e.nodes.Get(msg.TargetNodeID)
		if e.onFail.HandleFailedSendData(msg, node) {
			return
		}
	}

	e.queue.Enqueue(msg)
}

// retryOrDiscard applies the attempt-budget policy after a NAK: the message
// is either re-enqueued or reported discarded, never both. onTimeout applies
// the same budget inline, consulting the FailedSendDataHandler before its
// re-enqueue.
func (e *TransactionEngine) retryOrDiscard(msg *SerialMessage) {
	msg.AttemptsRemaining--
	if msg.AttemptsRemaining < 0 {
		e.logger.Warn("discarding message after NAK, retry budget exhausted", "class", msg.MessageClass)
		return
	}
	e.queue.Enqueue(msg)
}

func (e *TransactionEngine) clearInFlight() {
	e.mu.Lock()
	e.inFlight = nil
	e.mu.Unlock()
}

// OnFrame is called by the ReceiveLoop with a validated, checksummed frame.
// It dispatches to the registered MessageProcessor and raises the completion
// latch if the processor reports completion.
func (e *TransactionEngine) OnFrame(frame Frame) {
	proc := e.registry.Lookup(frame.MessageClass)
	if proc == nil {
		e.logger.Debug("no processor registered for message class, ignoring", "class", frame.MessageClass)
		return
	}

	ctx := &ProcessorContext{
		State:    e.state,
		Nodes:    e.nodes,
		Queue:    e.queue,
		Events:   e.events,
		Submit:   e.Submit,
		NextCBID: e.state.NextCallbackID,
	}

	result := proc.Process(ctx, frame, e.InFlight())
	if result.TransactionComplete {
		e.latch.Raise(outcomeComplete)
	}
}

// OnControlByte is called by the ReceiveLoop for ACK/NAK/CAN. An ACK only
// confirms byte reception and never raises the latch; NAK and CAN both raise
// it, tagged so the run loop can react differently to each.
func (e *TransactionEngine) OnControlByte(b byte) {
	switch b {
	case ControlACK:
		e.state.incACK()
	case ControlNAK:
		e.state.incNAK()
		e.latch.Raise(outcomeNAK)
	case ControlCAN:
		e.state.incCAN()
		e.latch.Raise(outcomeCAN)
	}
}

// IsRunning reports whether the worker goroutine is currently executing
// Run. Consulted by the Watchdog's liveness check.
func (e *TransactionEngine) IsRunning() bool { return e.running.Load() }

// Stop signals the run loop to exit once its current Take call returns.
// Controller.Close pairs this with queue.Close() so a blocked Take actually
// unblocks.
func (e *TransactionEngine) Stop() {
	e.stop.Do(func() { close(e.done) })
	e.wg.Wait()
}
