package zwave

import "sync"

// ProcessorResult is returned by a MessageProcessor after inspecting an
// incoming frame.
type ProcessorResult struct {
	// TransactionComplete, when true, raises the TransactionEngine's
	// completion latch. Synchronous classes (a Response answers the
	// question) set this on the Response; asynchronous classes like
	// SendData set it false on the Response and true on the matching
	// Request callback instead.
	TransactionComplete bool
}

// MessageProcessor interprets a received frame's payload for one
// MessageClass and reports whether it completes the in-flight transaction.
// The registry ships the processors this driver's own initialization and
// SendData protocol needs; callers register additional or replacement
// processors for command-class-specific behaviour.
type MessageProcessor interface {
	// Process handles a received Frame. inFlight is the message currently
	// awaiting completion, or nil if none is outstanding.
	Process(ctx *ProcessorContext, frame Frame, inFlight *SerialMessage) ProcessorResult
}

// MessageProcessorFunc adapts a plain function to MessageProcessor.
type MessageProcessorFunc func(ctx *ProcessorContext, frame Frame, inFlight *SerialMessage) ProcessorResult

func (f MessageProcessorFunc) Process(ctx *ProcessorContext, frame Frame, inFlight *SerialMessage) ProcessorResult {
	return f(ctx, frame, inFlight)
}

// ProcessorContext is threaded explicitly into every MessageProcessor call
// rather than read from package-level state.
type ProcessorContext struct {
	State    *ControllerState
	Nodes    *NodeRegistry
	Queue    *PriorityQueue
	Events   *listenerList
	Submit   func(*SerialMessage)
	NextCBID func() byte
}

// ProcessorRegistry dispatches received frames to the MessageProcessor
// registered for their MessageClass. Safe for concurrent registration and
// lookup.
type ProcessorRegistry struct {
	mu         sync.RWMutex
	processors map[MessageClass]MessageProcessor
}

// NewProcessorRegistry creates a registry pre-populated with the built-in
// processors the initialization chain and SendData require.
func NewProcessorRegistry() *ProcessorRegistry {
	r := &ProcessorRegistry{processors: make(map[MessageClass]MessageProcessor)}
	registerBuiltins(r)
	return r
}

// Register installs (or replaces) the processor for class.
func (r *ProcessorRegistry) Register(class MessageClass, p MessageProcessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[class] = p
}

// Lookup returns the processor for class, or nil if none is registered —
// unknown classes are logged by the caller and ignored, never fatal.
func (r *ProcessorRegistry) Lookup(class MessageClass) MessageProcessor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.processors[class]
}
