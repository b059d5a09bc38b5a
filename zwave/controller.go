package zwave

import (
	"fmt"
	"sync"
)

// Controller is the public façade assembling SerialLink, the send queue, the
// TransactionEngine, ReceiveLoop, NodeRegistry, and Watchdog into a single
// host-side Z-Wave driver.
//
// Thread Safety: all exported methods are safe for concurrent use.
type Controller struct {
	logger   Logger
	registry *ProcessorRegistry
	events   *listenerList
	state    *ControllerState
	nodes    *NodeRegistry
	queue    *PriorityQueue
	wakeUp   WakeUpChecker
	onFail   FailedSendDataHandler

	mu       sync.Mutex
	link     *SerialLink
	engine   *TransactionEngine
	receive  *ReceiveLoop
	watchdog *Watchdog
}

// ControllerOption configures optional collaborators at construction time.
type ControllerOption func(*Controller)

// WithLogger installs a Logger used across every component.
func WithLogger(l Logger) ControllerOption {
	return func(c *Controller) { c.logger = l }
}

// WithProcessorRegistry replaces the default registry (built-ins plus
// whatever additional command-class processors the caller registers). Rarely
// needed — callers typically keep the Controller's default registry (from
// NewProcessorRegistry) and call RegisterProcessor.
func WithProcessorRegistry(r *ProcessorRegistry) ControllerOption {
	return func(c *Controller) { c.registry = r }
}

// WithWakeUpChecker installs the collaborator consulted before dispatching a
// non-Low SendData to a non-listening node.
func WithWakeUpChecker(w WakeUpChecker) ControllerOption {
	return func(c *Controller) { c.wakeUp = w }
}

// WithFailedSendDataHandler installs the SendData timeout-escalation
// collaborator.
func WithFailedSendDataHandler(h FailedSendDataHandler) ControllerOption {
	return func(c *Controller) { c.onFail = h }
}

// NewController builds an unconnected Controller. Call Connect to open the
// serial port and start the worker goroutines.
func NewController(opts ...ControllerOption) *Controller {
	c := &Controller{
		logger: noopLogger{},
		events: &listenerList{},
		state:  NewControllerState(),
		nodes:  NewNodeRegistry(),
		queue:  NewPriorityQueue(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = NewProcessorRegistry()
	}
	return c
}

// RegisterProcessor installs (or replaces) the MessageProcessor for class.
// Safe to call before or after Connect.
func (c *Controller) RegisterProcessor(class MessageClass, p MessageProcessor) {
	c.registry.Register(class, p)
}

// Connect opens portName, starts the engine worker, receive loop, and
// watchdog, and kicks off the initialization query chain.
func (c *Controller) Connect(portName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.link != nil {
		return ErrAlreadyConnected
	}

	if err := c.openAndStartLocked(portName); err != nil {
		return err
	}

	c.initializeLocked()
	return nil
}

// openAndStartLocked opens the port and starts every goroutine. Called with
// mu held, both from Connect and from the watchdog's respawn path.
func (c *Controller) openAndStartLocked(portName string) error {
	link, err := OpenSerialLink(portName)
	if err != nil {
		return err
	}

	engine := NewTransactionEngine(link, c.queue, c.registry, c.nodes, c.state, c.events, c.logger)
	engine.SetWakeUpChecker(c.wakeUp)
	engine.SetFailedSendDataHandler(c.onFail)

	receive := NewReceiveLoop(link, engine, c.state, c.logger)

	c.link = link
	c.engine = engine
	c.receive = receive
	c.state.setConnected(true)

	go engine.Run()
	go receive.Run()

	if c.watchdog == nil {
		// The liveness probes go through the Controller, not the engine and
		// receive loop created above, so the watchdog keeps watching the
		// current instances across respawns.
		c.watchdog = NewWatchdog(c.nodes, c.queue, c.state, c.events, c.logger,
			c.engineRunning, c.receiveRunning, c.respawn)
		go c.watchdog.Run()
	}

	return nil
}

// engineRunning reports whether the current engine worker is executing Run.
func (c *Controller) engineRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.engine != nil && c.engine.IsRunning()
}

// receiveRunning reports whether the current receive loop is executing Run.
func (c *Controller) receiveRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.receive != nil && c.receive.IsRunning()
}

// respawn tears down and reopens the link on the same port name, restarting
// both worker goroutines. Invoked by the Watchdog when either has exited.
func (c *Controller) respawn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	portName := ""
	if c.link != nil {
		portName = c.link.PortName()
		c.teardownLocked()
	}
	if portName == "" {
		return
	}

	if err := c.openAndStartLocked(portName); err != nil {
		c.logger.Error("watchdog respawn failed to reopen port", "port", portName, "err", err)
	}
}

// initializeLocked enqueues the opening initialization queries: GetVersion,
// MemoryGetId, SerialApiGetCapabilities, in order. SerialApiGetInitData is
// enqueued later, from the Capabilities response handler.
func (c *Controller) initializeLocked() {
	c.engine.Submit(NewSerialMessage(ClassGetVersion, TypeRequest, PriorityHigh, nil))
	c.engine.Submit(NewSerialMessage(ClassMemoryGetId, TypeRequest, PriorityHigh, nil))
	c.engine.Submit(NewSerialMessage(ClassSerialApiGetCapabilities, TypeRequest, PriorityHigh, nil))
}

// Close idempotently tears down the controller: stops both worker goroutines
// and the watchdog, closes the port, and clears the queue, node table, and
// listener list. Any in-flight transaction is abandoned without retry.
func (c *Controller) Close() error {
	// Stop the watchdog before taking mu: a mid-tick watchdog may be inside
	// a liveness probe or respawn, both of which need the lock.
	c.mu.Lock()
	watchdog := c.watchdog
	c.watchdog = nil
	c.mu.Unlock()
	if watchdog != nil {
		watchdog.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Unblock a worker parked in queue.Take() before joining it below —
	// Close is terminal, so permanently closing the queue here is safe
	// (unlike the watchdog's respawn path, which must leave it open).
	c.queue.Close()

	c.teardownLocked()
	c.queue.Clear()
	c.nodes.Clear()
	c.events.Clear()
	c.state.setConnected(false)
	return nil
}

// teardownLocked stops the engine and receive loop and closes the link,
// without touching the queue/node table/listener list (the respawn path
// needs those preserved).
func (c *Controller) teardownLocked() {
	if c.receive != nil {
		c.receive.Stop()
		c.receive = nil
	}
	if c.engine != nil {
		c.engine.Stop()
		c.engine = nil
	}
	if c.link != nil {
		c.link.Close()
		c.link = nil
	}
}

// --- Queries ---

func (c *Controller) OwnNodeID() byte          { return c.state.OwnNodeID() }
func (c *Controller) HomeID() uint32           { return c.state.HomeID() }
func (c *Controller) Version() string          { return c.state.Version() }
func (c *Controller) SerialAPIVersion() string { return c.state.SerialAPIVersion() }
func (c *Controller) LibraryType() byte        { return c.state.LibraryType() }
func (c *Controller) ManufacturerID() uint16   { return c.state.ManufacturerID() }
func (c *Controller) DeviceID() uint16         { return c.state.DeviceID() }
func (c *Controller) DeviceType() uint16       { return c.state.DeviceType() }
func (c *Controller) SendQueueLength() int     { return c.queue.Len() }
func (c *Controller) Counters() Counters       { return c.state.Counters() }

// IsConnected reports link-up AND initialization-complete.
func (c *Controller) IsConnected() bool { return c.state.IsReady() }

// Nodes returns a snapshot of every known node.
func (c *Controller) Nodes() []*Node { return c.nodes.All() }

// Node returns the node for nodeID, or nil if unknown.
func (c *Controller) Node(nodeID byte) *Node { return c.nodes.Get(nodeID) }

// --- Commands ---

func (c *Controller) submit(msg *SerialMessage) error {
	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return ErrNotConnected
	}
	engine.Submit(msg)
	return nil
}

// IdentifyNode enqueues an IdentifyNode (protocol info) request for nodeID.
func (c *Controller) IdentifyNode(nodeID byte) error {
	return c.submit(NewSerialMessage(ClassIdentifyNode, TypeRequest, PriorityGet, []byte{nodeID}))
}

// RequestNodeInfo enqueues a RequestNodeInfo request for nodeID.
func (c *Controller) RequestNodeInfo(nodeID byte) error {
	return c.submit(NewSerialMessage(ClassRequestNodeInfo, TypeRequest, PriorityGet, []byte{nodeID}))
}

// RequestNodeRoutingInfo enqueues a GetRoutingInfo request for nodeID.
func (c *Controller) RequestNodeRoutingInfo(nodeID byte) error {
	return c.submit(NewSerialMessage(ClassGetRoutingInfo, TypeRequest, PriorityGet, []byte{nodeID}))
}

// RequestNodeNeighborUpdate enqueues a RequestNodeNeighborUpdate request.
func (c *Controller) RequestNodeNeighborUpdate(nodeID byte) error {
	return c.submit(NewSerialMessage(ClassRequestNodeNeighborUpdate, TypeRequest, PriorityHigh, []byte{nodeID}))
}

// RequestAddNodesStart puts the controller into inclusion mode.
func (c *Controller) RequestAddNodesStart() error {
	return c.submit(NewSerialMessage(ClassAddNode, TypeRequest, PriorityHigh, []byte{addNodeModeStart}))
}

// RequestAddNodesStop exits inclusion mode.
func (c *Controller) RequestAddNodesStop() error {
	return c.submit(NewSerialMessage(ClassAddNode, TypeRequest, PriorityHigh, []byte{addNodeModeStop}))
}

const (
	addNodeModeStart byte = 0x01
	addNodeModeStop  byte = 0x05
)

// RequestRemoveFailedNode enqueues a RemoveFailedNode request for nodeID.
func (c *Controller) RequestRemoveFailedNode(nodeID byte) error {
	return c.submit(NewSerialMessage(ClassRemoveFailedNode, TypeRequest, PriorityHigh, []byte{nodeID}))
}

// RequestDeleteAllReturnRoutes enqueues a DeleteReturnRoute request for
// nodeID, removing every return route it holds.
func (c *Controller) RequestDeleteAllReturnRoutes(nodeID byte) error {
	return c.submit(NewSerialMessage(ClassDeleteReturnRoute, TypeRequest, PriorityHigh, []byte{nodeID}))
}

// RequestAssignReturnRoute assigns a static return route from src to dst.
func (c *Controller) RequestAssignReturnRoute(src, dst byte) error {
	return c.submit(NewSerialMessage(ClassAssignReturnRoute, TypeRequest, PriorityHigh, []byte{src, dst}))
}

// RequestAssignSucReturnRoute assigns a return route from src to the SUC/SIS.
// Issuing a soft reset is a separate operation, SoftReset.
func (c *Controller) RequestAssignSucReturnRoute(src byte) error {
	return c.submit(NewSerialMessage(ClassAssignSucReturnRoute, TypeRequest, PriorityHigh, []byte{src}))
}

// SoftReset enqueues a SerialApiSoftReset request.
func (c *Controller) SoftReset() error {
	return c.submit(NewSerialMessage(ClassSerialApiSoftReset, TypeRequest, PriorityHigh, nil))
}

// SendData validates, stamps, and enqueues a SendData request: increments
// the target node's send count, sets standard transmit options, assigns the
// next callback ID, and diverts the message to the node's wake-up queue
// (instead of enqueuing) when the target is a sleeping battery node.
func (c *Controller) SendData(msg *SerialMessage) error {
	if msg.MessageClass != ClassSendData || msg.MessageType != TypeRequest {
		return ErrWrongMessageClass
	}

	c.mu.Lock()
	engine := c.engine
	c.mu.Unlock()
	if engine == nil {
		return ErrNotConnected
	}

	node := c.nodes.Get(msg.TargetNodeID)
	if node == nil {
		return fmt.Errorf("%w: node %d", ErrNodeUnknown, msg.TargetNodeID)
	}
	node.IncrementSendCount()

	msg.TransmitOptions = StandardTransmitOptions
	msg.CallbackID = c.state.NextCallbackID()

	if c.wakeUp != nil && msg.Priority != PriorityLow && !node.Listening && !node.FrequentlyListening {
		if c.wakeUp.IsAsleep(node) {
			node.QueueForWakeUp(msg)
			return nil
		}
	}

	engine.Submit(msg)
	return nil
}

// CheckForDeadOrSleepingNodes forces an immediate dead-node sweep instead of
// waiting for the next watchdog tick. A no-op while disconnected.
func (c *Controller) CheckForDeadOrSleepingNodes() {
	c.mu.Lock()
	watchdog := c.watchdog
	c.mu.Unlock()
	if watchdog != nil {
		watchdog.CheckForDeadOrSleepingNodes()
	}
}

// AddEventListener subscribes sink to every emitted Event.
func (c *Controller) AddEventListener(sink EventSink) { c.events.Add(sink) }

// RemoveEventListener unsubscribes sink.
func (c *Controller) RemoveEventListener(sink EventSink) { c.events.Remove(sink) }
