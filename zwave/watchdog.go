package zwave

import (
	"sync"
	"time"
)

// Watchdog tunables. Vars so configuration (and tests) can adjust them.
var (
	WatchdogPeriod      = 10000 * time.Millisecond
	StageStallThreshold = 120000 * time.Millisecond
)

// Watchdog periodically checks that the engine worker and receive loop are
// still running, and separately sweeps the node registry for stage-stalled
// nodes. It owns neither loop directly — respawn is supplied by the
// Controller façade, the only collaborator that knows how to reopen the
// SerialLink and restart both goroutines together.
type Watchdog struct {
	nodes  *NodeRegistry
	queue  *PriorityQueue
	state  *ControllerState
	events *listenerList
	logger Logger

	engineAlive  func() bool
	receiveAlive func() bool
	respawn      func()

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWatchdog wires the watchdog to its collaborators. engineAlive and
// receiveAlive report whether the respective goroutine is currently
// executing its Run method; respawn is invoked at most once per tick when
// either has exited.
func NewWatchdog(
	nodes *NodeRegistry,
	queue *PriorityQueue,
	state *ControllerState,
	events *listenerList,
	logger Logger,
	engineAlive func() bool,
	receiveAlive func() bool,
	respawn func(),
) *Watchdog {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Watchdog{
		nodes:        nodes,
		queue:        queue,
		state:        state,
		events:       events,
		logger:       logger,
		engineAlive:  engineAlive,
		receiveAlive: receiveAlive,
		respawn:      respawn,
		done:         make(chan struct{}),
	}
}

// Run ticks every WatchdogPeriod until Stop is called.
func (w *Watchdog) Run() {
	w.wg.Add(1)
	defer w.wg.Done()

	ticker := time.NewTicker(WatchdogPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watchdog) tick() {
	w.checkLiveness()
	w.CheckForDeadOrSleepingNodes()
}

// checkLiveness asks the Controller to reconnect on the same port if either
// worker goroutine has exited.
func (w *Watchdog) checkLiveness() {
	engineDown := w.engineAlive != nil && !w.engineAlive()
	receiveDown := w.receiveAlive != nil && !w.receiveAlive()
	if !engineDown && !receiveDown {
		return
	}

	w.logger.Warn("worker goroutine exited, respawning", "engine_down", engineDown, "receive_down", receiveDown)
	if w.respawn != nil {
		w.respawn()
	}
}

// CheckForDeadOrSleepingNodes sweeps the node table for stage-stalled nodes,
// marking them dead, and fires the one-time InitializationCompleted event
// once every node has reached a conclusion. Callable directly so higher
// layers can force a sweep without waiting a full tick.
func (w *Watchdog) CheckForDeadOrSleepingNodes() {
	if w.nodes.Len() == 0 {
		// No nodes discovered yet; completeness means nothing until the
		// initial node table has been built.
		return
	}
	if w.queue.HasPriority(PriorityLow) {
		// A sleeping-node ping is still pending; nothing conclusive can be
		// said about completeness yet.
		return
	}

	allComplete := true
	var newlyDead []byte

	for _, node := range w.nodes.All() {
		if node.IsComplete() {
			continue
		}

		if time.Since(node.StageEnteredAt()) >= StageStallThreshold {
			node.SetStage(StageDead)
			newlyDead = append(newlyDead, node.NodeID)
			continue
		}

		allComplete = false
	}

	if allComplete && w.state.SetInitializationComplete() {
		w.events.dispatch(Event{
			Kind:      EventInitializationCompleted,
			Timestamp: time.Now(),
			OwnNodeID: w.state.OwnNodeID(),
		})
	}

	for _, nodeID := range newlyDead {
		w.events.dispatch(Event{
			Kind:      EventNodeStatus,
			Timestamp: time.Now(),
			NodeID:    nodeID,
			Status:    NodeDead,
		})
	}
}

// Stop halts the ticking goroutine and waits for it to exit.
func (w *Watchdog) Stop() {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}
