package zwave

import "testing"

// newConnectedTestController assembles a Controller against a fakePort,
// bypassing Connect/OpenSerialLink (which requires real hardware). Mirrors
// Controller.openAndStartLocked's wiring.
func newConnectedTestController(t *testing.T, wakeUp WakeUpChecker) (*Controller, *fakePort) {
	t.Helper()

	fport := newFakePort()
	link := newSerialLinkFromPort("fake", fport)

	c := &Controller{
		logger:   noopLogger{},
		registry: NewProcessorRegistry(),
		events:   &listenerList{},
		state:    NewControllerState(),
		nodes:    NewNodeRegistry(),
		queue:    NewPriorityQueue(),
		wakeUp:   wakeUp,
	}

	engine := NewTransactionEngine(link, c.queue, c.registry, c.nodes, c.state, c.events, c.logger)
	engine.SetWakeUpChecker(c.wakeUp)
	receive := NewReceiveLoop(link, engine, c.state, c.logger)

	c.link = link
	c.engine = engine
	c.receive = receive
	c.state.setConnected(true)

	go engine.Run()
	go receive.Run()

	t.Cleanup(func() {
		engine.Stop()
		receive.Stop()
		link.Close()
	})

	return c, fport
}

func TestControllerSendDataRejectsWrongClass(t *testing.T) {
	c, _ := newConnectedTestController(t, nil)

	err := c.SendData(NewSerialMessage(ClassGetVersion, TypeRequest, PriorityGet, nil))
	if err != ErrWrongMessageClass {
		t.Errorf("err = %v, want ErrWrongMessageClass", err)
	}
}

func TestControllerSendDataRejectsUnknownNode(t *testing.T) {
	c, _ := newConnectedTestController(t, nil)

	msg := NewSerialMessage(ClassSendData, TypeRequest, PriorityGet, []byte{9})
	msg.TargetNodeID = 9

	err := c.SendData(msg)
	if err == nil {
		t.Fatal("expected an error for an unregistered target node")
	}
}

func TestControllerSendDataBeforeConnectFails(t *testing.T) {
	c := NewController()

	msg := NewSerialMessage(ClassSendData, TypeRequest, PriorityGet, []byte{1})
	msg.TargetNodeID = 1

	if err := c.SendData(msg); err != ErrNotConnected {
		t.Errorf("err = %v, want ErrNotConnected", err)
	}
}

func TestControllerSendDataStampsCallbackAndTransmitOptions(t *testing.T) {
	c, _ := newConnectedTestController(t, nil)

	node := c.nodes.GetOrCreate(4, 0)
	node.Listening = true

	msg := NewSerialMessage(ClassSendData, TypeRequest, PriorityGet, []byte{4})
	msg.TargetNodeID = 4

	if err := c.SendData(msg); err != nil {
		t.Fatalf("SendData: %v", err)
	}

	if msg.TransmitOptions != StandardTransmitOptions {
		t.Errorf("TransmitOptions = %#x, want %#x", msg.TransmitOptions, StandardTransmitOptions)
	}
	if msg.CallbackID == 0 {
		t.Error("CallbackID must be assigned, never left at 0")
	}
	if node.SendCount() != 1 {
		t.Errorf("node SendCount = %d, want 1", node.SendCount())
	}
}

// alwaysAsleepController is distinct from engine_integration_test.go's
// alwaysAsleep to keep this file independently readable.
type alwaysAsleepController struct{}

func (alwaysAsleepController) IsAsleep(*Node) bool { return true }

func TestControllerSendDataDefersToWakeUpQueueForSleepingNode(t *testing.T) {
	c, _ := newConnectedTestController(t, alwaysAsleepController{})

	node := c.nodes.GetOrCreate(6, 0)
	node.Listening = false
	node.FrequentlyListening = false

	msg := NewSerialMessage(ClassSendData, TypeRequest, PriorityGet, []byte{6})
	msg.TargetNodeID = 6

	if err := c.SendData(msg); err != nil {
		t.Fatalf("SendData: %v", err)
	}

	if c.SendQueueLength() != 0 {
		t.Errorf("main queue length = %d, want 0 (message should be deferred)", c.SendQueueLength())
	}
	drained := node.DrainWakeUpQueue()
	if len(drained) != 1 || drained[0] != msg {
		t.Fatalf("expected msg on the sleeping node's wake-up queue, got %v", drained)
	}
}

func TestControllerSendDataLowPriorityBypassesWakeUpCheck(t *testing.T) {
	c, _ := newConnectedTestController(t, alwaysAsleepController{})

	node := c.nodes.GetOrCreate(8, 0)
	node.Listening = false
	node.FrequentlyListening = false

	msg := NewSerialMessage(ClassSendData, TypeRequest, PriorityLow, []byte{8})
	msg.TargetNodeID = 8

	if err := c.SendData(msg); err != nil {
		t.Fatalf("SendData: %v", err)
	}

	if c.SendQueueLength() != 1 {
		t.Errorf("main queue length = %d, want 1 (Low priority must bypass the wake-up check)", c.SendQueueLength())
	}
	if len(node.DrainWakeUpQueue()) != 0 {
		t.Error("Low priority message must not land on the wake-up queue")
	}
}

func TestControllerCloseIsIdempotentAndClearsState(t *testing.T) {
	c, _ := newConnectedTestController(t, nil)
	c.nodes.GetOrCreate(2, 0)

	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if c.nodes.Len() != 0 {
		t.Error("Close must clear the node registry")
	}
	if c.IsConnected() {
		t.Error("Close must leave the controller disconnected")
	}
}

func TestControllerConnectRejectsWhenAlreadyConnected(t *testing.T) {
	c, _ := newConnectedTestController(t, nil)

	if err := c.Connect("whatever"); err != ErrAlreadyConnected {
		t.Errorf("err = %v, want ErrAlreadyConnected", err)
	}
}

func TestControllerAddRemoveEventListener(t *testing.T) {
	c, _ := newConnectedTestController(t, nil)
	sink := &fakeEventSink{}

	c.AddEventListener(sink)
	c.events.dispatch(Event{Kind: EventTransactionCompleted})
	if len(sink.events) != 1 {
		t.Fatalf("events received = %d, want 1", len(sink.events))
	}

	c.RemoveEventListener(sink)
	c.events.dispatch(Event{Kind: EventTransactionCompleted})
	if len(sink.events) != 1 {
		t.Errorf("events received after removal = %d, want still 1", len(sink.events))
	}
}
