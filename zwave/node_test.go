package zwave

import (
	"testing"
	"time"
)

func TestNodeIsCompleteTerminalStages(t *testing.T) {
	n := NewNode(9, 0x1234)
	n.Listening = true

	if n.IsComplete() {
		t.Error("a listening node in StageEmptyNode must not be complete")
	}

	n.SetStage(StageDone)
	if !n.IsComplete() {
		t.Error("a node in StageDone must be complete")
	}

	n.SetStage(StageDead)
	if !n.IsComplete() {
		t.Error("a node in StageDead must be complete")
	}
}

func TestNodeIsCompleteNonListening(t *testing.T) {
	n := NewNode(7, 0x1234)
	n.Listening = false
	n.FrequentlyListening = false
	n.SetStage(StageProtoInfo)

	if !n.IsComplete() {
		t.Error("a non-listening, non-frequently-listening node must be excluded from dead-node checks regardless of stage")
	}
}

func TestNodeSetStageResetsStageEnteredAt(t *testing.T) {
	n := NewNode(3, 0x1234)
	first := n.StageEnteredAt()
	time.Sleep(5 * time.Millisecond)
	n.SetStage(StageProtoInfo)
	second := n.StageEnteredAt()

	if !second.After(first) {
		t.Error("SetStage must advance stageEnteredAt")
	}
}

func TestNodeWakeUpQueue(t *testing.T) {
	n := NewNode(7, 0x1234)
	m1 := NewSerialMessage(ClassSendData, TypeRequest, PriorityGet, nil)
	m2 := NewSerialMessage(ClassSendData, TypeRequest, PriorityGet, nil)

	n.QueueForWakeUp(m1)
	n.QueueForWakeUp(m2)

	drained := n.DrainWakeUpQueue()
	if len(drained) != 2 || drained[0] != m1 || drained[1] != m2 {
		t.Fatalf("DrainWakeUpQueue() = %v, want [m1, m2] in order", drained)
	}

	if len(n.DrainWakeUpQueue()) != 0 {
		t.Error("DrainWakeUpQueue() called again should return empty")
	}
}

func TestNodeRegistryGetOrCreate(t *testing.T) {
	r := NewNodeRegistry()
	a := r.GetOrCreate(5, 0xABCD)
	b := r.GetOrCreate(5, 0xABCD)
	if a != b {
		t.Error("GetOrCreate must return the same Node for a repeated nodeID")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	if r.Get(99) != nil {
		t.Error("Get() for an unknown node must return nil")
	}
}

func TestNodeRegistryClear(t *testing.T) {
	r := NewNodeRegistry()
	r.GetOrCreate(1, 0)
	r.GetOrCreate(2, 0)
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", r.Len())
	}
}
