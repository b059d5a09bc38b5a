package zwave

import (
	"time"

	"github.com/google/uuid"
)

// MessageClass identifies the Z-Wave serial API function a message carries.
// Values match the legacy serial API function IDs used on the wire.
type MessageClass byte

// Message classes this driver issues or interprets. Unknown classes
// encountered on the wire are logged and ignored, never fatal.
const (
	ClassGetVersion                MessageClass = 0x15
	ClassMemoryGetId               MessageClass = 0x20
	ClassSerialApiGetCapabilities  MessageClass = 0x07
	ClassSerialApiGetInitData      MessageClass = 0x02
	ClassSerialApiSoftReset        MessageClass = 0x08
	ClassIdentifyNode              MessageClass = 0x41
	ClassRequestNodeInfo           MessageClass = 0x60
	ClassSendData                  MessageClass = 0x13
	ClassSendDataAbort             MessageClass = 0x16
	ClassAddNode                   MessageClass = 0x4a
	ClassRemoveFailedNode          MessageClass = 0x61
	ClassRequestNodeNeighborUpdate MessageClass = 0x48
	ClassGetRoutingInfo            MessageClass = 0x80
	ClassAssignReturnRoute         MessageClass = 0x46
	ClassAssignSucReturnRoute      MessageClass = 0x51
	ClassDeleteReturnRoute         MessageClass = 0x47
)

// MessageType distinguishes a host-originated Request from a stick Response.
type MessageType byte

const (
	TypeRequest  MessageType = 0x00
	TypeResponse MessageType = 0x01
)

// Priority orders messages in the send queue. Lower numeric value sorts
// first (i.e. is taken from the queue sooner).
type Priority int

const (
	PriorityHigh Priority = iota
	PrioritySet
	PriorityGet
	PriorityLow // battery nodes deferred until wake-up
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "High"
	case PrioritySet:
		return "Set"
	case PriorityGet:
		return "Get"
	case PriorityLow:
		return "Low"
	default:
		return "Unknown"
	}
}

// Transmit option bits carried in the SendData payload.
const (
	TransmitOptionACK       byte = 0x01
	TransmitOptionAutoRoute byte = 0x04
	TransmitOptionExplore   byte = 0x20

	// StandardTransmitOptions is the combination used by Controller.SendData.
	StandardTransmitOptions = TransmitOptionACK | TransmitOptionAutoRoute | TransmitOptionExplore // 0x25
)

// RetryAttempts is the attempt budget new messages start with. A var so
// configuration can adjust it process-wide.
var RetryAttempts = 3

// SerialMessage is a single pending or in-flight outbound message.
//
// Two messages compare as: higher-priority < lower-priority, ties broken by
// creation order (FIFO within a priority band). Priority is decided once, at
// enqueue time, so ordering stays a pure function of queue contents rather
// than of live node or controller state.
//
// For a SendData request, Payload is the command-class data only; the engine
// frames it on the wire as TargetNodeID, data length, Payload,
// TransmitOptions, CallbackID.
type SerialMessage struct {
	MessageClass      MessageClass
	MessageType       MessageType
	Priority          Priority
	Payload           []byte
	TargetNodeID      byte // 0 if not node-targeted
	CallbackID        byte // 0 means "none assigned"
	TransmitOptions   byte
	AttemptsRemaining int
	CreationTimestamp time.Time

	// TraceID tags the engine's log lines for this message: a failed write,
	// a NAK, a CAN, a timeout, and a discard after a timeout. Enqueue and
	// successful completion are not logged. Not transmitted on the wire.
	TraceID string

	seq uint64 // monotonically increasing, assigned by the queue for FIFO tie-breaks
}

// NewSerialMessage builds a message with the default attempt budget, a
// creation timestamp, and a fresh trace ID, ready to enqueue.
func NewSerialMessage(class MessageClass, typ MessageType, priority Priority, payload []byte) *SerialMessage {
	return &SerialMessage{
		MessageClass:      class,
		MessageType:       typ,
		Priority:          priority,
		Payload:           payload,
		AttemptsRemaining: RetryAttempts,
		CreationTimestamp: time.Now(),
		TraceID:           uuid.NewString(),
	}
}

// Less reports whether m sorts before other in the send queue.
func (m *SerialMessage) Less(other *SerialMessage) bool {
	if m.Priority != other.Priority {
		return m.Priority < other.Priority
	}
	return m.seq < other.seq
}

// IsSendData reports whether this message is a SendData request — the only
// class with asynchronous callback-based completion and a wake-up check.
func (m *SerialMessage) IsSendData() bool {
	return m.MessageClass == ClassSendData && m.MessageType == TypeRequest
}
