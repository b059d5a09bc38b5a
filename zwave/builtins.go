package zwave

import "fmt"

// Protocol-info response bits (IdentifyNode / ZW_GetNodeProtocolInfo).
const (
	capabilityListening         byte = 0x80
	securityFrequentlyListening byte = 0x60 // either beam-wakeup interval bit
)

// registerBuiltins installs the processors the initialization chain and
// SendData callback semantics require. Applications may Register replacement
// or additional processors for command-class payloads this driver does not
// interpret itself.
func registerBuiltins(r *ProcessorRegistry) {
	r.Register(ClassGetVersion, MessageProcessorFunc(processGetVersion))
	r.Register(ClassMemoryGetId, MessageProcessorFunc(processMemoryGetId))
	r.Register(ClassSerialApiGetCapabilities, MessageProcessorFunc(processGetCapabilities))
	r.Register(ClassSerialApiGetInitData, MessageProcessorFunc(processGetInitData))
	r.Register(ClassIdentifyNode, MessageProcessorFunc(processIdentifyNode))
	r.Register(ClassSendData, MessageProcessorFunc(processSendData))
}

// processGetVersion handles the GetVersion response: a NUL-terminated ASCII
// firmware version string followed by the 1-byte library type.
func processGetVersion(ctx *ProcessorContext, frame Frame, _ *SerialMessage) ProcessorResult {
	if frame.MessageType != TypeResponse || len(frame.Payload) < 1 {
		return ProcessorResult{}
	}

	libType := frame.Payload[len(frame.Payload)-1]
	versionBytes := frame.Payload[:len(frame.Payload)-1]
	ctx.State.setVersion(string(versionBytes), libType)
	return ProcessorResult{TransactionComplete: true}
}

// processMemoryGetId handles the MemoryGetId response: 4-byte big-endian
// homeId followed by the 1-byte ownNodeId.
func processMemoryGetId(ctx *ProcessorContext, frame Frame, _ *SerialMessage) ProcessorResult {
	if frame.MessageType != TypeResponse || len(frame.Payload) < 5 {
		return ProcessorResult{}
	}

	homeID := uint32(frame.Payload[0])<<24 | uint32(frame.Payload[1])<<16 |
		uint32(frame.Payload[2])<<8 | uint32(frame.Payload[3])
	ownNodeID := frame.Payload[4]
	ctx.State.setIdentity(homeID, ownNodeID)
	return ProcessorResult{TransactionComplete: true}
}

// processGetCapabilities handles the SerialApiGetCapabilities response
// (serial API version major/minor, then 2-byte manufacturer, device type,
// and device ID), pre-populates the controller's own node, and chains to
// SerialApiGetInitData.
func processGetCapabilities(ctx *ProcessorContext, frame Frame, _ *SerialMessage) ProcessorResult {
	if frame.MessageType != TypeResponse || len(frame.Payload) < 8 {
		return ProcessorResult{}
	}

	serialAPIVersion := fmt.Sprintf("%d.%d", frame.Payload[0], frame.Payload[1])
	manufacturerID := uint16(frame.Payload[2])<<8 | uint16(frame.Payload[3])
	deviceType := uint16(frame.Payload[4])<<8 | uint16(frame.Payload[5])
	deviceID := uint16(frame.Payload[6])<<8 | uint16(frame.Payload[7])
	ctx.State.setCapabilities(serialAPIVersion, manufacturerID, deviceType, deviceID)

	// The stick's own node is never interrogated over the air.
	own := ctx.Nodes.GetOrCreate(ctx.State.OwnNodeID(), ctx.State.HomeID())
	own.MarkController()
	own.SetStage(StageDone)

	ctx.Submit(NewSerialMessage(ClassSerialApiGetInitData, TypeRequest, PriorityHigh, nil))
	return ProcessorResult{TransactionComplete: true}
}

// processGetInitData handles the SerialApiGetInitData response: creates one
// Node per present node ID, advances each to StageProtoInfo, and enqueues the
// IdentifyNode query whose response carries the node's protocol info.
//
// Wire format: byte0 = API version, byte1 = capabilities, byte2 = node
// bitmask length, then the bitmask itself (node N present iff bit (N-1) is
// set), followed by chip type and chip version bytes this driver does not
// need.
func processGetInitData(ctx *ProcessorContext, frame Frame, _ *SerialMessage) ProcessorResult {
	if frame.MessageType != TypeResponse || len(frame.Payload) < 3 {
		return ProcessorResult{}
	}

	bitmaskLen := int(frame.Payload[2])
	if len(frame.Payload) < 3+bitmaskLen {
		return ProcessorResult{}
	}
	bitmask := frame.Payload[3 : 3+bitmaskLen]

	ownNodeID := ctx.State.OwnNodeID()
	homeID := ctx.State.HomeID()
	for i, b := range bitmask {
		for bit := 0; bit < 8; bit++ {
			if b&(1<<uint(bit)) == 0 {
				continue
			}
			nodeID := byte(i*8 + bit + 1)
			if nodeID == ownNodeID {
				continue // pre-populated from capabilities, never queried
			}

			node := ctx.Nodes.GetOrCreate(nodeID, homeID)
			node.SetStage(StageProtoInfo)
			ctx.Submit(NewSerialMessage(ClassIdentifyNode, TypeRequest, PriorityHigh, []byte{nodeID}))
		}
	}

	return ProcessorResult{TransactionComplete: true}
}

// processIdentifyNode handles the IdentifyNode (protocol info) response:
// capability byte, security byte, a reserved byte, then the basic, generic,
// and specific device classes. The stick does not echo the node ID, so the
// target is taken from the in-flight request's payload.
func processIdentifyNode(ctx *ProcessorContext, frame Frame, inFlight *SerialMessage) ProcessorResult {
	if frame.MessageType != TypeResponse || len(frame.Payload) < 6 {
		return ProcessorResult{}
	}
	if inFlight == nil || inFlight.MessageClass != ClassIdentifyNode || len(inFlight.Payload) < 1 {
		return ProcessorResult{}
	}

	node := ctx.Nodes.Get(inFlight.Payload[0])
	if node == nil {
		return ProcessorResult{TransactionComplete: true}
	}

	node.SetListeningFlags(
		frame.Payload[0]&capabilityListening != 0,
		frame.Payload[1]&securityFrequentlyListening != 0,
	)
	node.SetDeviceClasses(frame.Payload[3], frame.Payload[4], frame.Payload[5])
	node.SetStage(StageDone)
	return ProcessorResult{TransactionComplete: true}
}

// processSendData handles both halves of a SendData transaction: the
// synchronous Response (accepted or rejected by the stick's transmit queue,
// never the completion) and the asynchronous callback Request carrying the
// echoed callback ID.
func processSendData(_ *ProcessorContext, frame Frame, inFlight *SerialMessage) ProcessorResult {
	switch frame.MessageType {
	case TypeResponse:
		// The real completion is the asynchronous Request below.
		return ProcessorResult{}
	case TypeRequest:
		if inFlight == nil || len(frame.Payload) < 1 {
			return ProcessorResult{}
		}
		echoedCallbackID := frame.Payload[0]
		if echoedCallbackID != inFlight.CallbackID {
			return ProcessorResult{}
		}
		return ProcessorResult{TransactionComplete: true}
	default:
		return ProcessorResult{}
	}
}
