package zwave

import "sync"

// Counters tallies protocol-level event counts. Individual getters are
// exposed on ControllerState alongside this struct so callers can read a
// single counter without copying the whole set.
type Counters struct {
	SOF     uint64
	ACK     uint64
	NAK     uint64
	CAN     uint64
	OOF     uint64
	Timeout uint64
}

// ControllerState is the shared, mutable state of the stick itself: identity,
// firmware versions, protocol counters, and the callback-ID counter. It is
// threaded explicitly into MessageProcessors via ProcessorContext rather than
// read from package-level state.
//
// Identity fields are written from the engine goroutine (response processors)
// and read from arbitrary caller goroutines, so every access goes through the
// lock.
type ControllerState struct {
	mu sync.RWMutex

	homeID           uint32
	ownNodeID        byte
	version          string // firmware version string, from GetVersion
	libraryType      byte
	serialAPIVersion string // "major.minor", from SerialApiGetCapabilities
	manufacturerID   uint16
	deviceType       uint16
	deviceID         uint16
	isConnected      bool

	initializationComplete bool

	counters Counters

	callbackIDCounter byte // wraps 255->1, never emits 0
}

// NewControllerState returns a fresh, disconnected, uninitialized state.
func NewControllerState() *ControllerState {
	return &ControllerState{}
}

// NextCallbackID returns the next callback ID, 1..255, wrapping 255->1 and
// never emitting 0 (0 marks "no callback assigned").
func (s *ControllerState) NextCallbackID() byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbackIDCounter++
	if s.callbackIDCounter == 0 {
		s.callbackIDCounter = 1
	}
	return s.callbackIDCounter
}

// SetInitializationComplete transitions initializationComplete false->true.
// Returns true the first time it is called, so the caller can emit the
// InitializationCompleted event exactly once; subsequent calls are no-ops
// returning false.
func (s *ControllerState) SetInitializationComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initializationComplete {
		return false
	}
	s.initializationComplete = true
	return true
}

// InitializationComplete reports the current value.
func (s *ControllerState) InitializationComplete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initializationComplete
}

// IsReady reports link-up AND initialization-complete, the two conditions a
// caller needs before issuing node commands.
func (s *ControllerState) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isConnected && s.initializationComplete
}

func (s *ControllerState) setConnected(v bool) {
	s.mu.Lock()
	s.isConnected = v
	s.mu.Unlock()
}

// HomeID returns the 32-bit home ID reported by MemoryGetId.
func (s *ControllerState) HomeID() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.homeID
}

// OwnNodeID returns the stick's own node ID reported by MemoryGetId.
func (s *ControllerState) OwnNodeID() byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownNodeID
}

// Version returns the firmware version string reported by GetVersion.
func (s *ControllerState) Version() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// LibraryType returns the library type byte reported by GetVersion.
func (s *ControllerState) LibraryType() byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.libraryType
}

// SerialAPIVersion returns the "major.minor" serial API version reported by
// SerialApiGetCapabilities.
func (s *ControllerState) SerialAPIVersion() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.serialAPIVersion
}

// ManufacturerID returns the manufacturer ID reported by
// SerialApiGetCapabilities.
func (s *ControllerState) ManufacturerID() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manufacturerID
}

// DeviceType returns the device type reported by SerialApiGetCapabilities.
func (s *ControllerState) DeviceType() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceType
}

// DeviceID returns the device ID reported by SerialApiGetCapabilities.
func (s *ControllerState) DeviceID() uint16 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}

func (s *ControllerState) incSOF()     { s.mu.Lock(); s.counters.SOF++; s.mu.Unlock() }
func (s *ControllerState) incACK()     { s.mu.Lock(); s.counters.ACK++; s.mu.Unlock() }
func (s *ControllerState) incNAK()     { s.mu.Lock(); s.counters.NAK++; s.mu.Unlock() }
func (s *ControllerState) incCAN()     { s.mu.Lock(); s.counters.CAN++; s.mu.Unlock() }
func (s *ControllerState) incOOF()     { s.mu.Lock(); s.counters.OOF++; s.mu.Unlock() }
func (s *ControllerState) incTimeout() { s.mu.Lock(); s.counters.Timeout++; s.mu.Unlock() }

// Counters returns a snapshot of the protocol counters.
func (s *ControllerState) Counters() Counters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counters
}

func (s *ControllerState) SOFCount() uint64     { return s.Counters().SOF }
func (s *ControllerState) ACKCount() uint64     { return s.Counters().ACK }
func (s *ControllerState) NAKCount() uint64     { return s.Counters().NAK }
func (s *ControllerState) CANCount() uint64     { return s.Counters().CAN }
func (s *ControllerState) OOFCount() uint64     { return s.Counters().OOF }
func (s *ControllerState) TimeoutCount() uint64 { return s.Counters().Timeout }

// setVersion applies a GetVersion response.
func (s *ControllerState) setVersion(version string, libraryType byte) {
	s.mu.Lock()
	s.version = version
	s.libraryType = libraryType
	s.mu.Unlock()
}

// setIdentity applies a MemoryGetId response.
func (s *ControllerState) setIdentity(homeID uint32, ownNodeID byte) {
	s.mu.Lock()
	s.homeID = homeID
	s.ownNodeID = ownNodeID
	s.mu.Unlock()
}

// setCapabilities applies a SerialApiGetCapabilities response.
func (s *ControllerState) setCapabilities(serialAPIVersion string, manufacturerID, deviceType, deviceID uint16) {
	s.mu.Lock()
	s.serialAPIVersion = serialAPIVersion
	s.manufacturerID = manufacturerID
	s.deviceType = deviceType
	s.deviceID = deviceID
	s.mu.Unlock()
}
