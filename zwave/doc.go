// Package zwave implements a host-side driver for a Z-Wave serial controller
// ("stick") attached over a byte-oriented serial port.
//
// # Architecture
//
// The driver sits between application callers and the physical stick:
//
//	┌─────────────┐          ┌──────────────────┐          ┌───────┐
//	│   Caller    │  submit  │   Controller     │  frames  │ stick │
//	│ (app code)  │─────────►│  (this package)  │◄────────►│ (COM) │
//	└─────────────┘  events  └──────────────────┘          └───────┘
//
// Internally a single-outstanding-transaction state machine
// (TransactionEngine) coordinates a priority send queue, a dedicated receive
// loop, and per-node lifecycle tracking (NodeRegistry) watched over by a
// periodic Watchdog. Higher-level command class semantics, persistent device
// databases, and presentation of device state are explicitly out of scope —
// callers provide a MessageProcessor registry and an EventSink.
//
// # Thread Safety
//
// All exported types are safe for concurrent use from multiple goroutines.
//
// # References
//
//   - Z-Wave serial API framing: SOF/ACK/NAK/CAN control bytes over
//     115200-8N1, checksummed variable-length frames.
package zwave
