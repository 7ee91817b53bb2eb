package gatt

// Status is the transport-level result code carried by write and read
// result events. Zero means success; any other value is stack-specific.
type Status int

const (
	// StatusSuccess indicates the operation completed on the remote peer.
	StatusSuccess Status = 0x00
	// StatusError is the generic stack failure code used when a transport
	// adapter has nothing more specific to report.
	StatusError Status = 0x85
)

// OK reports whether the status represents success.
func (s Status) OK() bool {
	return s == StatusSuccess
}

// LinkState is the physical link state reported by the transport. Values
// outside the recognized set are forwarded verbatim by adapters and logged
// by the dispatcher as an unknown-connection-state anomaly.
type LinkState int

const (
	LinkDisconnected LinkState = iota
	LinkConnected
)

func (s LinkState) String() string {
	switch s {
	case LinkDisconnected:
		return "disconnected"
	case LinkConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Event is the closed set of transport event variants multiplexed over the
// single event channel. All variants are routed by one dispatch function;
// the sealed marker keeps the set exhaustiveness-checkable.
type Event interface {
	event()
}

// LinkStateEvent reports a connection-state change of the physical link.
type LinkStateEvent struct {
	State  LinkState
	Status Status
}

// ServicesDiscoveredEvent reports that service discovery completed.
// Discovery failures surface as link loss, not as a discovered event.
type ServicesDiscoveredEvent struct{}

// DescriptorWriteResultEvent confirms (or fails) a descriptor write.
type DescriptorWriteResultEvent struct {
	Char   CharRef
	Desc   DescRef
	Status Status
}

// CharacteristicWriteResultEvent confirms (or fails) a characteristic write.
type CharacteristicWriteResultEvent struct {
	Char   CharRef
	Status Status
}

// CharacteristicChangedEvent carries an unsolicited notification or
// indication payload.
type CharacteristicChangedEvent struct {
	Char  CharRef
	Value []byte
}

// CharacteristicReadResultEvent carries the result of an explicit read.
// The dispatcher accepts it for diagnostics only; no facade operation
// depends on it.
type CharacteristicReadResultEvent struct {
	Char   CharRef
	Value  []byte
	Status Status
}

func (LinkStateEvent) event()                 {}
func (ServicesDiscoveredEvent) event()        {}
func (DescriptorWriteResultEvent) event()     {}
func (CharacteristicWriteResultEvent) event() {}
func (CharacteristicChangedEvent) event()     {}
func (CharacteristicReadResultEvent) event()  {}
