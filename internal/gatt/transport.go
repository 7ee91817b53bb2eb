package gatt

// ServiceRef is an opaque transport handle for a discovered service.
type ServiceRef string

// CharRef is an opaque transport handle for a discovered characteristic.
type CharRef string

// DescRef is an opaque transport handle for a discovered descriptor.
type DescRef string

// Transport is the boundary to the native BLE GATT stack. Issue methods
// return false when the stack rejected the call before any event could
// occur; every accepted call eventually produces exactly one matching
// event on the Events channel.
//
// The channel is the single unordered ingress for all transport events.
// Adapters may deliver from any goroutine but must close the channel once
// the transport is shut down.
type Transport interface {
	// Events returns the single event channel for this transport instance.
	Events() <-chan Event

	// Connect initiates connection establishment to the peer the transport
	// was created for. The outcome arrives as a LinkStateEvent.
	Connect(autoConnect bool) bool

	// DiscoverServices initiates service discovery on an established link.
	// Completion arrives as a ServicesDiscoveredEvent; failure as link loss.
	DiscoverServices() bool

	// WriteCharacteristic issues a confirmed write. The outcome arrives as
	// a CharacteristicWriteResultEvent for char.
	WriteCharacteristic(char CharRef, value []byte) bool

	// WriteDescriptor issues a descriptor write. The outcome arrives as a
	// DescriptorWriteResultEvent for (char, desc).
	WriteDescriptor(char CharRef, desc DescRef, value []byte) bool

	// SetCharacteristicNotification toggles local delivery of notification
	// and indication payloads for char. Synchronous; no event follows.
	SetCharacteristicNotification(char CharRef, enable bool) bool

	// LookupService resolves a service UUID to its transport handle.
	LookupService(uuid string) (ServiceRef, bool)

	// LookupCharacteristic resolves a characteristic UUID within a service.
	LookupCharacteristic(svc ServiceRef, uuid string) (CharRef, bool)

	// LookupDescriptor resolves a descriptor UUID within a characteristic.
	LookupDescriptor(char CharRef, uuid string) (DescRef, bool)

	// Close releases the transport and closes the event channel. The owner
	// of the device handle calls this; the core never closes it implicitly.
	Close() error
}
