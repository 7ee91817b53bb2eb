// Package testutils provides a scripted, in-memory gatt.Transport and a
// testify suite base for driving the core through transport events without
// hardware.
package testutils

import (
	"sync"

	"github.com/srg/gattlink/internal/gatt"
)

// CharWrite records one issued characteristic write.
type CharWrite struct {
	Char  gatt.CharRef
	Value []byte
}

// DescWrite records one issued descriptor write.
type DescWrite struct {
	Char  gatt.CharRef
	Desc  gatt.DescRef
	Value []byte
}

// NotifyToggle records one local notification toggle.
type NotifyToggle struct {
	Char   gatt.CharRef
	Enable bool
}

// FakeTransport is a scripted gatt.Transport. Issue methods record their
// arguments and return the scripted accept/reject flags; tests then inject
// transport events with the Emit helpers and the core dispatches them as if
// they came from a real stack.
//
// By default every issue call is accepted and every characteristic carries
// a client characteristic configuration descriptor.
type FakeTransport struct {
	mu sync.Mutex

	events chan gatt.Event
	closed bool

	// Scripted accept/reject flags for issue calls.
	ConnectOK    bool
	DiscoverOK   bool
	WriteCharOK  bool
	WriteDescOK  bool
	SetNotifyOK  bool
	missingCCCD  map[gatt.CharRef]bool
	connectCalls int
	discovers    int
	charWrites   []CharWrite
	descWrites   []DescWrite
	toggles      []NotifyToggle
}

// NewFakeTransport creates a fake that accepts every issue call.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		events:      make(chan gatt.Event, 16),
		ConnectOK:   true,
		DiscoverOK:  true,
		WriteCharOK: true,
		WriteDescOK: true,
		SetNotifyOK: true,
		missingCCCD: make(map[gatt.CharRef]bool),
	}
}

// WithoutConfigDescriptor scripts char to have no client characteristic
// configuration descriptor.
func (t *FakeTransport) WithoutConfigDescriptor(char string) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.missingCCCD[gatt.CharRef(gatt.NormalizeUUID(char))] = true
	return t
}

// ----------------------------
// gatt.Transport implementation
// ----------------------------

func (t *FakeTransport) Events() <-chan gatt.Event {
	return t.events
}

func (t *FakeTransport) Connect(bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectCalls++
	return t.ConnectOK
}

func (t *FakeTransport) DiscoverServices() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.discovers++
	return t.DiscoverOK
}

func (t *FakeTransport) WriteCharacteristic(char gatt.CharRef, value []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.charWrites = append(t.charWrites, CharWrite{Char: char, Value: value})
	return t.WriteCharOK
}

func (t *FakeTransport) WriteDescriptor(char gatt.CharRef, desc gatt.DescRef, value []byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.descWrites = append(t.descWrites, DescWrite{Char: char, Desc: desc, Value: value})
	return t.WriteDescOK
}

func (t *FakeTransport) SetCharacteristicNotification(char gatt.CharRef, enable bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.toggles = append(t.toggles, NotifyToggle{Char: char, Enable: enable})
	return t.SetNotifyOK
}

func (t *FakeTransport) LookupService(uuid string) (gatt.ServiceRef, bool) {
	return gatt.ServiceRef(gatt.NormalizeUUID(uuid)), true
}

func (t *FakeTransport) LookupCharacteristic(_ gatt.ServiceRef, uuid string) (gatt.CharRef, bool) {
	return gatt.CharRef(gatt.NormalizeUUID(uuid)), true
}

func (t *FakeTransport) LookupDescriptor(char gatt.CharRef, uuid string) (gatt.DescRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.missingCCCD[char] {
		return "", false
	}
	return gatt.DescRef(gatt.NormalizeUUID(uuid)), true
}

func (t *FakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.events)
	}
	return nil
}

// ----------------------------
// Event injection
// ----------------------------

func (t *FakeTransport) emit(ev gatt.Event) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}
	t.events <- ev
}

// EmitLinkUp injects a connected link-state event.
func (t *FakeTransport) EmitLinkUp() {
	t.emit(gatt.LinkStateEvent{State: gatt.LinkConnected})
}

// EmitLinkDown injects a disconnected link-state event.
func (t *FakeTransport) EmitLinkDown(status gatt.Status) {
	t.emit(gatt.LinkStateEvent{State: gatt.LinkDisconnected, Status: status})
}

// EmitLinkState injects a raw link-state event, unknown states included.
func (t *FakeTransport) EmitLinkState(state gatt.LinkState) {
	t.emit(gatt.LinkStateEvent{State: state})
}

// EmitServicesDiscovered injects a discovery-complete event.
func (t *FakeTransport) EmitServicesDiscovered() {
	t.emit(gatt.ServicesDiscoveredEvent{})
}

// EmitCharWriteResult injects a characteristic write result for char.
func (t *FakeTransport) EmitCharWriteResult(char string, status gatt.Status) {
	t.emit(gatt.CharacteristicWriteResultEvent{
		Char:   gatt.CharRef(gatt.NormalizeUUID(char)),
		Status: status,
	})
}

// EmitDescWriteResult injects a descriptor write result for (char, desc).
func (t *FakeTransport) EmitDescWriteResult(char, desc string, status gatt.Status) {
	t.emit(gatt.DescriptorWriteResultEvent{
		Char:   gatt.CharRef(gatt.NormalizeUUID(char)),
		Desc:   gatt.DescRef(gatt.NormalizeUUID(desc)),
		Status: status,
	})
}

// EmitChanged injects an unsolicited notification payload for char.
func (t *FakeTransport) EmitChanged(char string, value []byte) {
	t.emit(gatt.CharacteristicChangedEvent{
		Char:  gatt.CharRef(gatt.NormalizeUUID(char)),
		Value: value,
	})
}

// EmitReadResult injects an explicit read result for char.
func (t *FakeTransport) EmitReadResult(char string, value []byte, status gatt.Status) {
	t.emit(gatt.CharacteristicReadResultEvent{
		Char:   gatt.CharRef(gatt.NormalizeUUID(char)),
		Value:  value,
		Status: status,
	})
}

// ----------------------------
// Recorded-call accessors
// ----------------------------

// ConnectCalls returns how many times Connect was issued.
func (t *FakeTransport) ConnectCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connectCalls
}

// DiscoverCalls returns how many times DiscoverServices was issued.
func (t *FakeTransport) DiscoverCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.discovers
}

// CharWrites returns a snapshot of issued characteristic writes.
func (t *FakeTransport) CharWrites() []CharWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]CharWrite(nil), t.charWrites...)
}

// DescWrites returns a snapshot of issued descriptor writes.
func (t *FakeTransport) DescWrites() []DescWrite {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]DescWrite(nil), t.descWrites...)
}

// NotifyToggles returns a snapshot of issued local notification toggles.
func (t *FakeTransport) NotifyToggles() []NotifyToggle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]NotifyToggle(nil), t.toggles...)
}
