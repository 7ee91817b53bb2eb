package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/gattlink/internal/bledb"
	"github.com/srg/gattlink/internal/gatt"
)

// charEntry ties a characteristic ref to its live go-ble handle, owning
// service and descriptor handles.
type charEntry struct {
	service gatt.ServiceRef
	char    *ble.Characteristic
	descs   map[gatt.DescRef]*ble.Descriptor
}

// profileRefs indexes a discovered go-ble profile by normalized UUID so the
// core can address services, characteristics and descriptors through opaque
// string refs.
type profileRefs struct {
	services map[gatt.ServiceRef]*ble.Service
	chars    map[gatt.CharRef]*charEntry
}

// buildProfileRefs flattens a discovered profile into lookup maps. UUIDs
// are normalized (lowercase, dash-free, SIG base UUIDs collapsed to short
// form) the same way lookups normalize their arguments.
func buildProfileRefs(profile *ble.Profile) *profileRefs {
	refs := &profileRefs{
		services: make(map[gatt.ServiceRef]*ble.Service),
		chars:    make(map[gatt.CharRef]*charEntry),
	}

	for _, svc := range profile.Services {
		svcRef := gatt.ServiceRef(bledb.NormalizeUUID(svc.UUID.String()))
		refs.services[svcRef] = svc

		for _, char := range svc.Characteristics {
			entry := &charEntry{
				service: svcRef,
				char:    char,
				descs:   make(map[gatt.DescRef]*ble.Descriptor, len(char.Descriptors)),
			}
			for _, desc := range char.Descriptors {
				entry.descs[gatt.DescRef(bledb.NormalizeUUID(desc.UUID.String()))] = desc
			}
			refs.chars[gatt.CharRef(bledb.NormalizeUUID(char.UUID.String()))] = entry
		}
	}

	return refs
}

// LookupService resolves a service UUID to its transport handle.
func (t *Transport) LookupService(uuid string) (gatt.ServiceRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refs == nil {
		return "", false
	}
	ref := gatt.ServiceRef(bledb.NormalizeUUID(uuid))
	_, ok := t.refs.services[ref]
	return ref, ok
}

// LookupCharacteristic resolves a characteristic UUID within a service.
func (t *Transport) LookupCharacteristic(svc gatt.ServiceRef, uuid string) (gatt.CharRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.refs == nil {
		return "", false
	}
	ref := gatt.CharRef(bledb.NormalizeUUID(uuid))
	entry, ok := t.refs.chars[ref]
	if !ok || entry.service != svc {
		return "", false
	}
	return ref, ok
}

// LookupDescriptor resolves a descriptor UUID within a characteristic.
func (t *Transport) LookupDescriptor(char gatt.CharRef, uuid string) (gatt.DescRef, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry := t.charEntryLocked(char)
	if entry == nil {
		return "", false
	}
	ref := gatt.DescRef(bledb.NormalizeUUID(uuid))
	_, ok := entry.descs[ref]
	return ref, ok
}

// charEntryLocked returns the live handle bundle for char, or nil. Caller
// holds t.mu.
func (t *Transport) charEntryLocked(char gatt.CharRef) *charEntry {
	if t.refs == nil {
		return nil
	}
	return t.refs.chars[char]
}
