package gatt

import "github.com/srg/gattlink/internal/bledb"

// ClientCharacteristicConfigUUID is the well-known UUID of the client
// characteristic configuration descriptor controlling notification and
// indication delivery.
const ClientCharacteristicConfigUUID = "00002902-0000-1000-8000-00805f9b34fb"

// NormalizeUUID is re-exported from bledb for convenience.
// It converts a UUID string to the internal lookup format (lowercase, no
// dashes, Bluetooth SIG base UUIDs collapsed to their 16-bit short form).
func NormalizeUUID(uuid string) string {
	return bledb.NormalizeUUID(uuid)
}

// NotifyMode selects the client characteristic configuration written when
// toggling server-initiated value delivery.
type NotifyMode int

const (
	// NotifyDisable turns off both notifications and indications.
	NotifyDisable NotifyMode = iota
	// NotifyEnable requests unacknowledged notifications.
	NotifyEnable
	// IndicateEnable requests acknowledged indications.
	IndicateEnable
)

func (m NotifyMode) String() string {
	switch m {
	case NotifyDisable:
		return "disable"
	case NotifyEnable:
		return "notify"
	case IndicateEnable:
		return "indicate"
	default:
		return "unknown"
	}
}

// descriptorValue returns the configuration bytes written verbatim to the
// client characteristic configuration descriptor.
func (m NotifyMode) descriptorValue() []byte {
	switch m {
	case NotifyEnable:
		return []byte{0x01, 0x00}
	case IndicateEnable:
		return []byte{0x02, 0x00}
	default:
		return []byte{0x00, 0x00}
	}
}

// localEnable reports whether local delivery on the transport should be
// switched on for this mode.
func (m NotifyMode) localEnable() bool {
	return m != NotifyDisable
}
