package gatt

import "fmt"

// OpKind identifies the variant of a pending operation.
type OpKind int

const (
	OpConnect OpKind = iota
	OpCharacteristicWrite
	OpDescriptorWrite
	OpNotificationRead
)

func (k OpKind) String() string {
	switch k {
	case OpConnect:
		return "connect"
	case OpCharacteristicWrite:
		return "characteristic_write"
	case OpDescriptorWrite:
		return "descriptor_write"
	case OpNotificationRead:
		return "notification_read"
	default:
		return fmt.Sprintf("op_kind_%d", int(k))
	}
}

// OpKey identifies one pending operation in the PendingTable. Keys compare
// by value; at most one live waiter may exist per key at any instant.
type OpKey struct {
	Kind OpKind
	Char CharRef
	Desc DescRef
}

// ConnectKey returns the singleton key for the connect operation.
func ConnectKey() OpKey {
	return OpKey{Kind: OpConnect}
}

// CharacteristicWriteKey returns the key for a confirmed write to char.
func CharacteristicWriteKey(char CharRef) OpKey {
	return OpKey{Kind: OpCharacteristicWrite, Char: char}
}

// DescriptorWriteKey returns the key for a descriptor write on the
// (characteristic, descriptor) pair.
func DescriptorWriteKey(char CharRef, desc DescRef) OpKey {
	return OpKey{Kind: OpDescriptorWrite, Char: char, Desc: desc}
}

// NotificationReadKey returns the key for a pending notification reader
// on char.
func NotificationReadKey(char CharRef) OpKey {
	return OpKey{Kind: OpNotificationRead, Char: char}
}

func (k OpKey) String() string {
	switch k.Kind {
	case OpConnect:
		return k.Kind.String()
	case OpDescriptorWrite:
		return fmt.Sprintf("%s %s/%s", k.Kind, k.Char, k.Desc)
	default:
		return fmt.Sprintf("%s %s", k.Kind, k.Char)
	}
}
