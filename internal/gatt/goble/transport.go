// Package goble adapts the go-ble/ble client to the gatt.Transport
// boundary: synchronous go-ble calls run in named worker goroutines and
// their outcomes are republished as tagged events on the single transport
// event channel the core dispatches from.
package goble

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"
	"github.com/sirupsen/logrus"

	"github.com/srg/gattlink/internal/bledb"
	"github.com/srg/gattlink/internal/gatt"
	"github.com/srg/gattlink/internal/groutine"
)

const (
	// DefaultEventBuffer is the capacity of the transport event channel.
	DefaultEventBuffer = 64

	// DefaultConnectTimeout bounds the dial when ConnectTimeout is unset.
	DefaultConnectTimeout = 30 * time.Second
)

// DeviceFactory creates ble.Device instances (can be overridden in tests)
var DeviceFactory = func() (ble.Device, error) {
	return darwin.NewDevice()
}

// Options configures a Transport.
type Options struct {
	// ConnectTimeout bounds connection establishment. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration
}

// Transport is a gatt.Transport backed by go-ble/ble for a single peer
// address.
type Transport struct {
	address string
	opts    Options
	logger  *logrus.Logger

	events chan gatt.Event
	emitMu sync.RWMutex
	closed bool

	mu     sync.Mutex
	client ble.Client
	refs   *profileRefs
}

// NewTransport creates a transport for the peer at address. Nothing is
// dialed until Connect.
func NewTransport(address string, opts *Options, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	t := &Transport{
		address: address,
		logger:  logger,
		events:  make(chan gatt.Event, DefaultEventBuffer),
	}
	if opts != nil {
		t.opts = *opts
	}
	if t.opts.ConnectTimeout == 0 {
		t.opts.ConnectTimeout = DefaultConnectTimeout
	}
	return t
}

// Events returns the single event channel for this transport instance.
func (t *Transport) Events() <-chan gatt.Event {
	return t.events
}

// Connect dials the peer asynchronously; the outcome arrives as a
// LinkStateEvent. Returns false only when the call could not be issued.
func (t *Transport) Connect(autoConnect bool) bool {
	if strings.TrimSpace(t.address) == "" {
		t.logger.Error("Connect attempt with empty address")
		return false
	}
	if autoConnect {
		// go-ble has no native auto-reconnect; the flag is accepted and
		// ignored so callers keep one code path across transports.
		t.logger.Debug("auto-connect is not supported by go-ble, ignoring")
	}

	groutine.Go(context.Background(), "goble-connect", func(context.Context) {
		dev, err := DeviceFactory()
		if err != nil {
			t.logger.WithField("error", err).Error("Failed to create BLE device")
			t.emit(gatt.LinkStateEvent{State: gatt.LinkDisconnected, Status: gatt.StatusError})
			return
		}
		ble.SetDefaultDevice(dev)

		dialCtx, cancel := context.WithTimeout(context.Background(), t.opts.ConnectTimeout)
		defer cancel()

		t.logger.WithField("address", t.address).Debug("Dialing BLE device...")
		client, err := ble.Dial(dialCtx, ble.NewAddr(t.address))
		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"address": t.address,
				"error":   err,
			}).Error("Failed to dial BLE device")
			t.emit(gatt.LinkStateEvent{State: gatt.LinkDisconnected, Status: gatt.StatusError})
			return
		}

		t.mu.Lock()
		t.client = client
		t.mu.Unlock()

		// CoreBluetooth reports link loss through the client's
		// Disconnected channel (Darwin-specific).
		if darwinClient, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
			groutine.Go(context.Background(), "goble-link-monitor", func(context.Context) {
				<-darwinClient.Disconnected()
				t.logger.Warn("BLE stack reported disconnection")
				t.emit(gatt.LinkStateEvent{State: gatt.LinkDisconnected, Status: gatt.StatusError})
			})
		} else {
			t.logger.Debug("Client does not support Disconnected() channel (non-Darwin platform?)")
		}

		t.emit(gatt.LinkStateEvent{State: gatt.LinkConnected})
	})
	return true
}

// DiscoverServices discovers the peer's profile asynchronously. Completion
// arrives as a ServicesDiscoveredEvent; discovery failure as link loss.
func (t *Transport) DiscoverServices() bool {
	client := t.snapshotClient()
	if client == nil {
		t.logger.Error("DiscoverServices called without an established link")
		return false
	}

	groutine.Go(context.Background(), "goble-discover", func(context.Context) {
		profile, err := client.DiscoverProfile(true)
		if err != nil {
			t.logger.WithField("error", err).Error("Failed to discover profile")
			t.emit(gatt.LinkStateEvent{State: gatt.LinkDisconnected, Status: gatt.StatusError})
			return
		}

		refs := buildProfileRefs(profile)
		t.mu.Lock()
		t.refs = refs
		t.mu.Unlock()

		for svcRef, svc := range refs.services {
			t.logger.WithFields(logrus.Fields{
				"service_uuid": string(svcRef),
				"known_name":   bledb.LookupService(string(svcRef)),
				"chars":        len(svc.Characteristics),
			}).Debug("Found service")
		}
		t.logger.WithFields(logrus.Fields{
			"services":        len(refs.services),
			"characteristics": len(refs.chars),
		}).Info("Profile discovered")

		t.emit(gatt.ServicesDiscoveredEvent{})
	})
	return true
}

// WriteCharacteristic issues a confirmed write in a worker goroutine; the
// outcome arrives as a CharacteristicWriteResultEvent.
func (t *Transport) WriteCharacteristic(char gatt.CharRef, value []byte) bool {
	client, entry := t.snapshotChar(char)
	if client == nil || entry == nil {
		t.logger.WithField("char", string(char)).Error("Characteristic write without a live handle")
		return false
	}

	groutine.Go(context.Background(), "goble-char-write", func(context.Context) {
		err := client.WriteCharacteristic(entry.char, value, false)
		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"char":  string(char),
				"error": err,
			}).Error("Characteristic write failed")
		}
		t.emit(gatt.CharacteristicWriteResultEvent{Char: char, Status: statusFrom(err)})
	})
	return true
}

// WriteDescriptor issues a descriptor write in a worker goroutine; the
// outcome arrives as a DescriptorWriteResultEvent.
func (t *Transport) WriteDescriptor(char gatt.CharRef, desc gatt.DescRef, value []byte) bool {
	client, entry := t.snapshotChar(char)
	if client == nil || entry == nil {
		t.logger.WithField("char", string(char)).Error("Descriptor write without a live handle")
		return false
	}
	d, ok := entry.descs[desc]
	if !ok {
		t.logger.WithFields(logrus.Fields{
			"char": string(char),
			"desc": string(desc),
		}).Error("Descriptor write for unknown descriptor")
		return false
	}

	groutine.Go(context.Background(), "goble-desc-write", func(context.Context) {
		err := client.WriteDescriptor(d, value)
		if err != nil {
			t.logger.WithFields(logrus.Fields{
				"char":  string(char),
				"desc":  string(desc),
				"error": err,
			}).Error("Descriptor write failed")
		}
		t.emit(gatt.DescriptorWriteResultEvent{Char: char, Desc: desc, Status: statusFrom(err)})
	})
	return true
}

// SetCharacteristicNotification toggles local delivery of notification
// payloads for char. Incoming payloads are republished as
// CharacteristicChangedEvents.
func (t *Transport) SetCharacteristicNotification(char gatt.CharRef, enable bool) bool {
	client, entry := t.snapshotChar(char)
	if client == nil || entry == nil {
		t.logger.WithField("char", string(char)).Error("Notification toggle without a live handle")
		return false
	}

	if !enable {
		// Try both modes; only a double failure counts as rejection.
		errNotify := client.Unsubscribe(entry.char, false)
		errIndicate := client.Unsubscribe(entry.char, true)
		if errNotify != nil && errIndicate != nil {
			t.logger.WithFields(logrus.Fields{
				"char":        string(char),
				"notifyErr":   errNotify,
				"indicateErr": errIndicate,
			}).Error("Failed to unsubscribe from characteristic")
			return false
		}
		return true
	}

	// Prefer notifications; fall back to indications when the
	// characteristic only supports those.
	indicate := entry.char.Property&ble.CharNotify == 0
	err := client.Subscribe(entry.char, indicate, func(data []byte) {
		// go-ble reuses the payload buffer across callbacks.
		t.emit(gatt.CharacteristicChangedEvent{Char: char, Value: append([]byte(nil), data...)})
	})
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"char":     string(char),
			"indicate": indicate,
			"error":    err,
		}).Error("Failed to subscribe to characteristic")
		return false
	}
	return true
}

// Close cancels the connection and closes the event channel. Idempotent.
func (t *Transport) Close() error {
	t.emitMu.Lock()
	if t.closed {
		t.emitMu.Unlock()
		return nil
	}
	t.closed = true
	t.emitMu.Unlock()

	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	var err error
	if client != nil {
		err = client.CancelConnection()
	}
	close(t.events)
	return err
}

// emit publishes an event unless the transport is closed. The read lock
// keeps Close from closing the channel mid-send.
func (t *Transport) emit(ev gatt.Event) {
	t.emitMu.RLock()
	defer t.emitMu.RUnlock()
	if t.closed {
		t.logger.WithField("event", ev).Debug("Dropping event on closed transport")
		return
	}
	t.events <- ev
}

func (t *Transport) snapshotClient() ble.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client
}

func (t *Transport) snapshotChar(char gatt.CharRef) (ble.Client, *charEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.client, t.charEntryLocked(char)
}

func statusFrom(err error) gatt.Status {
	if err == nil {
		return gatt.StatusSuccess
	}
	return gatt.StatusError
}
