package gatt

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/gattlink/internal/groutine"
)

// Options configures a Peer.
type Options struct {
	// AutoConnect is passed through to Transport.Connect and asks the
	// native stack to re-establish the link on its own when it drops.
	AutoConnect bool
}

// Peer is the request surface over one connected GATT peer. Callers issue
// operations from arbitrary goroutines and suspend until the transport's
// event stream resolves them; a single dispatch goroutine owned by the
// Peer drains that stream and routes every event to the matching waiter,
// the notification buffer or the connection lifecycle.
//
// A Peer serves exactly one connection. Once the link is lost the peer is
// terminal; reconnecting requires a new Peer over a new Transport.
type Peer struct {
	transport Transport
	opts      Options
	logger    *logrus.Logger

	pending *PendingTable
	buffer  *NotificationBuffer
	lc      *lifecycle

	payloadMu sync.Mutex
	payloads  map[CharRef][]byte

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

// NewPeer creates a Peer over transport and starts its dispatch goroutine.
// The goroutine exits when the transport's event channel is closed; any
// waiters still outstanding at that point fail with ErrConnectionLost.
func NewPeer(transport Transport, opts *Options, logger *logrus.Logger) *Peer {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.PanicLevel)
	}
	p := &Peer{
		transport: transport,
		logger:    logger,
		pending:   NewPendingTable(logger),
		buffer:    NewNotificationBuffer(),
		lc:        newLifecycle(),
		payloads:  make(map[CharRef][]byte),
		done:      make(chan struct{}),
	}
	if opts != nil {
		p.opts = *opts
	}

	groutine.Go(context.Background(), "gatt-dispatch", func(context.Context) {
		p.dispatchLoop()
	})
	return p
}

// State returns the current connection lifecycle state.
func (p *Peer) State() State {
	return p.lc.State()
}

// Reason returns the cause recorded when the connection reached a terminal
// state, or nil.
func (p *Peer) Reason() error {
	return p.lc.Reason()
}

// Connect issues connection establishment and suspends until the link is
// ready (services discovered) or the attempt fails. A second call while a
// connect is in flight fails immediately with ErrAlreadyConnecting.
func (p *Peer) Connect(ctx context.Context) error {
	if err := p.lc.beginConnect(); err != nil {
		return err
	}

	key := ConnectKey()
	w, err := p.pending.Register(key)
	if err != nil {
		// The lifecycle gate makes this unreachable, but the table stays
		// authoritative for the one-waiter-per-key rule.
		return ErrAlreadyConnecting
	}

	p.logger.WithField("auto_connect", p.opts.AutoConnect).Info("Connecting to GATT peer...")

	if !p.transport.Connect(p.opts.AutoConnect) {
		rejected := opError(TransportRejected, "transport rejected connect")
		p.lc.fail(rejected)
		p.pending.Fail(key, rejected)
	}

	_, err = w.Await(ctx)
	return err
}

// WriteCharacteristic issues a confirmed write to char and suspends until
// the write result event arrives. If value is non-nil it replaces the
// characteristic's pending payload before the write is issued; a nil value
// reuses the previously set payload. Fails with ErrOperationInProgress if
// a write on char is already outstanding.
func (p *Peer) WriteCharacteristic(ctx context.Context, char string, value []byte) error {
	c := CharRef(NormalizeUUID(char))

	key := CharacteristicWriteKey(c)
	w, err := p.registerGuarded(key)
	if err != nil {
		return err
	}

	// Replace the pending payload only after the waiter is registered, so
	// a rejected duplicate leaves no trace behind.
	p.payloadMu.Lock()
	if value != nil {
		p.payloads[c] = value
	}
	payload := p.payloads[c]
	p.payloadMu.Unlock()

	p.logger.WithFields(logrus.Fields{
		"char": string(c),
		"len":  len(payload),
	}).Debug("Issuing characteristic write")

	if !p.transport.WriteCharacteristic(c, payload) {
		p.pending.Fail(key, opError(TransportRejected, "characteristic write rejected for %s", c))
	}

	_, err = w.Await(ctx)
	return err
}

// SetNotification toggles notification or indication delivery for char by
// writing its client characteristic configuration descriptor, and suspends
// until the descriptor write is acknowledged. Fails with
// ErrMissingConfigDescriptor if the characteristic has no such descriptor
// and with ErrOperationInProgress if a descriptor write for the pair is
// already outstanding.
func (p *Peer) SetNotification(ctx context.Context, char string, mode NotifyMode) error {
	c := CharRef(NormalizeUUID(char))

	d, ok := p.transport.LookupDescriptor(c, ClientCharacteristicConfigUUID)
	if !ok {
		return opError(MissingConfigDescriptor, "characteristic %s has no client characteristic configuration descriptor", c)
	}

	key := DescriptorWriteKey(c, d)
	w, err := p.registerGuarded(key)
	if err != nil {
		return err
	}

	p.logger.WithFields(logrus.Fields{
		"char": string(c),
		"mode": mode.String(),
	}).Debug("Configuring characteristic notifications")

	switch {
	case !p.transport.SetCharacteristicNotification(c, mode.localEnable()):
		p.pending.Fail(key, opError(TransportRejected, "local notification toggle rejected for %s", c))
	case !p.transport.WriteDescriptor(c, d, mode.descriptorValue()):
		p.pending.Fail(key, opError(TransportRejected, "descriptor write rejected for %s/%s", c, d))
	}

	_, err = w.Await(ctx)
	return err
}

// ReadCharacteristicChange returns the next notification payload for char.
// Buffered payloads are returned immediately in arrival order, one per
// call; with nothing buffered the call suspends until a notification
// arrives or the connection is lost. Fails with ErrOperationInProgress if
// another reader is already waiting on char.
func (p *Peer) ReadCharacteristicChange(ctx context.Context, char string) ([]byte, error) {
	c := CharRef(NormalizeUUID(char))
	key := NotificationReadKey(c)

	var w *Waiter
	payload, ok, err := p.buffer.PopOrRegister(c, func() error {
		var rerr error
		w, rerr = p.registerGuarded(key)
		return rerr
	})
	if err != nil {
		return nil, err
	}
	if ok {
		return payload, nil
	}
	return w.Await(ctx)
}

// ClearNotificationQueue drops buffered but unread notifications for char,
// e.g. to resynchronize after re-enabling notifications. Non-suspending.
func (p *Peer) ClearNotificationQueue(char string) {
	p.buffer.Clear(CharRef(NormalizeUUID(char)))
}

// ClearAllNotificationQueues drops buffered notifications for every
// characteristic. Non-suspending.
func (p *Peer) ClearAllNotificationQueues() {
	p.buffer.ClearAll()
}

// QueuedNotifications returns the number of buffered, unread notification
// payloads for char.
func (p *Peer) QueuedNotifications(char string) int {
	return p.buffer.Len(CharRef(NormalizeUUID(char)))
}

// PendingOperations returns the number of outstanding waiters.
func (p *Peer) PendingOperations() int {
	return p.pending.Len()
}

// Close releases the transport and waits for the dispatch goroutine to
// exit. Outstanding waiters fail with ErrConnectionLost. Idempotent.
func (p *Peer) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.transport.Close()
		<-p.done
	})
	return p.closeErr
}

// registerGuarded registers a waiter for key unless the connection is
// already terminal. The re-check after registration closes the race with a
// concurrent disconnect fan-out: a waiter that slipped in after FailAll is
// withdrawn here instead of leaking forever.
func (p *Peer) registerGuarded(key OpKey) (*Waiter, error) {
	if s := p.lc.State(); s.Terminal() {
		return nil, opError(ConnectionLost, "connection is %s", s)
	}
	w, err := p.pending.Register(key)
	if err != nil {
		return nil, err
	}
	if s := p.lc.State(); s.Terminal() {
		if p.pending.Cancel(key) {
			return nil, opError(ConnectionLost, "connection is %s", s)
		}
		// FailAll got there first; the waiter already holds the failure.
	}
	return w, nil
}

// ----------------------------
// Event dispatch
// ----------------------------

// dispatchLoop drains the transport's single event channel until it is
// closed, then treats the closure as total link loss.
func (p *Peer) dispatchLoop() {
	for ev := range p.transport.Events() {
		p.dispatch(ev)
	}
	p.failOver(opError(ConnectionLost, "transport event stream closed"))
	close(p.done)
}

// dispatch is the single routing function over the unordered event stream.
func (p *Peer) dispatch(ev Event) {
	switch ev := ev.(type) {
	case LinkStateEvent:
		switch ev.State {
		case LinkConnected:
			p.onLinkEstablished()
		case LinkDisconnected:
			p.failOver(opError(ConnectionLost, "link lost (status 0x%02x)", int(ev.Status)))
		default:
			// Unexpected stack state; must not be silently swallowed.
			p.logger.WithError(opError(UnknownConnectionState, "state %d (status 0x%02x)", int(ev.State), int(ev.Status))).
				Error("Unknown connection state reported by transport")
		}

	case ServicesDiscoveredEvent:
		p.onDiscoveryComplete()

	case DescriptorWriteResultEvent:
		p.completeWrite(DescriptorWriteKey(ev.Char, ev.Desc), ev.Status)

	case CharacteristicWriteResultEvent:
		p.completeWrite(CharacteristicWriteKey(ev.Char), ev.Status)

	case CharacteristicChangedEvent:
		key := NotificationReadKey(ev.Char)
		p.buffer.PushOrDeliver(ev.Char, ev.Value, func(v []byte) bool {
			return p.pending.TryResolve(key, v)
		})

	case CharacteristicReadResultEvent:
		// Read-by-polling is not modeled; accepted for diagnostics only.
		p.logger.WithFields(logrus.Fields{
			"char":   string(ev.Char),
			"status": int(ev.Status),
			"len":    len(ev.Value),
		}).Debug("Ignoring characteristic read result")
	}
}

// completeWrite resolves the waiter for a confirmed write, or fails it
// when the remote peer reported an error status. Results for keys nobody
// waits on are logged by the table and otherwise ignored.
func (p *Peer) completeWrite(key OpKey, status Status) {
	if status.OK() {
		p.pending.Resolve(key, nil)
		return
	}
	p.pending.Fail(key, &RemoteWriteError{Status: status})
}

// onLinkEstablished moves the lifecycle forward and kicks off service
// discovery on the freshly established link.
func (p *Peer) onLinkEstablished() {
	if !p.lc.linkEstablished() {
		p.logger.WithField("state", p.lc.State().String()).Debug("Spurious link-up event ignored")
		return
	}

	p.logger.Debug("Link established, discovering services...")
	if !p.transport.DiscoverServices() {
		failure := opError(DiscoveryStartFailed, "service discovery could not be started")
		p.lc.fail(failure)
		p.pending.Fail(ConnectKey(), failure)
	}
}

// onDiscoveryComplete marks the connection ready and wakes the connect
// caller.
func (p *Peer) onDiscoveryComplete() {
	if !p.lc.discoveryComplete() {
		p.logger.WithField("state", p.lc.State().String()).Debug("Spurious services-discovered event ignored")
		return
	}
	p.logger.Info("GATT peer connected and ready")
	p.pending.Resolve(ConnectKey(), nil)
}

// failOver performs the single disconnect fan-out: every outstanding
// waiter, the connect waiter included, fails exactly once with reason.
// Buffered notifications survive until consumed.
func (p *Peer) failOver(reason *OpError) {
	if !p.lc.linkLost(reason) {
		return
	}
	failed := p.pending.FailAll(reason)
	p.logger.WithFields(logrus.Fields{
		"reason":  reason.Error(),
		"waiters": failed,
	}).Warn("Connection lost, failed all outstanding operations")
}
