package testutils

import (
	"context"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"

	"github.com/srg/gattlink/internal/gatt"
)

const (
	// EventuallyTimeout bounds waits for asynchronous dispatch effects.
	EventuallyTimeout = 2 * time.Second
	// EventuallyTick is the poll interval for Eventually assertions.
	EventuallyTick = 2 * time.Millisecond
)

// FakePeerSuite is a testify suite base wiring a Peer to a FakeTransport.
//
// Usage:
//
//	type WriteSuite struct {
//	    testutils.FakePeerSuite
//	}
//
//	func TestWriteSuite(t *testing.T) {
//	    suite.Run(t, new(WriteSuite))
//	}
//
// SetupTest creates a fresh transport and peer per test; TearDownTest
// closes the peer and waits for its dispatch goroutine to exit.
type FakePeerSuite struct {
	suite.Suite

	Logger    *logrus.Logger
	Transport *FakeTransport
	Peer      *gatt.Peer
}

// SetupTest creates a fresh fake transport and peer.
func (s *FakePeerSuite) SetupTest() {
	s.Logger = logrus.New()
	s.Logger.SetLevel(logrus.DebugLevel)
	s.Logger.SetOutput(io.Discard)

	s.Transport = NewFakeTransport()
	s.Peer = gatt.NewPeer(s.Transport, nil, s.Logger)
}

// TearDownTest shuts the peer down.
func (s *FakePeerSuite) TearDownTest() {
	if s.Peer != nil {
		s.Require().NoError(s.Peer.Close())
	}
}

// MustConnect drives the peer through the full connect handshake:
// link up, service discovery, ready.
func (s *FakePeerSuite) MustConnect(ctx context.Context) {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Peer.Connect(ctx) }()

	s.Require().Eventually(func() bool { return s.Transport.ConnectCalls() > 0 },
		EventuallyTimeout, EventuallyTick, "connect MUST be issued to the transport")
	s.Transport.EmitLinkUp()

	s.Require().Eventually(func() bool { return s.Transport.DiscoverCalls() > 0 },
		EventuallyTimeout, EventuallyTick, "discovery MUST be issued after link up")
	s.Transport.EmitServicesDiscovered()

	s.Require().NoError(<-errCh, "MUST connect successfully")
	s.Require().Equal(gatt.StateReady, s.Peer.State(), "peer MUST be ready")
}

// AwaitPending blocks until the peer has exactly n outstanding waiters.
func (s *FakePeerSuite) AwaitPending(n int) {
	s.Require().Eventually(func() bool { return s.Peer.PendingOperations() == n },
		EventuallyTimeout, EventuallyTick, "MUST reach %d pending operations", n)
}

// AwaitQueued blocks until char has exactly n buffered notifications.
func (s *FakePeerSuite) AwaitQueued(char string, n int) {
	s.Require().Eventually(func() bool { return s.Peer.QueuedNotifications(char) == n },
		EventuallyTimeout, EventuallyTick, "MUST buffer %d notifications for %s", n, char)
}
