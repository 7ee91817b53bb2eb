package gatt_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/srg/gattlink/internal/gatt"
	"github.com/srg/gattlink/internal/testutils"
)

type PeerSuite struct {
	testutils.FakePeerSuite
}

func TestPeerSuite(t *testing.T) {
	suite.Run(t, new(PeerSuite))
}

func (s *PeerSuite) TestConnectLifecycle() {
	// GOAL: Verify the connect handshake walks Connecting ->
	// DiscoveringServices -> Ready and that a concurrent connect fails fast
	//
	// TEST SCENARIO: connect issued -> second connect rejected -> link up ->
	// discovery -> ready -> first caller completes

	errCh := make(chan error, 1)
	go func() { errCh <- s.Peer.Connect(context.Background()) }()

	s.Require().Eventually(func() bool { return s.Transport.ConnectCalls() > 0 },
		testutils.EventuallyTimeout, testutils.EventuallyTick)
	s.Assert().Equal(gatt.StateConnecting, s.Peer.State(), "state MUST be connecting")

	err := s.Peer.Connect(context.Background())
	s.Assert().ErrorIs(err, gatt.ErrAlreadyConnecting, "second connect MUST fail with AlreadyConnecting")

	s.Transport.EmitLinkUp()
	s.Require().Eventually(func() bool { return s.Transport.DiscoverCalls() > 0 },
		testutils.EventuallyTimeout, testutils.EventuallyTick, "link up MUST trigger discovery")
	s.Transport.EmitServicesDiscovered()

	s.Assert().NoError(<-errCh, "first connect MUST proceed unaffected")
	s.Assert().Equal(gatt.StateReady, s.Peer.State(), "state MUST be ready")
}

func (s *PeerSuite) TestConnectFailures() {
	// GOAL: Verify connect-time failures surface through the one uniform
	// failure channel and drive the lifecycle to a terminal state

	s.Run("transport rejects connect", func() {
		s.Transport.ConnectOK = false

		err := s.Peer.Connect(context.Background())
		s.Assert().ErrorIs(err, gatt.ErrTransportRejected, "rejected issue MUST fail the connect waiter")
		s.Assert().Equal(gatt.StateFailed, s.Peer.State(), "state MUST be failed")
	})

	s.Run("discovery cannot be started", func() {
		s.Require().NoError(s.Peer.Close())
		s.SetupTest()
		s.Transport.DiscoverOK = false

		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.Connect(context.Background()) }()

		s.Require().Eventually(func() bool { return s.Transport.ConnectCalls() > 0 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)
		s.Transport.EmitLinkUp()

		s.Assert().ErrorIs(<-errCh, gatt.ErrDiscoveryStartFailed, "connect MUST fail with DiscoveryStartFailed")
		s.Assert().Equal(gatt.StateFailed, s.Peer.State())
	})

	s.Run("link lost while connecting", func() {
		s.Require().NoError(s.Peer.Close())
		s.SetupTest()

		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.Connect(context.Background()) }()

		s.Require().Eventually(func() bool { return s.Transport.ConnectCalls() > 0 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)
		s.Transport.EmitLinkDown(gatt.StatusError)

		s.Assert().ErrorIs(<-errCh, gatt.ErrConnectionLost, "connect waiter MUST observe the link loss")
		s.Assert().Equal(gatt.StateDisconnected, s.Peer.State())
	})
}

func (s *PeerSuite) TestWriteCharacteristic() {
	// GOAL: Verify confirmed writes suspend until their write-result event
	// and that the waiter is always removed on completion

	s.MustConnect(context.Background())

	s.Run("write confirmed", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0xAA}) }()

		s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 1 },
			testutils.EventuallyTimeout, testutils.EventuallyTick, "write MUST be issued to the transport")
		write := s.Transport.CharWrites()[0]
		s.Assert().Equal(gatt.CharRef("2a39"), write.Char)
		s.Assert().Equal([]byte{0xAA}, write.Value)

		s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
		s.Assert().NoError(<-errCh, "confirmed write MUST complete without error")
		s.Assert().Equal(0, s.Peer.PendingOperations(), "waiter MUST be removed on completion")
	})

	s.Run("remote failure leaves no stale waiter", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0xBB}) }()

		s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 2 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)
		s.Transport.EmitCharWriteResult("2a39", gatt.StatusError)

		err := <-errCh
		var remoteErr *gatt.RemoteWriteError
		s.Require().ErrorAs(err, &remoteErr, "remote failure MUST surface as RemoteWriteError")
		s.Assert().Equal(gatt.StatusError, remoteErr.Status)

		// A new write on the same characteristic registers cleanly.
		go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0xCC}) }()
		s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 3 },
			testutils.EventuallyTimeout, testutils.EventuallyTick, "subsequent write MUST register, no stale OperationInProgress")
		s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
		s.Assert().NoError(<-errCh)
	})

	s.Run("duplicate write on same characteristic", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0x01}) }()
		s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 4 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)

		err := s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0x02})
		s.Assert().ErrorIs(err, gatt.ErrOperationInProgress, "second write MUST fail while the first is outstanding")

		s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
		s.Assert().NoError(<-errCh, "first write MUST be undisturbed by the rejected duplicate")
	})

	s.Run("pending payload reused when value is nil", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", nil) }()
		s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 5 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)

		write := s.Transport.CharWrites()[4]
		s.Assert().Equal([]byte{0x01}, write.Value, "nil value MUST reuse the characteristic's pending payload")

		s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
		s.Assert().NoError(<-errCh)
	})

	s.Run("transport rejects the issue call", func() {
		s.Transport.WriteCharOK = false
		err := s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0xEE})
		s.Assert().ErrorIs(err, gatt.ErrTransportRejected)
		s.Assert().Equal(0, s.Peer.PendingOperations(), "rejected write MUST not leak a waiter")
		s.Transport.WriteCharOK = true
	})

	s.Run("rejected duplicate does not replace the pending payload", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0x11}) }()
		s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 7 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)

		err := s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0x99})
		s.Require().ErrorIs(err, gatt.ErrOperationInProgress)
		s.Assert().Len(s.Transport.CharWrites(), 7, "rejected duplicate MUST reach the transport in no form")

		s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
		s.Require().NoError(<-errCh)

		// A nil-value write reuses the last issued payload, not the
		// rejected duplicate's bytes.
		go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", nil) }()
		s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 8 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)
		s.Assert().Equal([]byte{0x11}, s.Transport.CharWrites()[7].Value,
			"pending payload MUST be the last issued value")

		s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
		s.Assert().NoError(<-errCh)
	})
}

func (s *PeerSuite) TestSetNotification() {
	// GOAL: Verify notification configuration writes the client
	// characteristic configuration descriptor with the mode-specific value
	// after toggling local delivery

	s.MustConnect(context.Background())

	modes := []struct {
		mode   gatt.NotifyMode
		value  []byte
		enable bool
	}{
		{gatt.NotifyEnable, []byte{0x01, 0x00}, true},
		{gatt.IndicateEnable, []byte{0x02, 0x00}, true},
		{gatt.NotifyDisable, []byte{0x00, 0x00}, false},
	}

	for i, tc := range modes {
		s.Run(tc.mode.String(), func() {
			errCh := make(chan error, 1)
			go func() { errCh <- s.Peer.SetNotification(context.Background(), "2a37", tc.mode) }()

			s.Require().Eventually(func() bool { return len(s.Transport.DescWrites()) == i+1 },
				testutils.EventuallyTimeout, testutils.EventuallyTick, "descriptor write MUST be issued")

			toggle := s.Transport.NotifyToggles()[i]
			s.Assert().Equal(gatt.CharRef("2a37"), toggle.Char)
			s.Assert().Equal(tc.enable, toggle.Enable, "local delivery toggle MUST match the mode")

			write := s.Transport.DescWrites()[i]
			s.Assert().Equal(gatt.CharRef("2a37"), write.Char)
			s.Assert().Equal(gatt.DescRef("2902"), write.Desc, "write MUST target the config descriptor")
			s.Assert().Equal(tc.value, write.Value, "descriptor value MUST match the mode")

			s.Transport.EmitDescWriteResult("2a37", "2902", gatt.StatusSuccess)
			s.Assert().NoError(<-errCh)
		})
	}

	s.Run("missing config descriptor", func() {
		before := len(s.Transport.NotifyToggles())
		s.Transport.WithoutConfigDescriptor("2a38")
		err := s.Peer.SetNotification(context.Background(), "2a38", gatt.NotifyEnable)
		s.Assert().ErrorIs(err, gatt.ErrMissingConfigDescriptor)
		s.Assert().Equal(0, s.Peer.PendingOperations(), "precondition failure MUST leave no partial state")
		s.Assert().Len(s.Transport.NotifyToggles(), before, "nothing MUST be issued to the transport")
	})

	s.Run("duplicate descriptor write in flight", func() {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Peer.SetNotification(context.Background(), "2a37", gatt.NotifyEnable) }()
		s.Require().Eventually(func() bool { return len(s.Transport.DescWrites()) == 4 },
			testutils.EventuallyTimeout, testutils.EventuallyTick)

		err := s.Peer.SetNotification(context.Background(), "2a37", gatt.NotifyDisable)
		s.Assert().ErrorIs(err, gatt.ErrOperationInProgress)

		s.Transport.EmitDescWriteResult("2a37", "2902", gatt.StatusSuccess)
		s.Assert().NoError(<-errCh)
	})

	s.Run("transport rejects the local toggle", func() {
		s.Transport.SetNotifyOK = false
		err := s.Peer.SetNotification(context.Background(), "2a37", gatt.NotifyEnable)
		s.Assert().ErrorIs(err, gatt.ErrTransportRejected)
		s.Assert().Equal(0, s.Peer.PendingOperations(), "rejected toggle MUST not leak a waiter")
		s.Assert().Len(s.Transport.DescWrites(), 4, "descriptor write MUST not be issued after a rejected toggle")
		s.Transport.SetNotifyOK = true
	})

	s.Run("transport rejects the descriptor write", func() {
		s.Transport.WriteDescOK = false
		err := s.Peer.SetNotification(context.Background(), "2a37", gatt.NotifyEnable)
		s.Assert().ErrorIs(err, gatt.ErrTransportRejected)
		s.Assert().Equal(0, s.Peer.PendingOperations(), "rejected descriptor write MUST not leak a waiter")
		s.Transport.WriteDescOK = true
	})
}

func (s *PeerSuite) TestNotificationDelivery() {
	// GOAL: Verify buffered notifications drain FIFO one per call, a
	// waiting reader gets direct delivery, and the two paths never reorder

	s.MustConnect(context.Background())

	s.Run("arrivals with no reader accumulate in order", func() {
		s.Transport.EmitChanged("2a37", []byte{0x01})
		s.Transport.EmitChanged("2a37", []byte{0x02})
		s.Transport.EmitChanged("2a37", []byte{0x03})
		s.AwaitQueued("2a37", 3)

		for _, want := range [][]byte{{0x01}, {0x02}, {0x03}} {
			got, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
			s.Require().NoError(err)
			s.Assert().Equal(want, got, "buffered payloads MUST come back in arrival order")
		}
		s.Assert().Equal(0, s.Peer.QueuedNotifications("2a37"))
	})

	s.Run("waiting reader gets direct delivery", func() {
		type read struct {
			value []byte
			err   error
		}
		readCh := make(chan read, 1)
		go func() {
			v, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
			readCh <- read{v, err}
		}()
		s.AwaitPending(1)

		s.Transport.EmitChanged("2a37", []byte{0x42})
		got := <-readCh
		s.Require().NoError(got.err)
		s.Assert().Equal([]byte{0x42}, got.value, "waiting reader MUST receive that exact payload")
		s.Assert().Equal(0, s.Peer.QueuedNotifications("2a37"), "direct delivery MUST bypass the buffer")
	})

	s.Run("second reader on the same characteristic is rejected", func() {
		errCh := make(chan error, 1)
		go func() {
			_, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
			errCh <- err
		}()
		s.AwaitPending(1)

		_, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
		s.Assert().ErrorIs(err, gatt.ErrOperationInProgress)

		s.Transport.EmitChanged("2a37", []byte{0x05})
		s.Assert().NoError(<-errCh, "first reader MUST be undisturbed")
	})

	s.Run("cancelled reader frees the key", func() {
		ctx, cancel := context.WithCancel(context.Background())
		errCh := make(chan error, 1)
		go func() {
			_, err := s.Peer.ReadCharacteristicChange(ctx, "2a37")
			errCh <- err
		}()
		s.AwaitPending(1)

		cancel()
		s.Assert().ErrorIs(<-errCh, context.Canceled)
		s.AwaitPending(0)

		// The key is immediately reusable.
		s.Transport.EmitChanged("2a37", []byte{0x06})
		got, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
		s.Require().NoError(err)
		s.Assert().Equal([]byte{0x06}, got)
	})

	s.Run("clearing the queue drops unread payloads", func() {
		s.Transport.EmitChanged("2a37", []byte{0x07})
		s.Transport.EmitChanged("2a37", []byte{0x08})
		s.AwaitQueued("2a37", 2)

		s.Peer.ClearNotificationQueue("2a37")
		s.Assert().Equal(0, s.Peer.QueuedNotifications("2a37"))
	})

	s.Run("notifications for other characteristics are unaffected", func() {
		s.Transport.EmitChanged("2a19", []byte{0x55})
		s.AwaitQueued("2a19", 1)
		s.Assert().Equal(0, s.Peer.QueuedNotifications("2a37"))

		got, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a19")
		s.Require().NoError(err)
		s.Assert().Equal([]byte{0x55}, got)
	})
}

func (s *PeerSuite) TestRoundTrip() {
	// GOAL: Verify the full enable -> notify -> read sequence
	//
	// TEST SCENARIO: setNotification acknowledged -> notification arrives
	// with no reader -> buffered -> read returns it without suspending

	s.MustConnect(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- s.Peer.SetNotification(context.Background(), "2a37", gatt.NotifyEnable) }()
	s.Require().Eventually(func() bool { return len(s.Transport.DescWrites()) == 1 },
		testutils.EventuallyTimeout, testutils.EventuallyTick)
	s.Transport.EmitDescWriteResult("2a37", "2902", gatt.StatusSuccess)
	s.Require().NoError(<-errCh, "setNotification MUST complete without error")

	s.Transport.EmitChanged("2a37", []byte{0x01, 0x02})
	s.AwaitQueued("2a37", 1)

	got, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
	s.Require().NoError(err)
	s.Assert().Equal([]byte{0x01, 0x02}, got, "read MUST return the buffered payload immediately")
}

func (s *PeerSuite) TestDisconnectFanOut() {
	// GOAL: Verify a disconnect fails every outstanding waiter exactly once
	// and leaves buffered notifications intact

	s.MustConnect(context.Background())

	s.Transport.EmitChanged("2a19", []byte{0x10})
	s.Transport.EmitChanged("2a19", []byte{0x11})
	s.AwaitQueued("2a19", 2)

	writeErr := make(chan error, 1)
	readErr := make(chan error, 1)
	go func() { writeErr <- s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0x01}) }()
	go func() {
		_, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
		readErr <- err
	}()
	s.AwaitPending(2)

	s.Transport.EmitLinkDown(gatt.StatusError)

	s.Assert().ErrorIs(<-writeErr, gatt.ErrConnectionLost, "write waiter MUST fail with ConnectionLost")
	s.Assert().ErrorIs(<-readErr, gatt.ErrConnectionLost, "read waiter MUST fail with ConnectionLost")
	s.Assert().Equal(gatt.StateDisconnected, s.Peer.State())
	s.Assert().Equal(0, s.Peer.PendingOperations())

	// Buffered data survives until consumed.
	s.Assert().Equal(2, s.Peer.QueuedNotifications("2a19"), "buffer MUST be left intact on disconnect")
	got, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a19")
	s.Require().NoError(err, "buffered reads MUST still drain after disconnect")
	s.Assert().Equal([]byte{0x10}, got)

	// New suspending operations fail fast on the terminal connection.
	err = s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0x02})
	s.Assert().ErrorIs(err, gatt.ErrConnectionLost)
	err = s.Peer.Connect(context.Background())
	s.Assert().ErrorIs(err, gatt.ErrConnectionLost, "terminal peer MUST not reconnect")
}

func (s *PeerSuite) TestAnomalousEvents() {
	// GOAL: Verify late, duplicate and unknown events are absorbed without
	// disturbing state

	s.MustConnect(context.Background())

	// Result for an operation nobody is waiting on: benign.
	s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
	s.Transport.EmitDescWriteResult("2a37", "2902", gatt.StatusError)

	// Explicit read results are accepted but ignored.
	s.Transport.EmitReadResult("2a19", []byte{0x63}, gatt.StatusSuccess)

	// Unknown link states are logged, never acted on.
	s.Transport.EmitLinkState(gatt.LinkState(42))

	// The peer still works afterwards.
	errCh := make(chan error, 1)
	go func() { errCh <- s.Peer.WriteCharacteristic(context.Background(), "2a39", []byte{0x01}) }()
	s.Require().Eventually(func() bool { return len(s.Transport.CharWrites()) == 1 },
		testutils.EventuallyTimeout, testutils.EventuallyTick)
	s.Transport.EmitCharWriteResult("2a39", gatt.StatusSuccess)
	s.Assert().NoError(<-errCh)
	s.Assert().Equal(gatt.StateReady, s.Peer.State(), "unknown link state MUST not change the lifecycle")
}

func (s *PeerSuite) TestEventStreamClosure() {
	// GOAL: Verify closing the transport's event stream acts as total link
	// loss for every outstanding waiter

	s.MustConnect(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Peer.ReadCharacteristicChange(context.Background(), "2a37")
		errCh <- err
	}()
	s.AwaitPending(1)

	s.Require().NoError(s.Peer.Close())
	s.Assert().ErrorIs(<-errCh, gatt.ErrConnectionLost, "waiters MUST fail when the stream closes")
	s.Assert().Equal(gatt.StateDisconnected, s.Peer.State())
}

func TestRemoteWriteErrorMessage(t *testing.T) {
	err := &gatt.RemoteWriteError{Status: gatt.StatusError}
	if !errors.As(error(err), new(*gatt.RemoteWriteError)) {
		t.Fatal("RemoteWriteError must satisfy errors.As")
	}
	if err.Error() != "remote write failed: status 0x85" {
		t.Fatalf("unexpected message: %s", err.Error())
	}
}
