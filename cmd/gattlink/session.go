package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/srg/gattlink/internal/gatt"
	"github.com/srg/gattlink/internal/gatt/goble"
	"github.com/srg/gattlink/pkg/config"
)

// openPeer dials address and waits until service discovery completes. The
// returned peer is ready for writes and notification streaming; the caller
// owns Close.
func openPeer(ctx context.Context, address string, cfg *config.Config, logger *logrus.Logger) (*gatt.Peer, error) {
	transport := goble.NewTransport(address, &goble.Options{
		ConnectTimeout: cfg.ConnectTimeout,
	}, logger)

	peer := gatt.NewPeer(transport, &gatt.Options{AutoConnect: cfg.AutoConnect}, logger)

	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := peer.Connect(connectCtx); err != nil {
		_ = peer.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	return peer, nil
}

// parseHexData converts a hex string to bytes, tolerating the separators
// people paste from sniffer logs (spaces, colons, dashes, 0x prefixes).
func parseHexData(dataStr string) ([]byte, error) {
	cleaned := strings.ReplaceAll(dataStr, " ", "")
	cleaned = strings.ReplaceAll(cleaned, ":", "")
	cleaned = strings.ReplaceAll(cleaned, "-", "")
	cleaned = strings.ReplaceAll(cleaned, "0x", "")

	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}
	return data, nil
}

// formatPayload renders a notification payload for output.
func formatPayload(data []byte, asHex bool) string {
	if asHex {
		return hex.EncodeToString(data)
	}
	return string(data)
}
