package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattlink/pkg/config"
)

// writeCmd represents the write command
var writeCmd = &cobra.Command{
	Use:   "write <device-address> <characteristic-uuid> <data>",
	Short: "Write to a characteristic with confirmation",
	Long: `Performs a confirmed write to a BLE characteristic and waits for the
device's acknowledgement.

Examples:
  # Write a string value
  gattlink write AA:BB:CC:DD:EE:FF 2a39 "reset"

  # Write hex data
  gattlink write AA:BB:CC:DD:EE:FF 2a39 01 --hex`,
	Args: cobra.ExactArgs(3),
	RunE: runWrite,
}

var (
	writeHex     bool
	writeTimeout time.Duration
)

func init() {
	writeCmd.Flags().BoolVar(&writeHex, "hex", false, "Parse input as hex string (e.g., 'FF01'); raw bytes by default")
	writeCmd.Flags().DurationVar(&writeTimeout, "timeout", config.DefaultConfig().OperationTimeout, "Write timeout")
	writeCmd.Flags().BoolP("verbose", "", false, "Enable debug logging")
}

func runWrite(cmd *cobra.Command, args []string) error {
	address, charUUID, dataStr := args[0], args[1], args[2]

	data := []byte(dataStr)
	if writeHex {
		var err error
		data, err = parseHexData(dataStr)
		if err != nil {
			return fmt.Errorf("failed to parse data: %w", err)
		}
	}

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	cfg := config.DefaultConfig()
	peer, err := openPeer(cmd.Context(), address, cfg, logger)
	if err != nil {
		return err
	}
	defer peer.Close()

	writeCtx, cancel := context.WithTimeout(cmd.Context(), writeTimeout)
	defer cancel()

	if err := peer.WriteCharacteristic(writeCtx, charUUID, data); err != nil {
		return err
	}

	fmt.Printf("Wrote %d bytes to %s\n", len(data), charUUID)
	return nil
}
