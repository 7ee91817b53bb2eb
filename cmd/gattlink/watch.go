package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/srg/gattlink/internal/gatt"
	"github.com/srg/gattlink/pkg/config"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <device-address> <characteristic-uuid>",
	Short: "Stream characteristic notifications",
	Long: `Enables notifications (or indications) for a characteristic and prints
every payload as it arrives, in arrival order, until interrupted.

Examples:
  # Stream heart rate measurements as hex
  gattlink watch AA:BB:CC:DD:EE:FF 2a37 --hex

  # Use indications instead of notifications
  gattlink watch AA:BB:CC:DD:EE:FF 2a37 --indicate`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

var (
	watchHex      bool
	watchIndicate bool
	watchCount    int
	watchTimeout  time.Duration
)

func init() {
	watchCmd.Flags().BoolVar(&watchHex, "hex", false, "Output payloads as hex; raw bytes by default")
	watchCmd.Flags().BoolVar(&watchIndicate, "indicate", false, "Request indications instead of notifications")
	watchCmd.Flags().IntVar(&watchCount, "count", 0, "Stop after N notifications; 0 streams until interrupted")
	watchCmd.Flags().DurationVar(&watchTimeout, "timeout", config.DefaultConfig().OperationTimeout, "Timeout for enabling notifications")
	watchCmd.Flags().BoolP("verbose", "", false, "Enable debug logging")
}

func runWatch(cmd *cobra.Command, args []string) error {
	address, charUUID := args[0], args[1]

	logger, err := configureLogger(cmd, "verbose")
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := config.DefaultConfig()
	peer, err := openPeer(ctx, address, cfg, logger)
	if err != nil {
		return err
	}
	defer peer.Close()

	mode := gatt.NotifyEnable
	if watchIndicate {
		mode = gatt.IndicateEnable
	}

	enableCtx, cancel := context.WithTimeout(ctx, watchTimeout)
	err = peer.SetNotification(enableCtx, charUUID, mode)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to enable %s: %w", mode, err)
	}

	fmt.Printf("Watching %s (%s), Ctrl+C to stop\n", charUUID, mode)
	for n := 0; watchCount == 0 || n < watchCount; n++ {
		payload, err := peer.ReadCharacteristicChange(ctx, charUUID)
		if err != nil {
			// Interrupt while suspended on the next payload is a normal exit.
			if errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
		fmt.Println(formatPayload(payload, watchHex))
	}

	// Best effort; the device may already be gone.
	disableCtx, cancel := context.WithTimeout(context.Background(), watchTimeout)
	defer cancel()
	if err := peer.SetNotification(disableCtx, charUUID, gatt.NotifyDisable); err != nil {
		logger.WithField("error", err).Debug("Failed to disable notifications on exit")
	}
	return nil
}
