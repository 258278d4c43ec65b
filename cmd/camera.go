package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/facemark/facemark/internal/config"
	"github.com/facemark/facemark/internal/stream"
)

var cameraTestCmd = &cobra.Command{
	Use:   "camera-test [source]",
	Short: "Test camera connectivity",
	Long: `Probe a camera source and report whether a frame can be decoded.
The source is an IP camera URL (rtsp:// or http://) or a local capture
device. Without an argument the default webcam device is probed.

Examples:
  facemark camera-test
  facemark camera-test rtsp://10.0.0.12:554/stream1
  facemark camera-test /dev/video2`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCameraTest,
}

func init() {
	rootCmd.AddCommand(cameraTestCmd)
}

func runCameraTest(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	source := "/dev/video0"
	if len(args) > 0 {
		source = args[0]
	}

	supervisor := stream.NewSupervisor(cfg.Stream.FFmpegBinary,
		time.Duration(cfg.Stream.ViewerGrace)*time.Second)

	fmt.Printf("Probing %s (up to %s)...\n", source, stream.ProbeTimeoutDuration)
	result, err := supervisor.Test(context.Background(), source)
	if err != nil {
		return fmt.Errorf("probe failed to run: %w", err)
	}

	fmt.Printf("Result: %s\n", result.Status)
	if result.Message != "" {
		fmt.Printf("  %s\n", result.Message)
	}
	if result.Status != stream.ProbeOK {
		return fmt.Errorf("camera source %s is not usable", source)
	}
	fmt.Println("Camera source is usable")
	return nil
}
