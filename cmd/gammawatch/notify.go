package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/ternarybob/gammawatch/internal/services/notifier"
)

var notifyCmd = &cobra.Command{
	Use:   "notify-test <channel>",
	Short: "Send a test message and the newest image to a channel",
	Long: `Sends a test message to a configured channel name or webhook URL, followed by the
newest PNG in the output directory when one exists.`,
	Args: cobra.ExactArgs(1),
	RunE: runNotifyTest,
}

func runNotifyTest(cmd *cobra.Command, args []string) error {
	channel := args[0]
	svc := notifier.NewService(config, logger)

	ctx, stop := signalContext()
	defer stop()

	text := fmt.Sprintf("GammaWatch test message - %s", time.Now().Format("2006-01-02 15:04:05"))
	if err := svc.SendText(ctx, channel, text); err != nil {
		logger.Error().Err(err).Msg("Test message failed")
		return err
	}
	printf(cmd, "Test message sent\n")

	image, err := newestImage(config.OutputDirectory)
	if err != nil {
		return err
	}
	if image == "" {
		printf(cmd, "No images in %s, skipping image test\n", config.OutputDirectory)
		return nil
	}

	if err := svc.SendImages(ctx, channel, []string{image}, "GammaWatch test image - "+filepath.Base(image)); err != nil {
		logger.Error().Err(err).Str("image", image).Msg("Test image failed")
		return err
	}
	printf(cmd, "Test image sent: %s\n", image)
	return nil
}

// newestImage returns the most recently modified PNG in dir, or ""
func newestImage(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var newest string
	var newestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".png") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestTime) {
			newest = filepath.Join(dir, entry.Name())
			newestTime = info.ModTime()
		}
	}
	return newest, nil
}
