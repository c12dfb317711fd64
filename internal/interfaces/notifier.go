package interfaces

import "context"

// Notifier delivers output to a named destination channel
type Notifier interface {
	// SendImages delivers images with an optional caption (all-or-nothing per call)
	SendImages(ctx context.Context, channel string, imagePaths []string, caption string) error

	// SendText delivers a text message, chunking it when it exceeds the
	// platform's length limit
	SendText(ctx context.Context, channel string, text string) error
}
