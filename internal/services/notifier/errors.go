package notifier

import "fmt"

// SendError is a delivery failure on a resolved channel
type SendError struct {
	Channel  string
	Platform string
	Err      error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send to %s channel %q failed: %v", e.Platform, e.Channel, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ChannelNotFoundError is returned for a channel name missing from [channels]
type ChannelNotFoundError struct {
	Channel string
}

func (e *ChannelNotFoundError) Error() string {
	return fmt.Sprintf("channel %q is not configured", e.Channel)
}
