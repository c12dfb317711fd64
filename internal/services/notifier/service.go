// -----------------------------------------------------------------------
// Notifier - Routes images and text to named channels (Discord webhooks
// or SMTP email)
// -----------------------------------------------------------------------

package notifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/interfaces"
)

// platform delivers to one configured destination
type platform interface {
	Platform() string
	SendImages(ctx context.Context, imagePaths []string, caption string) error
	SendText(ctx context.Context, text string) error
}

// Service implements interfaces.Notifier over the configured channels.
// A channel reference that is itself a webhook URL is served by an
// anonymous Discord sender.
type Service struct {
	channels map[string]platform
	discord  DiscordOptions
	mu       sync.Mutex
	inline   map[string]platform
	logger   arbor.ILogger
}

var _ interfaces.Notifier = (*Service)(nil)

// NewService builds a sender per configured channel
func NewService(config *common.Config, logger arbor.ILogger) *Service {
	discordOpts := DiscordOptions{
		Timeout:          common.ParseDuration(config.Notifier.Timeout, 30*time.Second),
		RateLimit:        config.Notifier.RateLimit,
		MaxMessageLength: config.Notifier.MaxMessageLength,
		MaxFilesPerPost:  config.Notifier.MaxFilesPerPost,
	}

	s := &Service{
		channels: make(map[string]platform, len(config.Channels)),
		discord:  discordOpts,
		inline:   make(map[string]platform),
		logger:   logger,
	}

	for name, ch := range config.Channels {
		switch ch.Platform {
		case common.PlatformDiscord:
			opts := discordOpts
			opts.Username = ch.Username
			s.channels[name] = NewDiscord(ch.WebhookURL, opts, logger)
		case common.PlatformEmail:
			s.channels[name] = NewEmail(config.SMTP, ch.To, ch.Subject, logger)
		default:
			logger.Warn().Str("channel", name).Str("platform", ch.Platform).Msg("Unknown channel platform, channel disabled")
		}
	}

	return s
}

// Channels returns the configured channel names, sorted
func (s *Service) Channels() []string {
	names := make([]string, 0, len(s.channels))
	for name := range s.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SendImages delivers images with a caption to channel
func (s *Service) SendImages(ctx context.Context, channel string, imagePaths []string, caption string) error {
	p, err := s.resolve(channel)
	if err != nil {
		return err
	}
	if err := p.SendImages(ctx, imagePaths, caption); err != nil {
		return &SendError{Channel: displayName(channel), Platform: p.Platform(), Err: err}
	}
	return nil
}

// SendText delivers a text message to channel
func (s *Service) SendText(ctx context.Context, channel string, text string) error {
	p, err := s.resolve(channel)
	if err != nil {
		return err
	}
	if err := p.SendText(ctx, text); err != nil {
		return &SendError{Channel: displayName(channel), Platform: p.Platform(), Err: err}
	}
	return nil
}

func (s *Service) resolve(channel string) (platform, error) {
	if p, ok := s.channels[channel]; ok {
		return p, nil
	}
	if !common.IsWebhookURL(channel) {
		return nil, &ChannelNotFoundError{Channel: channel}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.inline[channel]
	if !ok {
		p = NewDiscord(channel, s.discord, s.logger)
		s.inline[channel] = p
	}
	return p, nil
}

// displayName keeps webhook tokens out of logs and errors
func displayName(channel string) string {
	if common.IsWebhookURL(channel) {
		return fmt.Sprintf("webhook(%s)", redact(channel))
	}
	return channel
}

func redact(url string) string {
	const keep = 40
	if len(url) <= keep {
		return url
	}
	return url[:keep] + "..."
}
