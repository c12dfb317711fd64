package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// DiscordOptions holds per-webhook delivery limits
type DiscordOptions struct {
	Username         string
	Timeout          time.Duration
	RateLimit        int // requests per second; <= 0 disables limiting
	MaxMessageLength int
	MaxFilesPerPost  int
}

// Discord posts to one webhook URL
type Discord struct {
	webhookURL string
	opts       DiscordOptions
	client     *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewDiscord creates a webhook sender
func NewDiscord(webhookURL string, opts DiscordOptions, logger arbor.ILogger) *Discord {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxMessageLength <= 0 {
		opts.MaxMessageLength = 2000
	}
	if opts.MaxFilesPerPost <= 0 {
		opts.MaxFilesPerPost = 10
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	return &Discord{
		webhookURL: webhookURL,
		opts:       opts,
		client:     &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Platform returns the platform name
func (d *Discord) Platform() string {
	return "discord"
}

type discordMessage struct {
	ID string `json:"id"`
}

type discordPayload struct {
	Content  string `json:"content"`
	Username string `json:"username,omitempty"`
}

// SendImages uploads images, MaxFilesPerPost per message. The caption goes
// with the first message. Every body is built before the first post, and a
// failed post deletes the messages already sent, so a call delivers all of
// its images or none of them.
func (d *Discord) SendImages(ctx context.Context, imagePaths []string, caption string) error {
	if len(imagePaths) == 0 {
		return fmt.Errorf("no images to send")
	}

	type batch struct {
		body        []byte
		contentType string
		first, last int
	}
	var batches []batch
	for start := 0; start < len(imagePaths); start += d.opts.MaxFilesPerPost {
		end := min(start+d.opts.MaxFilesPerPost, len(imagePaths))
		content := ""
		if start == 0 {
			content = caption
		}

		body, contentType, err := d.multipartBody(imagePaths[start:end], content)
		if err != nil {
			return err
		}
		batches = append(batches, batch{body: body, contentType: contentType, first: start + 1, last: end})
	}

	endpoint, err := d.endpoint("", url.Values{"wait": {"true"}})
	if err != nil {
		return err
	}

	sent := make([]string, 0, len(batches))
	for _, b := range batches {
		resp, err := d.do(ctx, http.MethodPost, endpoint, b.body, b.contentType)
		if err != nil {
			d.retract(sent)
			return fmt.Errorf("upload of images %d-%d failed: %w", b.first, b.last, err)
		}

		var message discordMessage
		if err := json.Unmarshal(resp, &message); err != nil || message.ID == "" {
			d.logger.Debug().Int("first", b.first).Msg("Webhook response carried no message id")
		}
		sent = append(sent, message.ID)
	}

	d.logger.Info().Int("images", len(imagePaths)).Int("messages", len(batches)).Msg("Images sent to Discord")
	return nil
}

// retract deletes already posted messages after a failed upload. Cleanup
// runs on its own context so a cancelled send still cleans up.
func (d *Discord) retract(messageIDs []string) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opts.Timeout)
	defer cancel()

	for _, id := range messageIDs {
		if id == "" {
			d.logger.Warn().Msg("Cannot delete partial upload: message id unknown")
			continue
		}
		endpoint, err := d.endpoint("/messages/"+id, nil)
		if err == nil {
			_, err = d.do(ctx, http.MethodDelete, endpoint, nil, "")
		}
		if err != nil {
			d.logger.Warn().Err(err).Str("message_id", id).Msg("Failed to delete partial upload")
			continue
		}
		d.logger.Debug().Str("message_id", id).Msg("Deleted partial upload")
	}
}

// SendText posts text, chunked at MaxMessageLength. Each chunk is retried
// once on a timeout-class error.
func (d *Discord) SendText(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("empty message")
	}

	chunks := SplitMessage(text, d.opts.MaxMessageLength)
	for i, chunk := range chunks {
		body, err := json.Marshal(discordPayload{Content: chunk, Username: d.opts.Username})
		if err != nil {
			return fmt.Errorf("failed to encode message: %w", err)
		}

		err = d.post(ctx, body, "application/json")
		if err != nil && isTimeout(err) {
			d.logger.Warn().Err(err).Int("chunk", i+1).Msg("Discord request timed out, retrying once")
			err = d.post(ctx, body, "application/json")
		}
		if err != nil {
			return fmt.Errorf("chunk %d/%d failed: %w", i+1, len(chunks), err)
		}
	}

	d.logger.Info().Int("chunks", len(chunks)).Int("length", len(text)).Msg("Message sent to Discord")
	return nil
}

func (d *Discord) multipartBody(imagePaths []string, content string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	payload, err := json.Marshal(discordPayload{Content: content, Username: d.opts.Username})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode payload: %w", err)
	}
	if err := w.WriteField("payload_json", string(payload)); err != nil {
		return nil, "", err
	}

	for i, path := range imagePaths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read image %s: %w", path, err)
		}
		part, err := w.CreateFormFile(fmt.Sprintf("files[%d]", i), filepath.Base(path))
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

func (d *Discord) post(ctx context.Context, body []byte, contentType string) error {
	_, err := d.do(ctx, http.MethodPost, d.webhookURL, body, contentType)
	return err
}

// endpoint derives a URL from the webhook URL, keeping its query parameters
func (d *Discord) endpoint(suffix string, query url.Values) (string, error) {
	u, err := url.Parse(d.webhookURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook URL: %w", err)
	}
	u.Path = strings.TrimRight(u.Path, "/") + suffix

	q := u.Query()
	for key, values := range query {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// do sends one rate-limited request and returns the response body
func (d *Discord) do(ctx context.Context, method, endpoint string, body []byte, contentType string) ([]byte, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("webhook returned %s: %s", resp.Status, bytes.TrimSpace(detail))
	}
	return io.ReadAll(io.LimitReader(resp.Body, 1<<20))
}

// isTimeout reports timeout-class transport errors
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
