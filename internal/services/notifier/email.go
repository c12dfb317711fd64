package notifier

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"mime"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

// deliverFunc hands a composed message to the mail transport
type deliverFunc func(ctx context.Context, from string, to []string, msg []byte) error

// Email sends to one recipient over SMTP
type Email struct {
	smtp     common.SMTPConfig
	to       string
	subject  string
	markdown goldmark.Markdown
	deliver  deliverFunc
	logger   arbor.ILogger
}

// NewEmail creates an SMTP sender. subject prefixes every message subject.
func NewEmail(smtpConfig common.SMTPConfig, to, subject string, logger arbor.ILogger) *Email {
	if subject == "" {
		subject = "gammawatch"
	}
	e := &Email{
		smtp:    smtpConfig,
		to:      to,
		subject: subject,
		markdown: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithXHTML()),
		),
		logger: logger,
	}
	e.deliver = e.sendSMTP
	return e
}

// Platform returns the platform name
func (e *Email) Platform() string {
	return "email"
}

// SendImages mails images as attachments with the caption as the body
func (e *Email) SendImages(ctx context.Context, imagePaths []string, caption string) error {
	if len(imagePaths) == 0 {
		return fmt.Errorf("no images to send")
	}

	subject := e.subject
	if caption != "" {
		subject = fmt.Sprintf("%s: %s", e.subject, firstLine(caption))
	}

	msg, err := e.compose(subject, caption, imagePaths)
	if err != nil {
		return err
	}
	if err := e.deliver(ctx, e.smtp.From, []string{e.to}, msg); err != nil {
		return err
	}

	e.logger.Info().Str("to", e.to).Int("images", len(imagePaths)).Msg("Images sent by email")
	return nil
}

// SendText mails markdown text with an HTML alternative. Email has no
// length limit so the text is never chunked.
func (e *Email) SendText(ctx context.Context, text string) error {
	if text == "" {
		return fmt.Errorf("empty message")
	}

	subject := fmt.Sprintf("%s: %s", e.subject, strings.TrimLeft(firstLine(text), "# "))
	msg, err := e.compose(subject, text, nil)
	if err != nil {
		return err
	}
	if err := e.deliver(ctx, e.smtp.From, []string{e.to}, msg); err != nil {
		return err
	}

	e.logger.Info().Str("to", e.to).Int("length", len(text)).Msg("Message sent by email")
	return nil
}

// compose builds a multipart message: text/plain + text/html alternatives
// and one attachment per image.
func (e *Email) compose(subject, text string, attachments []string) ([]byte, error) {
	var htmlBody bytes.Buffer
	if err := e.markdown.Convert([]byte(text), &htmlBody); err != nil {
		return nil, fmt.Errorf("failed to render markdown: %w", err)
	}

	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Name: e.smtp.FromName, Address: e.smtp.From}})
	h.SetAddressList("To", []*mail.Address{{Address: e.to}})
	h.SetSubject(subject)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	tw, err := mw.CreateInline()
	if err != nil {
		return nil, fmt.Errorf("failed to create message body: %w", err)
	}
	if err := writeInline(tw, "text/plain", text); err != nil {
		return nil, err
	}
	if err := writeInline(tw, "text/html", htmlBody.String()); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}

	for _, path := range attachments {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read attachment %s: %w", path, err)
		}

		contentType := mime.TypeByExtension(filepath.Ext(path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}

		var ah mail.AttachmentHeader
		ah.SetContentType(contentType, nil)
		ah.SetFilename(filepath.Base(path))
		ah.Set("Content-Transfer-Encoding", "base64")

		w, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("failed to create attachment: %w", err)
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	ih.Set("Content-Transfer-Encoding", "quoted-printable")

	w, err := tw.CreatePart(ih)
	if err != nil {
		return fmt.Errorf("failed to create %s part: %w", contentType, err)
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

// sendSMTP delivers over implicit TLS when UseTLS is set, otherwise over a
// plain connection upgraded with STARTTLS when the server offers it.
func (e *Email) sendSMTP(ctx context.Context, from string, to []string, msg []byte) error {
	if e.smtp.Host == "" || from == "" {
		return fmt.Errorf("SMTP host and from address must be configured")
	}

	addr := e.smtp.Host + ":" + strconv.Itoa(e.smtp.Port)
	tlsConfig := &tls.Config{ServerName: e.smtp.Host}

	var client *smtp.Client
	if e.smtp.UseTLS {
		dialer := &tls.Dialer{Config: tlsConfig}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		client, err = smtp.NewClient(conn, e.smtp.Host)
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create SMTP client: %w", err)
		}
	} else {
		var err error
		client, err = smtp.Dial(addr)
		if err != nil {
			return fmt.Errorf("failed to connect to SMTP server: %w", err)
		}
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				client.Close()
				return fmt.Errorf("failed to start TLS: %w", err)
			}
		}
	}
	defer client.Close()

	if e.smtp.Username != "" {
		auth := smtp.PlainAuth("", e.smtp.Username, e.smtp.Password, e.smtp.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set mail recipient: %w", err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	return strings.TrimSpace(line)
}
