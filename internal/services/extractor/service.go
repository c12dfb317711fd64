package extractor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/interfaces"
)

// Sentinels recorded in place of real text
const (
	ExtractionFailed = "extraction failed"
	NoTextExtracted  = "no text extracted"
)

// minBodyText is the shortest body text accepted before falling back to
// the whole document
const minBodyText = 10

var (
	// A "TICKER: values..." line, e.g. "MU: Implied Movement -σ, 217.64, ..."
	tickerLine = regexp.MustCompile(`\b([A-Z][A-Z0-9._-]*:[ \t]*\S[^\n]*)`)
	scriptTags = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlTags   = regexp.MustCompile(`<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// Service implements interfaces.TextExtractor for text snapshots
type Service struct {
	logger arbor.ILogger
}

var _ interfaces.TextExtractor = (*Service)(nil)

// NewService creates a new extractor
func NewService(logger arbor.ILogger) *Service {
	return &Service{
		logger: logger,
	}
}

// Extract returns the most specific text it can find in htmlPath:
// a ticker data line, then the body as markdown, then all stripped text.
// It never fails; failures are reported through the sentinel values.
func (s *Service) Extract(ctx context.Context, htmlPath string) string {
	name := filepath.Base(htmlPath)

	raw, err := os.ReadFile(htmlPath)
	if err != nil {
		s.logger.Error().Err(err).Str("file", name).Msg("Failed to read text snapshot")
		return ExtractionFailed
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		s.logger.Warn().Err(err).Str("file", name).Msg("HTML parse failed, using stripped text")
		return orSentinel(stripHTML(string(raw)))
	}
	doc.Find("script, style, noscript").Remove()
	body := doc.Find("body")

	if m := tickerLine.FindStringSubmatch(body.Text()); m != nil {
		text := strings.TrimSpace(m[1])
		s.logger.Debug().Str("file", name).Int("length", len(text)).Msg("Extracted ticker line")
		return text
	}

	if text := s.bodyMarkdown(body); len(text) > minBodyText {
		s.logger.Debug().Str("file", name).Int("length", len(text)).Msg("Extracted body text")
		return text
	}

	text := stripHTML(string(raw))
	s.logger.Debug().Str("file", name).Int("length", len(text)).Msg("Extracted document text")
	return orSentinel(text)
}

func (s *Service) bodyMarkdown(body *goquery.Selection) string {
	html, err := body.Html()
	if err != nil || strings.TrimSpace(html) == "" {
		return ""
	}

	converted, err := md.NewConverter("", true, nil).ConvertString(html)
	if err != nil {
		s.logger.Warn().Err(err).Msg("HTML to markdown conversion failed, using stripped text")
		return stripHTML(html)
	}
	return strings.TrimSpace(converted)
}

// stripHTML removes scripts, styles and tags and collapses whitespace
func stripHTML(html string) string {
	text := scriptTags.ReplaceAllString(html, "")
	text = htmlTags.ReplaceAllString(text, " ")
	text = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ").Replace(text)
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}

func orSentinel(text string) string {
	if text == "" {
		return NoTextExtracted
	}
	return text
}
