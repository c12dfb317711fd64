// -----------------------------------------------------------------------
// Renderer - Exports every Plotly chart in an HTML snapshot to PNG using
// headless Chrome.
// -----------------------------------------------------------------------

package renderer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
	"github.com/ternarybob/gammawatch/internal/interfaces"
)

// chartSelector matches the container Plotly renders each figure into
const chartSelector = ".plotly-graph-div"

// Options holds resolved renderer settings
type Options struct {
	ChromePath     string
	Headless       bool
	NoSandbox      bool
	SettleTime     time.Duration
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// OptionsFromConfig resolves durations and defaults from the config section
func OptionsFromConfig(cfg *common.RendererConfig) Options {
	opts := Options{
		ChromePath:     cfg.ChromePath,
		Headless:       cfg.Headless,
		NoSandbox:      cfg.NoSandbox,
		SettleTime:     common.ParseDuration(cfg.SettleTime, 5*time.Second),
		Timeout:        common.ParseDuration(cfg.Timeout, 2*time.Minute),
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = 1600
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = 2200
	}
	return opts
}

// Service implements interfaces.Renderer with chromedp.
// A fresh browser is started per file and closed afterwards.
type Service struct {
	opts   Options
	logger arbor.ILogger
}

var _ interfaces.Renderer = (*Service)(nil)

// NewService creates a new renderer
func NewService(opts Options, logger arbor.ILogger) *Service {
	return &Service{
		opts:   opts,
		logger: logger,
	}
}

// Render writes <base>_<chartID>.png into outputDir for every chart in
// htmlPath. Charts that fail are skipped; their errors are joined into the
// returned error alongside whatever images succeeded.
func (s *Service) Render(ctx context.Context, htmlPath string, outputDir string) ([]string, error) {
	absPath, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", htmlPath, err)
	}

	ids, err := ChartIDs(absPath)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		s.logger.Warn().Str("file", filepath.Base(absPath)).Msg("No Plotly charts found")
		return []string{}, nil
	}

	if outputDir == "" {
		outputDir = "."
	}
	outDir, err := filepath.Abs(outputDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	start := time.Now()
	s.logger.Debug().Str("file", filepath.Base(absPath)).Strs("charts", ids).Msg("Rendering charts")

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, s.allocatorOptions()...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, cancel := context.WithTimeout(browserCtx, s.opts.Timeout)
	defer cancel()

	err = chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(int64(s.opts.ViewportWidth), int64(s.opts.ViewportHeight), 1, false),
		chromedp.Navigate("file://"+filepath.ToSlash(absPath)),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(s.opts.SettleTime),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", filepath.Base(absPath), err)
	}

	base := strings.TrimSuffix(filepath.Base(absPath), filepath.Ext(absPath))
	images := make([]string, 0, len(ids))
	var failures []error

	for _, id := range ids {
		data, err := s.exportChart(runCtx, id)
		if err != nil {
			s.logger.Warn().Err(err).Str("chart", id).Str("file", base).Msg("Chart export failed")
			failures = append(failures, fmt.Errorf("chart %s: %w", id, err))
			continue
		}

		out := filepath.Join(outDir, ImageName(base, id))
		if err := os.WriteFile(out, data, 0644); err != nil {
			failures = append(failures, fmt.Errorf("chart %s: %w", id, err))
			continue
		}
		images = append(images, out)
		s.logger.Debug().Str("image", out).Int("bytes", len(data)).Msg("Chart exported")
	}

	s.logger.Info().
		Str("file", base).
		Int("images", len(images)).
		Int("failed", len(failures)).
		Dur("duration", time.Since(start)).
		Msg("Render complete")

	return images, errors.Join(failures...)
}

// exportChart asks Plotly for a PNG and falls back to an element screenshot
func (s *Service) exportChart(ctx context.Context, id string) ([]byte, error) {
	quoted, _ := json.Marshal(id)
	script := fmt.Sprintf(`(async () => {
		const el = document.getElementById(%s);
		if (!el) throw new Error("element not found");
		return await Plotly.toImage(el, {format: "png"});
	})()`, quoted)

	var dataURL string
	err := chromedp.Run(ctx, chromedp.Evaluate(script, &dataURL, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if err == nil {
		data, decodeErr := DecodePNGDataURL(dataURL)
		if decodeErr == nil {
			return data, nil
		}
		err = decodeErr
	}

	s.logger.Debug().Err(err).Str("chart", id).Msg("Plotly export failed, taking element screenshot")

	var buf []byte
	selector := fmt.Sprintf(`[id=%s]`, quoted)
	if shotErr := chromedp.Run(ctx, chromedp.Screenshot(selector, &buf, chromedp.NodeVisible, chromedp.ByQuery)); shotErr != nil {
		return nil, fmt.Errorf("plotly export: %v; screenshot: %w", err, shotErr)
	}
	return buf, nil
}

func (s *Service) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("no-sandbox", s.opts.NoSandbox),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("allow-file-access-from-files", true),
		chromedp.WindowSize(s.opts.ViewportWidth, s.opts.ViewportHeight),
	)
	if s.opts.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ChromePath))
	}
	return opts
}

// ChartIDs returns the ids of every chart container in the static HTML, in
// document order. Containers without an id are ignored.
func ChartIDs(htmlPath string) ([]string, error) {
	f, err := os.Open(htmlPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", htmlPath, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", htmlPath, err)
	}

	ids := []string{}
	seen := make(map[string]bool)
	doc.Find(chartSelector).Each(func(_ int, sel *goquery.Selection) {
		id, ok := sel.Attr("id")
		id = strings.TrimSpace(id)
		if !ok || id == "" || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	})
	return ids, nil
}

// ImageName returns the output filename for one chart
func ImageName(base, chartID string) string {
	return fmt.Sprintf("%s_%s.png", base, chartID)
}

// DecodePNGDataURL decodes a base64 data URL as returned by Plotly.toImage
func DecodePNGDataURL(dataURL string) ([]byte, error) {
	const prefix = "data:image/png;base64,"
	if !strings.HasPrefix(dataURL, prefix) {
		return nil, fmt.Errorf("unexpected image data URL")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(dataURL, prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	return data, nil
}
