package renderer

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/gammawatch/internal/common"
)

func writeHTML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "2025-06-01_0930_ABC_gamma.html")
	require.NoError(t, os.WriteFile(path, []byte("<html><body>"+body+"</body></html>"), 0644))
	return path
}

func TestChartIDs(t *testing.T) {
	path := writeHTML(t, `
		<div id="a1" class="plotly-graph-div" style="height:100%"></div>
		<div class="plotly-graph-div"></div>
		<div id="other" class="legend"></div>
		<div id="b2" class="js-plotly-plot plotly-graph-div"></div>
		<div id="a1" class="plotly-graph-div"></div>`)

	ids, err := ChartIDs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b2"}, ids)
}

func TestChartIDs_MissingFile(t *testing.T) {
	_, err := ChartIDs(filepath.Join(t.TempDir(), "missing.html"))
	assert.Error(t, err)
}

func TestRender_NoChartsSkipsBrowser(t *testing.T) {
	path := writeHTML(t, `<p>no charts here</p>`)

	// A bogus Chrome path proves the browser is never launched
	s := NewService(Options{ChromePath: "/nonexistent/chrome", Timeout: time.Second}, arbor.NewLogger())
	images, err := s.Render(context.Background(), path, t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestRender_BrowserFailure(t *testing.T) {
	path := writeHTML(t, `<div id="c" class="plotly-graph-div"></div>`)

	s := NewService(Options{ChromePath: "/nonexistent/chrome", Timeout: 5 * time.Second}, arbor.NewLogger())
	images, err := s.Render(context.Background(), path, t.TempDir())
	assert.Error(t, err)
	assert.Empty(t, images)
}

func TestDecodePNGDataURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G'}
	data, err := DecodePNGDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(payload))
	require.NoError(t, err)
	assert.Equal(t, payload, data)

	_, err = DecodePNGDataURL("data:image/jpeg;base64,AAAA")
	assert.Error(t, err)
	_, err = DecodePNGDataURL("data:image/png;base64,!!!")
	assert.Error(t, err)
	_, err = DecodePNGDataURL("data:image/png;base64,")
	assert.Error(t, err)
}

func TestImageName(t *testing.T) {
	assert.Equal(t, "2025-06-01_0930_ABC_gamma_chart1.png", ImageName("2025-06-01_0930_ABC_gamma", "chart1"))
}

func TestOptionsFromConfig(t *testing.T) {
	opts := OptionsFromConfig(&common.RendererConfig{SettleTime: "bad", Timeout: "30s"})
	assert.Equal(t, 5*time.Second, opts.SettleTime)
	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 1600, opts.ViewportWidth)
	assert.Equal(t, 2200, opts.ViewportHeight)
}
