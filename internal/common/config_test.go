package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/gammawatch/internal/models"
)

func validConfig() *Config {
	config := NewDefaultConfig()
	config.Channels = map[string]ChannelConfig{
		"spx": {Platform: PlatformDiscord, WebhookURL: "https://discord.com/api/webhooks/1/token"},
	}
	config.Symbols = []models.SymbolConfig{
		{Name: "SPX", Keywords: []string{"spx", "spy"}, Channel: "spx"},
	}
	return config
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
		{
			name:   "inline webhook channel",
			mutate: func(c *Config) { c.Symbols[0].Channel = "https://discord.com/api/webhooks/2/other" },
		},
		{
			name:    "no symbols",
			mutate:  func(c *Config) { c.Symbols = nil },
			wantErr: "Symbols",
		},
		{
			name:    "undefined channel",
			mutate:  func(c *Config) { c.Symbols[0].Channel = "missing" },
			wantErr: `channel "missing" is not defined`,
		},
		{
			name: "duplicate storage key",
			mutate: func(c *Config) {
				c.Symbols = append(c.Symbols, models.SymbolConfig{Name: "SPY", Keywords: []string{"spx"}, Channel: "spx"})
			},
			wantErr: `share storage key "spx"`,
		},
		{
			name: "placeholder webhook",
			mutate: func(c *Config) {
				c.Channels["spx"] = ChannelConfig{Platform: PlatformDiscord, WebhookURL: "YOUR_WEBHOOK_URL"}
			},
			wantErr: "webhook_url is not configured",
		},
		{
			name:    "bad schedule time",
			mutate:  func(c *Config) { c.ScheduleTime = "25:00" },
			wantErr: "25:00",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "invalid timezone",
		},
		{
			name: "email without smtp",
			mutate: func(c *Config) {
				c.Channels["reports"] = ChannelConfig{Platform: PlatformEmail, To: "desk@example.com"}
				c.Analysis.Channel = "reports"
			},
			wantErr: "[smtp] host and from are required",
		},
		{
			name:    "recent days below two",
			mutate:  func(c *Config) { c.Analysis.RecentDays = 1 },
			wantErr: "RecentDays",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	config := validConfig()
	config.ScheduleTime = "7pm"
	config.Symbols[0].Channel = "missing"

	err := config.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "7pm")
	assert.Contains(t, err.Error(), `channel "missing"`)
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()

	promptPath := filepath.Join(dir, "prompt.txt")
	require.NoError(t, os.WriteFile(promptPath, []byte("  Read the charts.\n"), 0644))

	base := filepath.Join(dir, "base.toml")
	require.NoError(t, os.WriteFile(base, []byte(`
watch_directory = "/data/watch"
schedule_time = "22:30"

[analysis]
channel = "spx"
prompt_file = "`+filepath.ToSlash(promptPath)+`"

[channels.spx]
platform = "discord"
webhook_url = "https://discord.com/api/webhooks/1/token"

[[symbols]]
name = "SPX"
keywords = ["spx"]
channel = "spx"
`), 0644))

	override := filepath.Join(dir, "override.toml")
	require.NoError(t, os.WriteFile(override, []byte(`schedule_time = "21:00"`), 0644))

	t.Setenv("GAMMAWATCH_HISTORY_FILE", "/state/history.json")

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)

	assert.Equal(t, "/data/watch", config.WatchDirectory)
	assert.Equal(t, "21:00", config.ScheduleTime, "later files win")
	assert.Equal(t, "/state/history.json", config.HistoryFile, "environment wins over files")
	assert.Equal(t, "Read the charts.", config.Analysis.Prompt)
	assert.Equal(t, ".html", config.Scan.Extension, "defaults survive")
	require.Len(t, config.Symbols, 1)
	assert.Equal(t, "spx", config.Symbols[0].Key())
	assert.NoError(t, config.Validate())
}

func TestLoadFromFiles_Errors(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("schedule_time = "), 0644))
	_, err = LoadFromFiles(bad)
	assert.Error(t, err)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, "/flags/watch", "", "debug")

	assert.Equal(t, "/flags/watch", config.WatchDirectory)
	assert.Equal(t, "23:00", config.ScheduleTime)
	assert.Equal(t, "debug", config.Logging.Level)
}

func TestResolveAPIKey(t *testing.T) {
	t.Setenv("GAMMAWATCH_GEMINI_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")

	_, err := ResolveAPIKey("gemini_api_key", "")
	assert.Error(t, err)

	key, err := ResolveAPIKey("gemini_api_key", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-config", key)

	t.Setenv("GEMINI_API_KEY", "from-env")
	key, err = ResolveAPIKey("gemini_api_key", "from-config")
	require.NoError(t, err)
	assert.Equal(t, "from-env", key)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDuration("5s", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("nonsense", time.Minute))
	assert.Equal(t, time.Minute, ParseDuration("-1s", time.Minute))
}

func TestKeywordOverlaps(t *testing.T) {
	config := validConfig()
	assert.Empty(t, config.KeywordOverlaps())

	config.Symbols = append(config.Symbols,
		models.SymbolConfig{Name: "SPXW", Keywords: []string{"SPXW"}, Channel: "spx"},
		models.SymbolConfig{Name: "NDX", Keywords: []string{"ndx"}, Channel: "spx"},
	)

	overlaps := config.KeywordOverlaps()
	require.Len(t, overlaps, 1)
	assert.Contains(t, overlaps[0], `SPX keyword "spx" overlaps SPXW keyword "SPXW" (SPX wins)`)
}
