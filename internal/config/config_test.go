package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromEnv_Defaults(t *testing.T) {
	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0:3000", cfg.Server.ListenAddr())
	assert.Equal(t, "subtitles", cfg.Storage.SubtitleDir)
	assert.Equal(t, "https://api-free.deepl.com/v2", cfg.DeepL.APIURL)
	assert.Equal(t, 5*time.Second, cfg.DeepL.PollInterval)
	assert.Equal(t, "https://opensubtitles-v3.strem.io", cfg.OpenSubtitles.BaseURL)
	assert.Equal(t, "@every 1m", cfg.System.DBProbeSchedule)
}

func TestNewFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("SUBTITLE_DIR", "/srv/subs")
	t.Setenv("DEEPL_POLL_INTERVAL", "250ms")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/srv/subs", cfg.Storage.SubtitleDir)
	assert.Equal(t, 250*time.Millisecond, cfg.DeepL.PollInterval)
}

func TestNewFromEnv_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "99999")

	_, err := NewFromEnv()
	require.Error(t, err)
}

func TestNewFromEnv_IgnoresUnparseableValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	t.Setenv("DEEPL_POLL_INTERVAL", "soon")

	cfg, err := NewFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.DeepL.PollInterval)
}
