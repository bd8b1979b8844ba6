package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "./inbox", cfg.Dirs.Inbox)
	assert.Equal(t, "./kajovospend.db", cfg.Database.Path)
	assert.Equal(t, "ces+eng", cfg.OCR.Lang)
	assert.Equal(t, 300, cfg.OCR.DPI)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Pipeline.ProcessTimeout.Std())
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.StuckTimeout.Std())
	assert.Equal(t, 0.65, cfg.Pipeline.OCRConfFloor)
	assert.Equal(t, "127.0.0.1:8711", cfg.Control.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
dirs:
  inbox: /data/inbox
ocr:
  lang: ces
  dpi: 600
  disabled: true
pipeline:
  workers: 8
  process_timeout: 2m
  ocr_conf_floor: 0.5
control:
  addr: 127.0.0.1:9999
log:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/inbox", cfg.Dirs.Inbox)
	assert.Equal(t, "./processed", cfg.Dirs.Processed, "unset keys keep defaults")
	assert.Equal(t, "ces", cfg.OCR.Lang)
	assert.Equal(t, 600, cfg.OCR.DPI)
	assert.True(t, cfg.OCR.Disabled)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.ProcessTimeout.Std())
	assert.Equal(t, 0.5, cfg.Pipeline.OCRConfFloor)
	assert.Equal(t, "127.0.0.1:9999", cfg.Control.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KAJOVOSPEND_GEMINI_API_KEY", "secret-key")
	t.Setenv("KAJOVOSPEND_CONTROL_ADDR", "0.0.0.0:7000")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.LLM.APIKey)
	assert.Equal(t, "0.0.0.0:7000", cfg.Control.Addr)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dirs: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
