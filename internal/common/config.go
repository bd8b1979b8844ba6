// Package common holds the service configuration shared by the binaries.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like "5m" or
// "500ms", or from plain integer nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parsing duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("parsing duration: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

type Config struct {
	Dirs struct {
		Inbox      string `yaml:"inbox"`
		Processed  string `yaml:"processed"`
		Quarantine string `yaml:"quarantine"`
		Duplicate  string `yaml:"duplicate"`
	} `yaml:"dirs"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	OCR struct {
		Tesseract   string `yaml:"tesseract"`
		Lang        string `yaml:"lang"`
		DPI         int    `yaml:"dpi"`
		TessdataDir string `yaml:"tessdata_dir"`
		PSM         int    `yaml:"psm"`
		OEM         int    `yaml:"oem"`
		// Disabled skips OCR entirely; embedded text is used as-is.
		Disabled bool `yaml:"disabled"`
	} `yaml:"ocr"`

	Pipeline struct {
		Workers        int      `yaml:"workers"`
		QueueSize      int      `yaml:"queue_size"`
		ProcessTimeout Duration `yaml:"process_timeout"`
		StuckTimeout   Duration `yaml:"stuck_timeout"`
		RescanInterval Duration `yaml:"rescan_interval"`
		Debounce       Duration `yaml:"debounce"`
		OCRConfFloor   float64  `yaml:"ocr_conf_floor"`
	} `yaml:"pipeline"`

	Registry struct {
		BaseURL  string   `yaml:"base_url"`
		Timeout  Duration `yaml:"timeout"`
		CacheTTL Duration `yaml:"cache_ttl"`
	} `yaml:"registry"`

	LLM struct {
		APIKey   string `yaml:"api_key"`
		Model    string `yaml:"model"`
		MaxPages int    `yaml:"max_pages"`
	} `yaml:"llm"`

	Control struct {
		Addr string `yaml:"addr"`
	} `yaml:"control"`

	Log struct {
		Level  string `yaml:"level"`  // debug / info / warn / error
		Format string `yaml:"format"` // text / json
	} `yaml:"log"`
}

// Load reads the YAML config. An empty path tries the usual locations and
// falls back to pure defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		for _, loc := range []string{
			"kajovospend.yaml",
			filepath.Join(os.Getenv("HOME"), ".config/kajovospend/config.yaml"),
			"/etc/kajovospend/config.yaml",
		} {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	mergeWithEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Dirs.Inbox == "" {
		cfg.Dirs.Inbox = "./inbox"
	}
	if cfg.Dirs.Processed == "" {
		cfg.Dirs.Processed = "./processed"
	}
	if cfg.Dirs.Quarantine == "" {
		cfg.Dirs.Quarantine = "./quarantine"
	}
	if cfg.Dirs.Duplicate == "" {
		cfg.Dirs.Duplicate = "./duplicate"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./kajovospend.db"
	}
	if cfg.OCR.Lang == "" {
		cfg.OCR.Lang = "ces+eng"
	}
	if cfg.OCR.DPI == 0 {
		cfg.OCR.DPI = 300
	}
	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = 2
	}
	if cfg.Pipeline.QueueSize == 0 {
		cfg.Pipeline.QueueSize = 64
	}
	if cfg.Pipeline.ProcessTimeout == 0 {
		cfg.Pipeline.ProcessTimeout = Duration(5 * time.Minute)
	}
	if cfg.Pipeline.StuckTimeout == 0 {
		cfg.Pipeline.StuckTimeout = Duration(15 * time.Minute)
	}
	if cfg.Pipeline.RescanInterval == 0 {
		cfg.Pipeline.RescanInterval = Duration(5 * time.Minute)
	}
	if cfg.Pipeline.Debounce == 0 {
		cfg.Pipeline.Debounce = Duration(500 * time.Millisecond)
	}
	if cfg.Pipeline.OCRConfFloor == 0 {
		cfg.Pipeline.OCRConfFloor = 0.65
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "gemini-2.5-flash"
	}
	if cfg.LLM.MaxPages == 0 {
		cfg.LLM.MaxPages = 5
	}
	if cfg.Control.Addr == "" {
		cfg.Control.Addr = "127.0.0.1:8711"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func mergeWithEnv(cfg *Config) {
	if key := os.Getenv("KAJOVOSPEND_GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	if addr := os.Getenv("KAJOVOSPEND_CONTROL_ADDR"); addr != "" {
		cfg.Control.Addr = addr
	}
}
