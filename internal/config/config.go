package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"

	defaultListen              = ":8080"
	defaultURL                 = "http://localhost:8080"
	defaultYtdlpPath           = "yt-dlp"
	defaultWorkDirName         = "mediafetch"
	defaultMaxFileSizeMB       = 500
	defaultTimeout             = 300 * time.Second
	defaultInfoTimeout         = 60 * time.Second
	defaultRetention           = time.Hour
	defaultConcurrentFragments = 4
	defaultWorkers             = 2
	defaultQueueSize           = 32
	defaultPollInterval        = 200 * time.Millisecond
	defaultRateLimitRPS        = 1
	defaultRateLimitBurst      = 5
)

var (
	defaultAllowedFormats = []string{"mp4", "webm", "mkv", "mp3", "m4a"}

	errEmptyListen     = errors.New("listen address is empty")
	errEmptyYtdlp      = errors.New("ytdlp_path is empty")
	errEmptyWorkDir    = errors.New("work_dir is empty")
	errNoFormats       = errors.New("allowed_formats is empty")
	errBadMaxSize      = errors.New("max_file_size_mb must be positive")
	errBadTimeout      = errors.New("timeout must be positive")
	errBadWorkers      = errors.New("workers must be positive")
	errBadRetention    = errors.New("retention must be positive")
	errUnknownLogLevel = errors.New("unknown log level")
)

type DownloaderConfig struct {
	YtdlpPath           string        `yaml:"ytdlp_path"`
	FFmpegPath          string        `yaml:"ffmpeg_path"`
	CookiesFile         string        `yaml:"cookies_file"`
	WorkDir             string        `yaml:"work_dir"`
	MaxFileSizeMB       int64         `yaml:"max_file_size_mb"`
	Timeout             time.Duration `yaml:"timeout"`
	InfoTimeout         time.Duration `yaml:"info_timeout"`
	AllowedFormats      []string      `yaml:"allowed_formats"`
	Retention           time.Duration `yaml:"retention"`
	ConcurrentFragments int           `yaml:"concurrent_fragments"`
	Workers             int           `yaml:"workers"`
	QueueSize           int           `yaml:"queue_size"`
	PollInterval        time.Duration `yaml:"poll_interval"`
	Diagnostics         bool          `yaml:"-"`
}

func (c *DownloaderConfig) MaxFileSize() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

func (c *DownloaderConfig) IsFormatAllowed(format string) bool {
	return slices.Contains(c.AllowedFormats, strings.ToLower(format))
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type PageConfig struct {
	File string `yaml:"file"`
}

type Config struct {
	URL         string           `yaml:"url"`
	Listen      string           `yaml:"listen"`
	LogLevel    string           `yaml:"log_level"`
	Diagnostics bool             `yaml:"diagnostics"`
	RedisURL    string           `yaml:"redis_url"`
	Secret      string           `yaml:"secret"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
	Page        PageConfig       `yaml:"page"`
	Downloader  DownloaderConfig `yaml:"downloader"`
}

// MustLoad reads the yaml config at path. Environment references like ${VAR} are expanded,
// a .env file next to the binary is loaded first when present.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config %s: %w", path, err)
	}

	return Parse(data)
}

func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) SetDefaults() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.URL == "" {
		c.URL = defaultURL
	}
	c.URL = strings.TrimRight(c.URL, "/")
	if c.LogLevel == "" {
		c.LogLevel = LogLevelInfo
	}
	if c.RateLimit.RPS == 0 {
		c.RateLimit.RPS = defaultRateLimitRPS
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = defaultRateLimitBurst
	}

	d := &c.Downloader
	if d.YtdlpPath == "" {
		d.YtdlpPath = defaultYtdlpPath
	}
	if d.WorkDir == "" {
		d.WorkDir = filepath.Join(os.TempDir(), defaultWorkDirName)
	}
	if d.MaxFileSizeMB == 0 {
		d.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if d.Timeout == 0 {
		d.Timeout = defaultTimeout
	}
	if d.InfoTimeout == 0 {
		d.InfoTimeout = defaultInfoTimeout
	}
	if len(d.AllowedFormats) == 0 {
		d.AllowedFormats = slices.Clone(defaultAllowedFormats)
	}
	for i, f := range d.AllowedFormats {
		d.AllowedFormats[i] = strings.ToLower(strings.TrimSpace(f))
	}
	if d.Retention == 0 {
		d.Retention = defaultRetention
	}
	if d.ConcurrentFragments == 0 {
		d.ConcurrentFragments = defaultConcurrentFragments
	}
	if d.Workers == 0 {
		d.Workers = defaultWorkers
	}
	if d.QueueSize == 0 {
		d.QueueSize = defaultQueueSize
	}
	if d.PollInterval == 0 {
		d.PollInterval = defaultPollInterval
	}
	d.Diagnostics = c.Diagnostics
}

func (c *Config) Validate() error {
	d := &c.Downloader

	switch {
	case c.Listen == "":
		return errEmptyListen
	case d.YtdlpPath == "":
		return errEmptyYtdlp
	case d.WorkDir == "":
		return errEmptyWorkDir
	case len(d.AllowedFormats) == 0:
		return errNoFormats
	case d.MaxFileSizeMB < 0:
		return errBadMaxSize
	case d.Timeout < 0 || d.InfoTimeout < 0:
		return errBadTimeout
	case d.Workers < 0 || d.QueueSize < 0:
		return errBadWorkers
	case d.Retention < 0:
		return errBadRetention
	}

	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("%w: %s", errUnknownLogLevel, c.LogLevel)
	}

	return nil
}
