package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`listen: ":9000"`))
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.Listen)
	require.Equal(t, LogLevelInfo, cfg.LogLevel)
	require.Equal(t, "yt-dlp", cfg.Downloader.YtdlpPath)
	require.Equal(t, filepath.Join(os.TempDir(), "mediafetch"), cfg.Downloader.WorkDir)
	require.Equal(t, int64(500*1024*1024), cfg.Downloader.MaxFileSize())
	require.Equal(t, 300*time.Second, cfg.Downloader.Timeout)
	require.Equal(t, time.Hour, cfg.Downloader.Retention)
	require.Equal(t, []string{"mp4", "webm", "mkv", "mp3", "m4a"}, cfg.Downloader.AllowedFormats)
	require.Equal(t, 4, cfg.Downloader.ConcurrentFragments)
	require.Equal(t, 200*time.Millisecond, cfg.Downloader.PollInterval)
}

func TestParse(t *testing.T) {
	t.Setenv("MEDIAFETCH_TEST_SECRET", "s3cret")

	src := `
url: "https://media.example.com/"
log_level: debug
diagnostics: true
secret: ${MEDIAFETCH_TEST_SECRET}
rate_limit:
  rps: 2.5
  burst: 10
downloader:
  ytdlp_path: /usr/local/bin/yt-dlp
  work_dir: /var/lib/mediafetch
  max_file_size_mb: 100
  timeout: 90s
  allowed_formats: [MP4, " mp3 "]
  retention: 30m
`

	cfg, err := Parse([]byte(src))
	require.NoError(t, err)

	require.Equal(t, "https://media.example.com", cfg.URL)
	require.Equal(t, "s3cret", cfg.Secret)
	require.Equal(t, 2.5, cfg.RateLimit.RPS)
	require.Equal(t, 10, cfg.RateLimit.Burst)
	require.Equal(t, "/usr/local/bin/yt-dlp", cfg.Downloader.YtdlpPath)
	require.Equal(t, int64(100*1024*1024), cfg.Downloader.MaxFileSize())
	require.Equal(t, 90*time.Second, cfg.Downloader.Timeout)
	require.Equal(t, 30*time.Minute, cfg.Downloader.Retention)
	require.True(t, cfg.Downloader.Diagnostics)
	require.True(t, cfg.Downloader.IsFormatAllowed("mp4"))
	require.True(t, cfg.Downloader.IsFormatAllowed("MP3"))
	require.False(t, cfg.Downloader.IsFormatAllowed("webm"))
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{name: "Scenario 1: unknown log level", src: "log_level: trace"},
		{name: "Scenario 2: negative size", src: "downloader:\n  max_file_size_mb: -1"},
		{name: "Scenario 3: negative timeout", src: "downloader:\n  timeout: -1s"},
		{name: "Scenario 4: broken yaml", src: "listen: [unclosed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src))
			require.Error(t, err)
		})
	}
}

func TestMustLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":1234\"\n"), 0o644))

	cfg := MustLoad(path)
	require.Equal(t, ":1234", cfg.Listen)

	require.Panics(t, func() {
		MustLoad(filepath.Join(t.TempDir(), "missing.yml"))
	})
}
