package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/config"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/jgivc/mediafetch/internal/runner"
	"github.com/spf13/afero"
)

const unknownValue = "Unknown"

type ProcessRunner interface {
	Run(ctx context.Context, c runner.Command, onLine runner.LineFunc) (*runner.Result, error)
}

type client struct {
	fs     afero.Fs
	cfg    *config.DownloaderConfig
	runner ProcessRunner
	log    *slog.Logger
}

func NewClient(cfg *config.DownloaderConfig, r ProcessRunner, log *slog.Logger) *client {
	return NewClientWithFS(afero.NewOsFs(), cfg, r, log)
}

func NewClientWithFS(fs afero.Fs, cfg *config.DownloaderConfig, r ProcessRunner, log *slog.Logger) *client {
	return &client{
		fs:     fs,
		cfg:    cfg,
		runner: r,
		log:    log.With(slog.String("item", "YtdlpClient")),
	}
}

// CheckTool reports whether the configured binary can be executed.
func (c *client) CheckTool() error {
	if _, err := exec.LookPath(c.cfg.YtdlpPath); err != nil {
		return fmt.Errorf("%w: %s: %w", common.ErrToolNotFound, c.cfg.YtdlpPath, err)
	}

	return nil
}

// DownloadCommand builds the download invocation. outputTemplate is passed to -o as is.
func (c *client) DownloadCommand(req entity.DownloadRequest, outputTemplate string) runner.Command {
	format := strings.ToLower(req.Format)

	args := []string{
		"--newline",
		"--no-playlist",
		"--concurrent-fragments", strconv.Itoa(c.cfg.ConcurrentFragments),
		"--extractor-args", extractorArgs,
		"--progress-template", progressTemplate,
	}

	if IsAudioFormat(format) {
		args = append(args,
			"-x",
			"--audio-format", format,
			"--audio-quality", AudioQuality(req.Quality),
		)
	} else {
		args = append(args,
			"-f", FormatSpec(format, req.Quality),
			"--merge-output-format", format,
		)
	}

	args = append(args, c.commonArgs()...)
	args = append(args, "-o", outputTemplate, "--", req.URL)

	return runner.Command{
		Path:    c.cfg.YtdlpPath,
		Args:    args,
		Timeout: c.cfg.Timeout,
	}
}

func (c *client) infoCommand(url string) runner.Command {
	args := []string{
		"--dump-json",
		"--no-warnings",
		"--no-playlist",
		"--extractor-args", extractorArgs,
	}
	args = append(args, c.commonArgs()...)
	args = append(args, "--", url)

	return runner.Command{
		Path:    c.cfg.YtdlpPath,
		Args:    args,
		Timeout: c.cfg.InfoTimeout,
	}
}

func (c *client) commonArgs() []string {
	var args []string

	if c.cfg.CookiesFile != "" {
		if _, err := c.fs.Stat(c.cfg.CookiesFile); err == nil {
			args = append(args, "--cookies", c.cfg.CookiesFile)
		} else {
			c.log.Warn("Cookies file is not accessible", slog.String("path", c.cfg.CookiesFile), slog.Any("error", err))
		}
	}

	if c.cfg.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", c.cfg.FFmpegPath)
	}

	return args
}

func (c *client) FetchInfo(ctx context.Context, url string) (*entity.VideoInfo, error) {
	if err := c.CheckTool(); err != nil {
		return nil, err
	}

	cmd := c.infoCommand(url)
	if c.cfg.Diagnostics {
		c.log.Debug("Fetch info", slog.String("command", cmd.String()))
	}

	var stdout bytes.Buffer
	res, err := c.runner.Run(ctx, cmd, func(s runner.Stream, line string) {
		if s == runner.Stdout {
			stdout.WriteString(line)
			stdout.WriteByte('\n')
		}
	})

	var exitErr *runner.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, err
	}

	info, perr := ParseInfo(stdout.Bytes())
	if perr == nil {
		return info, nil
	}

	var output string
	if res != nil {
		output = res.Output
	}

	if c.cfg.Diagnostics {
		c.log.Debug("Fetch info failed", slog.String("url", url), slog.String("output", output))
	}

	return nil, Classify(output)
}

type rawFormat struct {
	Height *float64 `json:"height"`
	VCodec *string  `json:"vcodec"`
}

type rawInfo struct {
	Title     string      `json:"title"`
	Uploader  string      `json:"uploader"`
	Duration  float64     `json:"duration"`
	Thumbnail string      `json:"thumbnail"`
	Formats   []rawFormat `json:"formats"`
}

// ParseInfo decodes --dump-json output.
func ParseInfo(data []byte) (*entity.VideoInfo, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, common.ErrInvalidVideo
	}

	var raw rawInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidVideo, err)
	}

	info := &entity.VideoInfo{
		Title:              raw.Title,
		Uploader:           raw.Uploader,
		DurationSeconds:    int(raw.Duration),
		ThumbnailURL:       raw.Thumbnail,
		AvailableQualities: []int{},
	}
	if info.Title == "" {
		info.Title = unknownValue
	}
	if info.Uploader == "" {
		info.Uploader = unknownValue
	}

	seen := make(map[int]struct{})
	for _, f := range raw.Formats {
		if f.Height == nil || *f.Height <= 0 {
			continue
		}
		if f.VCodec != nil && *f.VCodec == "none" {
			continue
		}

		h := int(*f.Height)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		info.AvailableQualities = append(info.AvailableQualities, h)
	}

	slices.SortFunc(info.AvailableQualities, func(a, b int) int { return b - a })

	return info, nil
}

func (c *client) Classify(output string) error {
	return Classify(output)
}

// Classify turns the tool's combined output into the matching extraction error.
func Classify(output string) error {
	if !strings.Contains(output, "ERROR") && !strings.Contains(output, "error") {
		return common.ErrInvalidVideo
	}

	switch {
	case strings.Contains(output, "Private video"):
		return common.ErrVideoPrivate
	case strings.Contains(output, "Video unavailable"):
		return common.ErrVideoUnavailable
	case strings.Contains(output, "Sign in"), strings.Contains(output, "authentication"):
		return common.ErrAuthRequired
	default:
		return common.ErrExtractionFailed
	}
}
