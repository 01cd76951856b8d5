package ytdlp

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	extractorArgs = "youtube:player_client=default"

	// One JSON object per progress tick, consumed by the progress parser.
	progressTemplate = `download:{"downloaded":%(progress.downloaded_bytes|0)d,"total":%(progress.total_bytes,progress.total_bytes_estimate|0)d,"speed":%(progress.speed|0)d}`

	QualityBest  = "best"
	QualityWorst = "worst"
)

var (
	audioFormats   = []string{"mp3", "m4a", "wav", "flac", "aac", "ogg", "opus"}
	mergeFormats   = []string{"mp4", "mkv", "webm", "flv"}
	reNonDigits    = regexp.MustCompile(`[^0-9]`)
	reNumericValue = regexp.MustCompile(`^\d+(\.\d+)?$`)
)

func IsAudioFormat(format string) bool {
	return slices.Contains(audioFormats, strings.ToLower(format))
}

// AudioQuality maps a requested quality to the --audio-quality value.
func AudioQuality(quality string) string {
	switch {
	case quality == QualityBest:
		return "0"
	case quality == QualityWorst:
		return "9"
	case reNumericValue.MatchString(quality):
		return quality + "K"
	default:
		return "5"
	}
}

// FormatSpec builds the -f selector for a video request.
func FormatSpec(format, quality string) string {
	format = strings.ToLower(format)
	height := requestedHeight(quality)

	if slices.Contains(mergeFormats, format) {
		switch {
		case quality == QualityWorst:
			return "worstvideo+worstaudio/worst"
		case height > 0:
			return fmt.Sprintf("bestvideo[height<=%d]+bestaudio/best[height<=%d]/bestvideo+bestaudio", height, height)
		default:
			return "bestvideo+bestaudio/best"
		}
	}

	switch {
	case quality == QualityWorst:
		return fmt.Sprintf("worst[ext=%s]/worstvideo+worstaudio/worst", format)
	case height > 0:
		return fmt.Sprintf("best[height<=%d][ext=%s]/bestvideo[height<=%d]+bestaudio/best[height<=%d]", height, format, height, height)
	default:
		return fmt.Sprintf("best[ext=%s]/bestvideo+bestaudio/best", format)
	}
}

func requestedHeight(quality string) int {
	if quality == QualityBest || quality == QualityWorst {
		return 0
	}

	h, err := strconv.Atoi(reNonDigits.ReplaceAllString(quality, ""))
	if err != nil || h < 0 {
		return 0
	}

	return h
}
