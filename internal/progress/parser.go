// Package progress turns extraction tool output into ProgressRecords.
//
// Parsing is a pure fold over the line stream: every call receives the previous State
// and returns the next one, so a job's pipeline owns its state and nothing is shared.
package progress

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/jgivc/mediafetch/internal/entity"
)

const (
	ceilingPercent = 100

	floorExtractAudio = 85
	floorMerge        = 90
	floorFinalize     = 95
)

var (
	reTextProgress = regexp.MustCompile(`(?i)^\s*(?:\[download\]\s+)?(\d+(?:\.\d+)?)%(?:\s+of\s+~?\s*(\d+(?:\.\d+)?)\s*([KMGT]?i?B))?`)
	reTextSpeed    = regexp.MustCompile(`(?i)\bat\s+~?\s*(\d+(?:\.\d+)?)\s*([KMGT]?i?B)/s`)
)

// State is the per-job parse state.
type State struct {
	LastPercent      float64
	HasStarted       bool
	ReachedCeiling   bool
	DownloadedBytes  int64
	TotalBytes       int64
	SpeedBytesPerSec int64
}

// NewState returns a state whose last percent is below any real value.
func NewState() State {
	return State{LastPercent: -1}
}

type stage struct {
	markers []string
	floor   float64
	message string
}

var stages = []stage{
	{markers: []string{"[ExtractAudio]", "Extracting audio"}, floor: floorExtractAudio, message: "Extracting audio..."},
	{markers: []string{"[Merger]", "Merging formats"}, floor: floorMerge, message: "Merging video and audio..."},
	{markers: []string{"Deleting original file", "Post-processing"}, floor: floorFinalize, message: "Finalizing..."},
}

type jsonProgress struct {
	Downloaded *float64 `json:"downloaded"`
	Total      *float64 `json:"total"`
	Speed      *float64 `json:"speed"`
}

// Parse consumes one output line. The bool result is false when the line carries no update.
func Parse(line string, st State) (entity.ProgressRecord, bool, State) {
	line = strings.TrimSpace(line)
	if line == "" {
		return entity.ProgressRecord{}, false, st
	}

	if rec, ok, next, handled := parseJSON(line, st); handled {
		return rec, ok, next
	}

	if rec, ok, next, handled := parseText(line, st); handled {
		return rec, ok, next
	}

	if rec, ok, next, handled := parseStage(line, st); handled {
		return rec, ok, next
	}

	if !st.HasStarted && (strings.Contains(line, "[download]") || strings.Contains(line, "Downloading")) {
		st.HasStarted = true

		return entity.ProgressRecord{
			Status:  entity.StatusDownloading,
			Percent: 0,
			Message: "Starting download...",
		}, true, st
	}

	return entity.ProgressRecord{}, false, st
}

func parseJSON(line string, st State) (entity.ProgressRecord, bool, State, bool) {
	if line[0] != '{' {
		return entity.ProgressRecord{}, false, st, false
	}

	var p jsonProgress
	if err := json.Unmarshal([]byte(line), &p); err != nil || p.Downloaded == nil {
		return entity.ProgressRecord{}, false, st, false
	}

	st.DownloadedBytes = toBytes(p.Downloaded)
	st.TotalBytes = toBytes(p.Total)
	st.SpeedBytesPerSec = toBytes(p.Speed)

	if st.TotalBytes <= 0 {
		return entity.ProgressRecord{}, false, st, true
	}

	percent := clamp(float64(st.DownloadedBytes) / float64(st.TotalBytes) * 100)

	next, ok := accept(percent, st)
	if !ok {
		return entity.ProgressRecord{}, false, st, true
	}

	msg := fmt.Sprintf("Downloading... %s / %s (%s/s)",
		humanize.IBytes(uint64(next.DownloadedBytes)),
		humanize.IBytes(uint64(next.TotalBytes)),
		humanize.IBytes(uint64(next.SpeedBytesPerSec)),
	)
	if next.ReachedCeiling {
		msg = "Processing file..."
	}

	return transferRecord(next, msg), true, next, true
}

func parseText(line string, st State) (entity.ProgressRecord, bool, State, bool) {
	m := reTextProgress.FindStringSubmatch(line)
	if m == nil {
		return entity.ProgressRecord{}, false, st, false
	}

	percent, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return entity.ProgressRecord{}, false, st, true
	}
	percent = clamp(percent)

	if m[2] != "" {
		if total, ok := ParseSize(m[2], m[3]); ok && total > 0 {
			st.TotalBytes = total
			st.DownloadedBytes = int64(math.Round(percent / 100 * float64(total)))
		}
	}

	if sm := reTextSpeed.FindStringSubmatch(line); sm != nil {
		if speed, ok := ParseSize(sm[1], sm[2]); ok {
			st.SpeedBytesPerSec = speed
		}
	}

	next, ok := accept(percent, st)
	if !ok {
		return entity.ProgressRecord{}, false, st, true
	}

	msg := fmt.Sprintf("Downloading... %.1f%%", next.LastPercent)
	if next.ReachedCeiling {
		msg = "Processing file..."
	}

	return transferRecord(next, msg), true, next, true
}

func parseStage(line string, st State) (entity.ProgressRecord, bool, State, bool) {
	for _, s := range stages {
		if !containsAny(line, s.markers) {
			continue
		}

		percent := s.floor
		if st.ReachedCeiling {
			percent = ceilingPercent
		} else if st.LastPercent >= s.floor {
			return entity.ProgressRecord{}, false, st, true
		}

		st.LastPercent = percent
		st.SpeedBytesPerSec = 0

		return entity.ProgressRecord{
			Status:          entity.StatusProcessing,
			Percent:         percent,
			Message:         s.message,
			DownloadedBytes: st.DownloadedBytes,
			TotalBytes:      st.TotalBytes,
		}, true, st, true
	}

	return entity.ProgressRecord{}, false, st, false
}

// accept applies the ceiling rule. Before the ceiling any percent is taken, so a second
// stream restarting its count is tolerated. After it only 100 is ever reported.
func accept(percent float64, st State) (State, bool) {
	if percent < st.LastPercent && st.ReachedCeiling {
		return st, false
	}

	if percent >= ceilingPercent {
		st.ReachedCeiling = true
	}
	if st.ReachedCeiling {
		percent = ceilingPercent
	}

	st.LastPercent = percent
	st.HasStarted = true

	return st, true
}

func transferRecord(st State, msg string) entity.ProgressRecord {
	status := entity.StatusDownloading
	if st.ReachedCeiling {
		status = entity.StatusProcessing
	}

	return entity.ProgressRecord{
		Status:           status,
		Percent:          st.LastPercent,
		Message:          msg,
		DownloadedBytes:  st.DownloadedBytes,
		TotalBytes:       st.TotalBytes,
		SpeedBytesPerSec: st.SpeedBytesPerSec,
	}
}

func toBytes(v *float64) int64 {
	if v == nil || *v < 0 || math.IsNaN(*v) {
		return 0
	}

	return int64(math.Round(*v))
}

func clamp(percent float64) float64 {
	return math.Max(0, math.Min(ceilingPercent, percent))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}

	return false
}
