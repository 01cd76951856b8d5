package fsadapter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/spf13/afero"
)

var (
	tempSuffixes = []string{".part", ".temp", ".tmp", ".ytdl"}
	audioExts    = []string{"mp3", "m4a", "wav", "flac", "aac", "ogg", "opus"}

	reFragment       = regexp.MustCompile(`\.part-Frag\d+`)
	reIntermediateID = regexp.MustCompile(`\.f\d+\.[A-Za-z0-9]+$`)
)

type candidate struct {
	path     string
	name     string
	hasTitle bool
	modTime  int64
}

type matcher func(name string) bool

// Resolve finds the file the tool produced for expectedPath. The exact path wins, otherwise
// the directory of expectedPath is searched. When title is set the result is renamed to
// "<title>.<ext>".
func (a *fsAdapter) Resolve(expectedPath, title, format string) (*entity.Artifact, error) {
	dir := filepath.Dir(expectedPath)
	format = strings.ToLower(format)

	path := expectedPath
	if _, ok := a.fileInfo(expectedPath); !ok {
		found, err := a.search(dir, title, format)
		if err != nil {
			return nil, err
		}
		path = found
	}

	if title == "" {
		return a.artifact(path, filepath.Base(path))
	}

	return a.normalize(path, title)
}

func (a *fsAdapter) search(dir, title, format string) (string, error) {
	entries, err := afero.ReadDir(a.fs, dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrArtifactNotFound, err)
	}

	exts := []string{format}
	if slices.Contains(audioExts, format) {
		exts = audioExts
	}

	var matchers []matcher
	if title != "" {
		matchers = append(matchers,
			func(name string) bool { return name == title+"."+format },
			func(name string) bool {
				return strings.HasPrefix(name, title+"_") && strings.HasSuffix(name, "."+format)
			},
			func(name string) bool { return strings.HasPrefix(name, title+".") && hasExt(name, exts) },
		)
	}
	matchers = append(matchers, func(name string) bool { return hasExt(name, exts) })

	var candidates []candidate
	seen := make(map[string]struct{})

	for _, match := range matchers {
		for _, entry := range entries {
			name := entry.Name()
			if _, ok := seen[name]; ok || !usable(entry) || !match(name) {
				continue
			}

			path := filepath.Join(dir, name)
			if !isWithin(dir, path) {
				continue
			}

			seen[name] = struct{}{}
			candidates = append(candidates, candidate{
				path:     path,
				name:     name,
				hasTitle: title != "" && strings.Contains(name, title),
				modTime:  entry.ModTime().UnixNano(),
			})
		}
	}

	if len(candidates) == 0 {
		return "", common.ErrArtifactNotFound
	}

	slices.SortStableFunc(candidates, func(x, y candidate) int {
		if x.hasTitle != y.hasTitle {
			if x.hasTitle {
				return -1
			}
			return 1
		}

		switch {
		case x.modTime > y.modTime:
			return -1
		case x.modTime < y.modTime:
			return 1
		}

		return 0
	})

	if len(candidates) > 1 {
		a.log.Debug("Several artifact candidates", slog.String("dir", dir), slog.Int("count", len(candidates)),
			slog.String("chosen", candidates[0].name))
	}

	return candidates[0].path, nil
}

func (a *fsAdapter) normalize(path, title string) (*entity.Artifact, error) {
	cleanName := title + filepath.Ext(path)
	cleanPath := filepath.Join(filepath.Dir(path), cleanName)

	if path == cleanPath {
		return a.artifact(path, cleanName)
	}

	if _, ok := a.fileInfo(cleanPath); ok {
		if err := a.fs.Remove(cleanPath); err != nil {
			a.log.Warn("Cannot remove stale file", slog.String("path", cleanPath), slog.Any("error", err))
		}
	}

	if err := a.fs.Rename(path, cleanPath); err != nil {
		a.log.Warn("Cannot rename artifact", slog.String("from", path), slog.String("to", cleanPath), slog.Any("error", err))

		return a.artifact(path, cleanName)
	}

	return a.artifact(cleanPath, cleanName)
}

func usable(entry os.FileInfo) bool {
	if !entry.Mode().IsRegular() {
		return false
	}

	name := strings.ToLower(entry.Name())
	for _, suffix := range tempSuffixes {
		if strings.HasSuffix(name, suffix) {
			return false
		}
	}

	return !reFragment.MatchString(entry.Name()) && !reIntermediateID.MatchString(entry.Name())
}

func hasExt(name string, exts []string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")

	return slices.Contains(exts, ext)
}
