package fsadapter

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/config"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/spf13/afero"
)

const (
	mimeTypeUnknown       = "application/octet-stream"
	mimeTypeCheckPartSize = 512

	dirPerm = 0o755
)

var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".flac": "audio/flac",
}

type fsAdapter struct {
	fs  afero.Fs
	cfg *config.DownloaderConfig
	log *slog.Logger
}

func NewFSAdapter(cfg *config.DownloaderConfig, log *slog.Logger) (*fsAdapter, error) {
	return NewFSAdapterWithFS(afero.NewOsFs(), cfg, log)
}

func NewFSAdapterWithFS(fs afero.Fs, cfg *config.DownloaderConfig, log *slog.Logger) (*fsAdapter, error) {
	if cfg.WorkDir == "" {
		return nil, fmt.Errorf("work dir is not set")
	}

	if err := fs.MkdirAll(cfg.WorkDir, dirPerm); err != nil {
		return nil, fmt.Errorf("cannot create work dir: %w", err)
	}

	return &fsAdapter{
		fs:  fs,
		cfg: cfg,
		log: log.With(slog.String("item", "FSAdapter")),
	}, nil
}

// JobDir creates the private working directory of a job.
func (a *fsAdapter) JobDir(jobID string) (string, error) {
	if jobID == "" || jobID != filepath.Base(jobID) || strings.HasPrefix(jobID, ".") {
		return "", common.ErrInvalidJobID
	}

	dir := filepath.Join(a.cfg.WorkDir, jobID)
	if err := a.fs.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("cannot create job dir: %w", err)
	}

	return dir, nil
}

// Open returns a finished artifact of a job for reading.
func (a *fsAdapter) Open(jobID, name string) (afero.File, os.FileInfo, error) {
	if !isPlainName(jobID) || !isPlainName(name) {
		return nil, nil, common.ErrFileNotFoundError
	}

	path := filepath.Join(a.cfg.WorkDir, jobID, name)
	if !isWithin(a.cfg.WorkDir, path) {
		return nil, nil, common.ErrFileNotFoundError
	}

	stat, err := a.fs.Stat(path)
	if err != nil || !stat.Mode().IsRegular() {
		return nil, nil, common.ErrFileNotFoundError
	}

	f, err := a.fs.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", common.ErrFileNotFoundError, err)
	}

	return f, stat, nil
}

func (a *fsAdapter) Remove(path string) error {
	if !isWithin(a.cfg.WorkDir, path) {
		return fmt.Errorf("refusing to remove %s outside of work dir", path)
	}

	return a.fs.Remove(path)
}

// RemoveDir deletes a job directory with everything in it.
func (a *fsAdapter) RemoveDir(dir string) error {
	if !isWithin(a.cfg.WorkDir, dir) {
		return fmt.Errorf("refusing to remove %s outside of work dir", dir)
	}

	return a.fs.RemoveAll(dir)
}

// MimeType picks the content type by extension and sniffs the head of unknown files.
func (a *fsAdapter) MimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mimeType, ok := mimeTypes[ext]; ok {
		return mimeType
	}

	if ext != "" {
		if mimeType := mime.TypeByExtension(ext); mimeType != "" {
			return mimeType
		}
	}

	file, err := a.fs.Open(path)
	if err != nil {
		return mimeTypeUnknown
	}
	defer file.Close()

	buffer := make([]byte, mimeTypeCheckPartSize)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return mimeTypeUnknown
	}

	return http.DetectContentType(buffer[:n])
}

func (a *fsAdapter) fileInfo(path string) (os.FileInfo, bool) {
	stat, err := a.fs.Stat(path)
	if err != nil || !stat.Mode().IsRegular() {
		return nil, false
	}

	return stat, true
}

func (a *fsAdapter) artifact(path, displayName string) (*entity.Artifact, error) {
	stat, ok := a.fileInfo(path)
	if !ok {
		return nil, common.ErrArtifactNotFound
	}

	return &entity.Artifact{
		Path:        path,
		Name:        filepath.Base(path),
		DisplayName: displayName,
		Size:        stat.Size(),
	}, nil
}

func isPlainName(name string) bool {
	return name != "" && name != "." && name != ".." && name == filepath.Base(name) && !strings.ContainsAny(name, `/\`)
}

// isWithin reports whether path lies strictly inside dir.
func isWithin(dir, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}

	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
