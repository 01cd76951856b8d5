package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/config"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/jgivc/mediafetch/internal/progress"
	"github.com/jgivc/mediafetch/internal/runner"
	"github.com/jgivc/mediafetch/internal/util"
	"github.com/jgivc/mediafetch/internal/worker"
	"github.com/spf13/afero"
)

const (
	serviceName = "download"

	JobIDPrefix = "dl_"

	DefaultFormat  = "mp4"
	DefaultQuality = "best"

	storeTimeout = 5 * time.Second
)

var (
	jobIDRegexp = regexp.MustCompile(`^dl_[a-f\d]{8}-[a-f\d]{4}-[a-f\d]{4}-[a-f\d]{4}-[a-f\d]{12}$`)
)

type ProgressStore interface {
	Put(ctx context.Context, id string, rec entity.ProgressRecord, ttl time.Duration) error
	Get(ctx context.Context, id string) (*entity.ProgressRecord, error)
}

type CleanupSchedule interface {
	Schedule(ctx context.Context, path string, at time.Time) error
}

type Scheduler interface {
	Submit(task worker.Task) error
}

type Downloader interface {
	CheckTool() error
	FetchInfo(ctx context.Context, url string) (*entity.VideoInfo, error)
	DownloadCommand(req entity.DownloadRequest, outputTemplate string) runner.Command
	Classify(output string) error
}

type ProcessRunner interface {
	Run(ctx context.Context, c runner.Command, onLine runner.LineFunc) (*runner.Result, error)
}

type ArtifactStore interface {
	JobDir(jobID string) (string, error)
	Resolve(expectedPath, title, format string) (*entity.Artifact, error)
	Remove(path string) error
	Open(jobID, name string) (afero.File, os.FileInfo, error)
	MimeType(path string) string
}

type TokenSigner interface {
	Sign(ref string) (int64, string)
	Verify(ref string, ts int64, token string) error
}

type Deps struct {
	Store      ProgressStore
	Cleanup    CleanupSchedule
	Scheduler  Scheduler
	Downloader Downloader
	Runner     ProcessRunner
	Files      ArtifactStore
	Signer     TokenSigner
}

// ArtifactFile is an opened, verified artifact ready to be streamed.
type ArtifactFile struct {
	io.ReadSeekCloser
	Name     string
	Size     int64
	MimeType string
	ModTime  time.Time
}

type downloadService struct {
	cfg     *config.DownloaderConfig
	baseURL string
	deps    Deps

	mu      sync.Mutex
	running map[string]context.CancelFunc

	now func() time.Time
	log *slog.Logger
}

func NewDownloadService(cfg *config.DownloaderConfig, baseURL string, deps Deps, log *slog.Logger) *downloadService {
	return &downloadService{
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		deps:    deps,
		running: make(map[string]context.CancelFunc),
		now:     time.Now,
		log:     log.With(slog.String("service", serviceName)),
	}
}

func ValidateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return common.ErrInvalidURL
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return common.ErrInvalidURL
	}

	return nil
}

func ValidateJobID(id string) error {
	if !jobIDRegexp.MatchString(id) {
		return common.ErrInvalidJobID
	}

	return nil
}

// Start validates the request, writes the initial record and hands the job to the scheduler.
func (s *downloadService) Start(ctx context.Context, req entity.DownloadRequest) (string, error) {
	req.URL = strings.TrimSpace(req.URL)
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	req.Quality = strings.TrimSpace(req.Quality)
	req.Title = strings.TrimSpace(req.Title)

	if req.Format == "" {
		req.Format = DefaultFormat
	}
	if req.Quality == "" {
		req.Quality = DefaultQuality
	}

	if err := ValidateURL(req.URL); err != nil {
		return "", err
	}
	if !s.cfg.IsFormatAllowed(req.Format) {
		return "", fmt.Errorf("%w: %s", common.ErrFormatNotAllowed, req.Format)
	}

	job := &entity.Job{
		ID:        JobIDPrefix + uuid.NewString(),
		Request:   req,
		CreatedAt: s.now(),
	}

	log := s.log.With(slog.String("job_id", job.ID))

	if err := s.deps.Store.Put(ctx, job.ID, entity.ProgressRecord{
		Status:  entity.StatusStarting,
		Message: "Preparing download...",
	}, s.cfg.Retention); err != nil {
		log.Error("Cannot save initial progress", slog.Any("error", err))

		return "", fmt.Errorf("cannot save job %s progress: %w", job.ID, err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[job.ID] = cancel
	s.mu.Unlock()

	err := s.deps.Scheduler.Submit(func(poolCtx context.Context) {
		stop := context.AfterFunc(poolCtx, cancel)
		defer stop()

		s.run(jobCtx, job)
	})
	if err != nil {
		s.release(job.ID)
		log.Warn("Cannot schedule job", slog.Any("error", err))
		s.fail(job, log, err)

		return "", err
	}

	log.Info("Job accepted", slog.String("url", req.URL), slog.String("format", req.Format), slog.String("quality", req.Quality))

	return job.ID, nil
}

func (s *downloadService) Progress(ctx context.Context, id string) (*entity.ProgressRecord, error) {
	if err := ValidateJobID(id); err != nil {
		return nil, err
	}

	rec, err := s.deps.Store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, common.ErrJobNotFound) {
			s.log.Error("Cannot get progress", slog.String("job_id", id), slog.Any("error", err))
		}

		return nil, err
	}

	return rec, nil
}

// Cancel kills the job's process. The job itself writes the terminal record.
func (s *downloadService) Cancel(_ context.Context, id string) error {
	if err := ValidateJobID(id); err != nil {
		return err
	}

	s.mu.Lock()
	cancel, ok := s.running[id]
	s.mu.Unlock()

	if !ok {
		return common.ErrJobNotRunningError
	}

	s.log.Info("Cancel job", slog.String("job_id", id))
	cancel()

	return nil
}

// OpenArtifact checks the download token and opens the file it refers to.
func (s *downloadService) OpenArtifact(_ context.Context, jobID, name string, ts int64, token string) (*ArtifactFile, error) {
	if ValidateJobID(jobID) != nil {
		return nil, common.ErrFileNotFoundError
	}

	if err := s.deps.Signer.Verify(artifactRef(jobID, name), ts, token); err != nil {
		s.log.Warn("Rejected download token", slog.String("job_id", jobID), slog.String("file", name))

		return nil, err
	}

	f, stat, err := s.deps.Files.Open(jobID, name)
	if err != nil {
		return nil, err
	}

	return &ArtifactFile{
		ReadSeekCloser: f,
		Name:           name,
		Size:           stat.Size(),
		MimeType:       s.deps.Files.MimeType(filepath.Join(s.cfg.WorkDir, jobID, name)),
		ModTime:        stat.ModTime(),
	}, nil
}

func (s *downloadService) run(ctx context.Context, job *entity.Job) {
	log := s.log.With(slog.String("job_id", job.ID))

	defer s.release(job.ID)
	defer func() {
		if r := recover(); r != nil {
			log.Error("Job panicked", slog.Any("panic", r))
			s.fail(job, log, fmt.Errorf("unexpected failure: %v", r))
		}
	}()

	if err := ctx.Err(); err != nil {
		s.fail(job, log, common.ErrProcessCancelled)

		return
	}

	log.Info("Job started")

	if err := s.deps.Downloader.CheckTool(); err != nil {
		s.fail(job, log, err)

		return
	}

	req := job.Request

	title := req.Title
	if title == "" {
		if info, err := s.deps.Downloader.FetchInfo(ctx, req.URL); err == nil {
			title = info.Title
		} else {
			log.Warn("Cannot fetch title", slog.Any("error", err))
		}
	}
	title = util.SanitizeTitle(title)
	if title == "" {
		title = util.FallbackTitle
	}

	dir, err := s.deps.Files.JobDir(job.ID)
	if err != nil {
		s.fail(job, log, err)

		return
	}
	job.WorkDir = dir

	s.put(job.ID, log, entity.ProgressRecord{
		Status:  entity.StatusStarting,
		Message: "Initializing download...",
	})

	cmd := s.deps.Downloader.DownloadCommand(req, filepath.Join(dir, title+".%(ext)s"))
	cmd.Dir = dir

	if s.cfg.Diagnostics {
		log.Debug("Run command", slog.String("command", cmd.String()))
	}

	st := progress.NewState()
	res, err := s.deps.Runner.Run(ctx, cmd, func(stream runner.Stream, line string) {
		if s.cfg.Diagnostics {
			log.Debug("Tool output", slog.String("stream", stream.String()), slog.String("line", line))
		}

		rec, ok, next := progress.Parse(line, st)
		st = next
		if ok {
			s.put(job.ID, log, rec)
		}
	})

	var output string
	if res != nil {
		output = res.Output
	}

	var exitErr *runner.ExitError
	if err != nil {
		if !errors.As(err, &exitErr) {
			s.logOutput(log, output)
			s.fail(job, log, err)

			return
		}

		log.Warn("Tool exited with error", slog.Int("exit_code", exitErr.Code))
	}

	art, err := s.deps.Files.Resolve(filepath.Join(dir, title+"."+req.Format), title, req.Format)
	if err != nil {
		s.logOutput(log, output)

		cause := s.deps.Downloader.Classify(output)
		if errors.Is(cause, common.ErrInvalidVideo) {
			cause = err
		}
		s.fail(job, log, cause)

		return
	}

	if limit := s.cfg.MaxFileSize(); limit > 0 && art.Size > limit {
		if err := s.deps.Files.Remove(art.Path); err != nil {
			log.Error("Cannot remove oversized file", slog.String("path", art.Path), slog.Any("error", err))
		}
		s.fail(job, log, fmt.Errorf("%w: %d bytes", common.ErrFileTooLarge, art.Size))

		return
	}

	ts, token := s.deps.Signer.Sign(artifactRef(job.ID, art.Name))

	s.put(job.ID, log, entity.ProgressRecord{
		Status:          entity.StatusComplete,
		Percent:         100,
		Message:         "Download complete!",
		DownloadedBytes: art.Size,
		TotalBytes:      art.Size,
		DownloadURL:     s.downloadURL(job.ID, art, ts, token),
		FileName:        art.DisplayName,
		FileSize:        art.Size,
	})

	s.scheduleCleanup(job, log)

	log.Info("Job complete", slog.String("file", art.Name), slog.Int64("size", art.Size),
		slog.Duration("elapsed", s.now().Sub(job.CreatedAt)))
}

func (s *downloadService) fail(job *entity.Job, log *slog.Logger, err error) {
	msg := common.UserMessage(err)
	log.Error("Job failed", slog.String("reason", msg), slog.Any("error", err))

	s.put(job.ID, log, entity.ProgressRecord{
		Status:       entity.StatusError,
		Message:      msg,
		ErrorMessage: msg,
	})

	if job.WorkDir != "" {
		s.scheduleCleanup(job, log)
	}
}

func (s *downloadService) put(id string, log *slog.Logger, rec entity.ProgressRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.deps.Store.Put(ctx, id, rec, s.cfg.Retention); err != nil {
		log.Error("Cannot save progress", slog.String("status", rec.Status.String()), slog.Any("error", err))
	}
}

func (s *downloadService) scheduleCleanup(job *entity.Job, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.deps.Cleanup.Schedule(ctx, job.WorkDir, s.now().Add(s.cfg.Retention)); err != nil {
		log.Error("Cannot schedule cleanup", slog.String("path", job.WorkDir), slog.Any("error", err))
	}
}

func (s *downloadService) logOutput(log *slog.Logger, output string) {
	if s.cfg.Diagnostics && output != "" {
		log.Debug("Tool output on failure", slog.String("output", output))
	}
}

func (s *downloadService) release(id string) {
	s.mu.Lock()
	cancel, ok := s.running[id]
	delete(s.running, id)
	s.mu.Unlock()

	if ok {
		cancel()
	}
}

func (s *downloadService) downloadURL(jobID string, art *entity.Artifact, ts int64, token string) string {
	q := url.Values{}
	q.Set("ts", strconv.FormatInt(ts, 10))
	q.Set("token", token)
	q.Set("display_name", art.DisplayName)

	return fmt.Sprintf("%s/file/%s/%s?%s", s.baseURL, url.PathEscape(jobID), url.PathEscape(art.Name), q.Encode())
}

func artifactRef(jobID, name string) string {
	return jobID + "/" + name
}
