package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/jgivc/mediafetch/internal/service/download"
)

const (
	maxBodySize = 64 << 10

	msgBadRequest   = "Invalid request."
	msgFileNotFound = "File not found or has expired"
)

type PageService interface {
	GetPage(ctx context.Context) (string, error)
}

type InfoService interface {
	Info(ctx context.Context, url string) (*entity.VideoInfo, error)
}

type DownloadService interface {
	Start(ctx context.Context, req entity.DownloadRequest) (string, error)
	Progress(ctx context.Context, id string) (*entity.ProgressRecord, error)
	Cancel(ctx context.Context, id string) error
	OpenArtifact(ctx context.Context, jobID, name string, ts int64, token string) (*download.ArtifactFile, error)
}

type infoRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL     string `json:"url"`
	Format  string `json:"format"`
	Quality string `json:"quality"`
	Title   string `json:"title"`
}

type startResponse struct {
	JobID string `json:"job_id"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func NewPageHandler(srv PageService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "PageHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		content, err := srv.GetPage(r.Context())
		if err != nil {
			log.Error("Cannot get page", slog.Any("error", err))
			http.Error(w, "Cannot get page", http.StatusInternalServerError)

			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(content))
	}
}

func NewHealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func NewInfoHandler(srv InfoService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "InfoHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req infoRequest
		if err := decode(w, r, &req); err != nil {
			log.Debug("Bad request body", slog.Any("error", err))
			writeError(w, http.StatusBadRequest, msgBadRequest)

			return
		}

		info, err := srv.Info(r.Context(), req.URL)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrInvalidURL):
				writeError(w, http.StatusBadRequest, common.UserMessage(err))
			case errors.Is(err, common.ErrVideoPrivate),
				errors.Is(err, common.ErrVideoUnavailable),
				errors.Is(err, common.ErrAuthRequired),
				errors.Is(err, common.ErrExtractionFailed),
				errors.Is(err, common.ErrInvalidVideo):
				writeError(w, http.StatusUnprocessableEntity, common.UserMessage(err))
			case errors.Is(err, common.ErrProcessTimeout):
				writeError(w, http.StatusGatewayTimeout, common.UserMessage(err))
			default:
				writeError(w, http.StatusInternalServerError, common.UserMessage(err))
			}

			return
		}

		writeJSON(w, http.StatusOK, info)
	}
}

func NewStartHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "StartHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		var req downloadRequest
		if err := decode(w, r, &req); err != nil {
			log.Debug("Bad request body", slog.Any("error", err))
			writeError(w, http.StatusBadRequest, msgBadRequest)

			return
		}

		id, err := srv.Start(r.Context(), entity.DownloadRequest{
			URL:     req.URL,
			Format:  req.Format,
			Quality: req.Quality,
			Title:   req.Title,
		})
		if err != nil {
			switch {
			case errors.Is(err, common.ErrInvalidURL), errors.Is(err, common.ErrFormatNotAllowed):
				writeError(w, http.StatusBadRequest, common.UserMessage(err))
			case errors.Is(err, common.ErrQueueFull):
				writeError(w, http.StatusServiceUnavailable, common.UserMessage(err))
			default:
				log.Error("Cannot start download", slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, common.UserMessage(err))
			}

			return
		}

		writeJSON(w, http.StatusAccepted, &startResponse{JobID: id})
	}
}

func NewProgressHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "ProgressHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if download.ValidateJobID(id) != nil {
			writeError(w, http.StatusBadRequest, common.UserMessage(common.ErrInvalidJobID))

			return
		}

		rec, err := srv.Progress(r.Context(), id)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrJobNotFound):
				writeError(w, http.StatusNotFound, common.UserMessage(err))
			case errors.Is(err, common.ErrInvalidJobID):
				writeError(w, http.StatusBadRequest, common.UserMessage(err))
			default:
				log.Error("Cannot get progress", slog.String("job_id", id), slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, "Cannot get progress.")
			}

			return
		}

		w.Header().Set("Cache-Control", "no-store")
		writeJSON(w, http.StatusOK, rec)
	}
}

func NewCancelHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "CancelHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")

		if err := srv.Cancel(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, common.ErrInvalidJobID):
				writeError(w, http.StatusBadRequest, common.UserMessage(err))
			case errors.Is(err, common.ErrJobNotRunningError):
				writeError(w, http.StatusNotFound, common.UserMessage(err))
			default:
				log.Error("Cannot cancel job", slog.String("job_id", id), slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, common.UserMessage(err))
			}

			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func NewFileHandler(srv DownloadService, log *slog.Logger) http.HandlerFunc {
	log = log.With(slog.String("handler", "FileHandler"))

	return func(w http.ResponseWriter, r *http.Request) {
		jobID, name := r.PathValue("job"), r.PathValue("name")
		q := r.URL.Query()

		ts, err := strconv.ParseInt(q.Get("ts"), 10, 64)
		if err != nil {
			http.Error(w, msgFileNotFound, http.StatusNotFound)

			return
		}

		f, err := srv.OpenArtifact(r.Context(), jobID, name, ts, q.Get("token"))
		if err != nil {
			if !errors.Is(err, common.ErrInvalidToken) && !errors.Is(err, common.ErrFileNotFoundError) {
				log.Error("Cannot open file", slog.String("job_id", jobID), slog.String("file", name), slog.Any("error", err))
			}
			http.Error(w, msgFileNotFound, http.StatusNotFound)

			return
		}
		defer f.Close()

		displayName := strings.TrimSpace(q.Get("display_name"))
		if displayName == "" {
			displayName = f.Name
		}

		h := w.Header()
		h.Set("Content-Type", f.MimeType)
		h.Set("Content-Disposition", contentDisposition(displayName))
		h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
		h.Set("Pragma", "no-cache")
		h.Set("Expires", "0")

		log.Info("Serve file", slog.String("job_id", jobID), slog.String("file", name), slog.Int64("size", f.Size))

		http.ServeContent(w, r, f.Name, f.ModTime, f)
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("cannot decode request: %w", err)
	}

	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, &errorResponse{Error: msg})
}

// contentDisposition keeps an ASCII filename for old clients and the exact name in filename*.
func contentDisposition(name string) string {
	var ascii strings.Builder
	for _, c := range name {
		switch {
		case c == '"' || c == '\\' || c < 0x20 || c == 0x7f:
		case c > 0x7e:
			ascii.WriteByte('_')
		default:
			ascii.WriteRune(c)
		}
	}

	return fmt.Sprintf(`attachment; filename="%s"; filename*=UTF-8''%s`, ascii.String(), pctEncode(name))
}

func pctEncode(s string) string {
	const hex = "0123456789ABCDEF"

	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}

	return b.String()
}
