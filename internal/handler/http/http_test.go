package httphandler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/jgivc/mediafetch/internal/service/download"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const testJobID = "dl_0b9a6c1e-3f4d-4c2b-9a7e-5d6f7a8b9c0d"

type MockDownloadService struct {
	mock.Mock
}

func (m *MockDownloadService) Start(ctx context.Context, req entity.DownloadRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockDownloadService) Progress(ctx context.Context, id string) (*entity.ProgressRecord, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*entity.ProgressRecord), args.Error(1)
	}

	return nil, args.Error(1)
}

func (m *MockDownloadService) Cancel(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockDownloadService) OpenArtifact(ctx context.Context, jobID, name string, ts int64, token string) (*download.ArtifactFile, error) {
	args := m.Called(ctx, jobID, name, ts, token)
	if v := args.Get(0); v != nil {
		return v.(*download.ArtifactFile), args.Error(1)
	}

	return nil, args.Error(1)
}

type MockInfoService struct {
	mock.Mock
}

func (m *MockInfoService) Info(ctx context.Context, url string) (*entity.VideoInfo, error) {
	args := m.Called(ctx, url)
	if v := args.Get(0); v != nil {
		return v.(*entity.VideoInfo), args.Error(1)
	}

	return nil, args.Error(1)
}

type MockPageService struct {
	mock.Mock
}

func (m *MockPageService) GetPage(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

type nopCloser struct {
	*strings.Reader
}

func (nopCloser) Close() error { return nil }

func testLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMux(dSrv DownloadService, iSrv InfoService, pSrv PageService) *http.ServeMux {
	log := testLog()

	mux := http.NewServeMux()
	mux.Handle("GET /{$}", NewPageHandler(pSrv, log))
	mux.Handle("GET /health", NewHealthHandler())
	mux.Handle("POST /api/info", NewInfoHandler(iSrv, log))
	mux.Handle("POST /api/download", NewStartHandler(dSrv, log))
	mux.Handle("GET /api/progress/{id}", NewProgressHandler(dSrv, log))
	mux.Handle("DELETE /api/progress/{id}", NewCancelHandler(dSrv, log))
	mux.Handle("GET /file/{job}/{name}", NewFileHandler(dSrv, log))

	return mux
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return resp.Error
}

func TestStartHandler(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		req     *entity.DownloadRequest
		id      string
		err     error
		status  int
		message string
	}{
		{
			name:   "Scenario 1: accepted",
			body:   `{"url":"https://example.com/v","format":"mp3","quality":"192","title":"Song"}`,
			req:    &entity.DownloadRequest{URL: "https://example.com/v", Format: "mp3", Quality: "192", Title: "Song"},
			id:     testJobID,
			status: http.StatusAccepted,
		},
		{
			name:    "Scenario 2: invalid url",
			body:    `{"url":"nope"}`,
			req:     &entity.DownloadRequest{URL: "nope"},
			err:     common.ErrInvalidURL,
			status:  http.StatusBadRequest,
			message: "Please enter a valid video URL.",
		},
		{
			name:    "Scenario 3: queue full",
			body:    `{"url":"https://example.com/v"}`,
			req:     &entity.DownloadRequest{URL: "https://example.com/v"},
			err:     common.ErrQueueFull,
			status:  http.StatusServiceUnavailable,
			message: "The server is busy. Please try again in a moment.",
		},
		{
			name:    "Scenario 4: broken json",
			body:    `{"url":`,
			status:  http.StatusBadRequest,
			message: msgBadRequest,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &MockDownloadService{}
			if tc.req != nil {
				srv.On("Start", mock.Anything, *tc.req).Return(tc.id, tc.err).Once()
			}

			rec := httptest.NewRecorder()
			newMux(srv, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/download", strings.NewReader(tc.body)))

			require.Equal(t, tc.status, rec.Code)
			require.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			if tc.message != "" {
				require.Equal(t, tc.message, errorBody(t, rec))
			} else {
				var resp startResponse
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
				require.Equal(t, tc.id, resp.JobID)
			}

			srv.AssertExpectations(t)
		})
	}
}

func TestProgressHandler(t *testing.T) {
	record := &entity.ProgressRecord{Status: entity.StatusDownloading, Percent: 42.5, Message: "Downloading... 42.5%"}

	testCases := []struct {
		name   string
		id     string
		rec    *entity.ProgressRecord
		err    error
		lookup bool
		status int
	}{
		{name: "Scenario 1: found", id: testJobID, rec: record, lookup: true, status: http.StatusOK},
		{name: "Scenario 2: missing", id: testJobID, err: common.ErrJobNotFound, lookup: true, status: http.StatusNotFound},
		{name: "Scenario 3: malformed id", id: "dl_nope", status: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &MockDownloadService{}
			if tc.lookup {
				srv.On("Progress", mock.Anything, tc.id).Return(tc.rec, tc.err).Once()
			}

			rec := httptest.NewRecorder()
			newMux(srv, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/progress/"+tc.id, nil))

			require.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusOK {
				require.JSONEq(t, `{"status":"downloading","percent":42.5,"message":"Downloading... 42.5%","downloaded_bytes":0,"total_bytes":0,"speed":0}`, rec.Body.String())
			}

			srv.AssertExpectations(t)
			if !tc.lookup {
				srv.AssertNotCalled(t, "Progress", mock.Anything, mock.Anything)
			}
		})
	}
}

func TestCancelHandler(t *testing.T) {
	testCases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "Scenario 1: cancelled", status: http.StatusNoContent},
		{name: "Scenario 2: not running", err: common.ErrJobNotRunningError, status: http.StatusNotFound},
		{name: "Scenario 3: bad id", err: common.ErrInvalidJobID, status: http.StatusBadRequest},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &MockDownloadService{}
			srv.On("Cancel", mock.Anything, testJobID).Return(tc.err).Once()

			rec := httptest.NewRecorder()
			newMux(srv, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/progress/"+testJobID, nil))

			require.Equal(t, tc.status, rec.Code)
			srv.AssertExpectations(t)
		})
	}
}

func TestInfoHandler(t *testing.T) {
	video := &entity.VideoInfo{Title: "Clip", Uploader: "Someone", DurationSeconds: 61, AvailableQualities: []int{720}}

	testCases := []struct {
		name    string
		info    *entity.VideoInfo
		err     error
		status  int
		message string
	}{
		{name: "Scenario 1: ok", info: video, status: http.StatusOK},
		{name: "Scenario 2: private", err: common.ErrVideoPrivate, status: http.StatusUnprocessableEntity, message: "This video is private and cannot be downloaded."},
		{name: "Scenario 3: invalid url", err: common.ErrInvalidURL, status: http.StatusBadRequest, message: "Please enter a valid video URL."},
		{name: "Scenario 4: tool missing", err: common.ErrToolNotFound, status: http.StatusInternalServerError, message: "Downloader is not available. Please contact the site administrator."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			srv := &MockInfoService{}
			srv.On("Info", mock.Anything, "https://example.com/v").Return(tc.info, tc.err).Once()

			rec := httptest.NewRecorder()
			newMux(nil, srv, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/info", strings.NewReader(`{"url":"https://example.com/v"}`)))

			require.Equal(t, tc.status, rec.Code)
			if tc.message != "" {
				require.Equal(t, tc.message, errorBody(t, rec))
			} else {
				var got entity.VideoInfo
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
				require.Equal(t, *video, got)
			}

			srv.AssertExpectations(t)
		})
	}
}

func TestFileHandler(t *testing.T) {
	modTime := time.Unix(1_700_000_000, 0)

	srv := &MockDownloadService{}
	srv.On("OpenArtifact", mock.Anything, testJobID, "Clip.mp4", int64(1700000000), "good").Return(&download.ArtifactFile{
		ReadSeekCloser: nopCloser{strings.NewReader("media payload")},
		Name:           "Clip.mp4",
		Size:           13,
		MimeType:       "video/mp4",
		ModTime:        modTime,
	}, nil).Once()
	srv.On("OpenArtifact", mock.Anything, testJobID, "Clip.mp4", int64(1700000000), "bad").Return(nil, common.ErrInvalidToken).Once()

	mux := newMux(srv, nil, nil)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+testJobID+"/Clip.mp4?ts=1700000000&token=good&display_name=Cl%C3%ADp%20%22x%22.mp4", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "media payload", rec.Body.String())
	require.Equal(t, "video/mp4", rec.Header().Get("Content-Type"))
	require.Equal(t, "13", rec.Header().Get("Content-Length"))
	require.Equal(t, `attachment; filename="Cl_p x.mp4"; filename*=UTF-8''Cl%C3%ADp%20%22x%22.mp4`, rec.Header().Get("Content-Disposition"))
	require.Equal(t, "no-cache, no-store, must-revalidate", rec.Header().Get("Cache-Control"))
	require.Equal(t, "no-cache", rec.Header().Get("Pragma"))
	require.Equal(t, "0", rec.Header().Get("Expires"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+testJobID+"/Clip.mp4?ts=1700000000&token=bad", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), msgFileNotFound)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/file/"+testJobID+"/Clip.mp4?ts=soon&token=good", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	srv.AssertExpectations(t)
}

func TestPageAndHealth(t *testing.T) {
	page := &MockPageService{}
	page.On("GetPage", mock.Anything).Return("<h1>hi</h1>", nil).Once()

	mux := newMux(nil, nil, page)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "<h1>hi</h1>", rec.Body.String())
	require.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	page.AssertExpectations(t)
}
