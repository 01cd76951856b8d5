package info

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jgivc/mediafetch/internal/common"
	"github.com/jgivc/mediafetch/internal/entity"
	"github.com/jgivc/mediafetch/internal/service/download"
)

const serviceName = "info"

type InfoClient interface {
	FetchInfo(ctx context.Context, url string) (*entity.VideoInfo, error)
}

type infoService struct {
	client InfoClient
	log    *slog.Logger
}

func NewInfoService(client InfoClient, log *slog.Logger) *infoService {
	return &infoService{
		client: client,
		log:    log.With(slog.String("service", serviceName)),
	}
}

// Info validates the URL and asks the extraction tool for the video metadata.
func (s *infoService) Info(ctx context.Context, url string) (*entity.VideoInfo, error) {
	if err := download.ValidateURL(url); err != nil {
		return nil, err
	}

	started := time.Now()

	info, err := s.client.FetchInfo(ctx, url)
	if err != nil {
		if errors.Is(err, common.ErrToolNotFound) {
			s.log.Error("Extraction tool is missing", slog.Any("error", err))
		} else {
			s.log.Warn("Cannot fetch info", slog.String("url", url), slog.Any("error", err))
		}

		return nil, err
	}

	s.log.Info("Fetched info", slog.String("url", url), slog.String("title", info.Title),
		slog.Int("qualities", len(info.AvailableQualities)), slog.Duration("elapsed", time.Since(started)))

	return info, nil
}
