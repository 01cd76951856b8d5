package page

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

const (
	serviceName = "page"
)

type PageRenderer interface {
	Render(fileName string) (string, error)
}

type pageService struct {
	renderer PageRenderer
	fileName string

	mu      sync.RWMutex
	content string

	log *slog.Logger
}

func NewPageService(renderer PageRenderer, fileName string, log *slog.Logger) *pageService {
	return &pageService{
		renderer: renderer,
		fileName: fileName,
		log:      log.With(slog.String("service", serviceName)),
	}
}

// GetPage returns the rendered landing page. It is rendered on first use and after Reload.
func (p *pageService) GetPage(_ context.Context) (string, error) {
	p.mu.RLock()
	content := p.content
	p.mu.RUnlock()

	if content != "" {
		return content, nil
	}

	if err := p.Reload(); err != nil {
		return "", err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.content, nil
}

// Reload renders the page file again, keeping the previous content when rendering fails.
func (p *pageService) Reload() error {
	content, err := p.renderer.Render(p.fileName)
	if err != nil {
		p.log.Error("Cannot render page", slog.String("file", p.fileName), slog.Any("error", err))

		return fmt.Errorf("cannot render page: %w", err)
	}

	p.mu.Lock()
	p.content = content
	p.mu.Unlock()

	p.log.Info("Page rendered", slog.String("file", p.fileName))

	return nil
}
