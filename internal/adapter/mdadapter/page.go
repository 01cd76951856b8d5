package mdadapter

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"

	_ "embed"

	"github.com/spf13/afero"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
	"go.abhg.dev/goldmark/frontmatter"
)

const defaultTitle = "Media Fetch"

var (
	//go:embed default.md
	defaultDescription []byte

	//go:embed page.html
	defaultTemplate string
)

type Frontmatter struct {
	Title       string `yaml:"title"`
	Placeholder string `yaml:"placeholder"`
}

type PageContext struct {
	URL         string
	Title       string
	Placeholder string
	Formats     []string
	Content     template.HTML
}

type pageRenderer struct {
	fs      afero.Fs
	url     string
	formats []string
	md      goldmark.Markdown
	tmpl    *template.Template
	log     *slog.Logger
}

func NewPageRenderer(url string, formats []string, log *slog.Logger) (*pageRenderer, error) {
	return NewPageRendererWithFS(afero.NewOsFs(), url, formats, log)
}

func NewPageRendererWithFS(fs afero.Fs, url string, formats []string, log *slog.Logger) (*pageRenderer, error) {
	tmpl, err := template.New("page").Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("cannot parse page template: %w", err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			&frontmatter.Extender{},
			NewFormatsExtension(formats),
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	return &pageRenderer{
		fs:      fs,
		url:     url,
		formats: formats,
		md:      md,
		tmpl:    tmpl,
		log:     log.With(slog.String("item", "PageRenderer")),
	}, nil
}

// Render builds the landing page from the description file, or from the built in one when fileName is empty.
func (r *pageRenderer) Render(fileName string) (string, error) {
	source := defaultDescription
	if fileName != "" {
		data, err := afero.ReadFile(r.fs, fileName)
		if err != nil {
			return "", fmt.Errorf("cannot read page file: %s: %w", fileName, err)
		}

		source = data
	}

	ctx := parser.NewContext()

	var buf bytes.Buffer
	if err := r.md.Convert(source, &buf, parser.WithContext(ctx)); err != nil {
		return "", fmt.Errorf("cannot convert markdown: %w", err)
	}

	fm := Frontmatter{Title: defaultTitle}
	if data := frontmatter.Get(ctx); data != nil {
		if err := data.Decode(&fm); err != nil {
			return "", fmt.Errorf("cannot decode frontmatter: %w", err)
		}
	}

	var page bytes.Buffer
	if err := r.tmpl.Execute(&page, &PageContext{
		URL:         r.url,
		Title:       fm.Title,
		Placeholder: fm.Placeholder,
		Formats:     r.formats,
		Content:     template.HTML(buf.String()),
	}); err != nil {
		return "", fmt.Errorf("cannot execute page template: %w", err)
	}

	r.log.Debug("Page rendered", slog.String("file", fileName), slog.Int("size", page.Len()))

	return page.String(), nil
}
