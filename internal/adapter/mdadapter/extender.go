package mdadapter

import (
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// FormatsExtension adds the {{ formats }} directive to goldmark.
type FormatsExtension struct {
	Formats []string
}

func NewFormatsExtension(formats []string) goldmark.Extender {
	return &FormatsExtension{Formats: formats}
}

func (e *FormatsExtension) Extend(m goldmark.Markdown) {
	m.Parser().AddOptions(
		parser.WithInlineParsers(
			util.Prioritized(NewFormatsDirectiveParser(), 500),
		),
	)
	m.Renderer().AddOptions(
		renderer.WithNodeRenderers(
			util.Prioritized(NewFormatsDirectiveRenderer(e.Formats), 500),
		),
	)
}
