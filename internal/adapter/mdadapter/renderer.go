package mdadapter

import (
	"html"
	"strings"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

// FormatsDirectiveRenderer writes the allowed formats as a list of code spans.
type FormatsDirectiveRenderer struct {
	formats []string
}

func NewFormatsDirectiveRenderer(formats []string) renderer.NodeRenderer {
	return &FormatsDirectiveRenderer{formats: formats}
}

func (r *FormatsDirectiveRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindFormatsDirective, r.renderFormatsDirective)
}

func (r *FormatsDirectiveRenderer) renderFormatsDirective(w util.BufWriter, source []byte, n ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}

	directive := n.(*FormatsDirective)

	items := make([]string, 0, len(r.formats))
	for _, f := range r.formats {
		items = append(items, `<code class="format">`+html.EscapeString(f)+`</code>`)
	}

	_, _ = w.WriteString(strings.Join(items, html.EscapeString(directive.Separator)))

	return ast.WalkContinue, nil
}
