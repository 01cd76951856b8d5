package mdadapter

import (
	"github.com/yuin/goldmark/ast"
)

var KindFormatsDirective = ast.NewNodeKind("FormatsDirective")

// FormatsDirective is the inline {{ formats }} placeholder.
type FormatsDirective struct {
	ast.BaseInline
	Separator string
}

func (n *FormatsDirective) Kind() ast.NodeKind {
	return KindFormatsDirective
}

func (n *FormatsDirective) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Separator": n.Separator,
	}, nil)
}
