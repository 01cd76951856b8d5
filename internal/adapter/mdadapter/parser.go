package mdadapter

import (
	"regexp"

	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

const defaultSeparator = ", "

var reFormatsDirective = regexp.MustCompile(`^{{\s*formats(?:\s+"([^"]*)")?\s*}}`)

type FormatsDirectiveParser struct{}

func NewFormatsDirectiveParser() parser.InlineParser {
	return &FormatsDirectiveParser{}
}

func (s *FormatsDirectiveParser) Trigger() []byte {
	return []byte{'{'}
}

func (s *FormatsDirectiveParser) Parse(parent ast.Node, block text.Reader, pc parser.Context) ast.Node {
	line, _ := block.PeekLine()

	matches := reFormatsDirective.FindSubmatch(line)
	if matches == nil {
		return nil
	}

	block.Advance(len(matches[0]))

	sep := defaultSeparator
	if len(matches[1]) > 0 {
		sep = string(matches[1])
	}

	return &FormatsDirective{Separator: sep}
}
