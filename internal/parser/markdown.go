package parser

import (
	"bytes"
	"context"
	"strings"

	"github.com/dgallion1/docchat/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(_ context.Context, data []byte, filename string) (*doctree.DocTree, error) {
	src := bytes.TrimPrefix(data, utf8BOM)
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	b := doctree.NewBuilder()
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		if h, ok := n.(*ast.Heading); ok {
			b.Heading(h.Level, blockText(h, src))
			continue
		}
		b.Paragraph(blockText(n, src))
	}
	return b.Tree(titleFromName(filename)), nil
}

// blockText renders the readable text of a block: raw lines for code and
// HTML blocks, inline text (with line breaks) for everything else.
func blockText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	collectText(n, src, &buf)
	return strings.TrimSpace(buf.String())
}

func collectText(n ast.Node, src []byte, buf *bytes.Buffer) {
	switch node := n.(type) {
	case *ast.Text:
		buf.Write(node.Segment.Value(src))
		if node.HardLineBreak() || node.SoftLineBreak() {
			buf.WriteByte('\n')
		}
		return
	case *ast.String:
		buf.Write(node.Value)
		return
	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(src))
		}
		return
	}

	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		before := buf.Len()
		collectText(c, src, buf)
		// Separate nested blocks (list items, quoted paragraphs) by a newline.
		if c.Type() == ast.TypeBlock && buf.Len() > before && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.WriteByte('\n')
		}
	}
}
