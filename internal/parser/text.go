package parser

import (
	"bufio"
	"bytes"
	"context"
	"strings"

	"github.com/dgallion1/docchat/internal/doctree"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TextParser handles plain text files. Blank lines separate paragraphs.
type TextParser struct{}

func (p *TextParser) Parse(_ context.Context, data []byte, filename string) (*doctree.DocTree, error) {
	scanner := bufio.NewScanner(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	b := doctree.NewBuilder()
	var para []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			b.Paragraph(strings.Join(para, "\n"))
			para = para[:0]
			continue
		}
		para = append(para, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	b.Paragraph(strings.Join(para, "\n"))

	// Paragraphs stay in one untitled node; the chunker splits them again.
	return b.Tree(titleFromName(filename)), nil
}
