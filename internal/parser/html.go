package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/docchat/internal/doctree"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// HTMLParser handles HTML files.
type HTMLParser struct{}

// Elements whose whole text is one paragraph.
var htmlBlocks = map[atom.Atom]bool{
	atom.P: true, atom.Li: true, atom.Td: true, atom.Th: true,
	atom.Blockquote: true, atom.Pre: true, atom.Dd: true, atom.Dt: true,
	atom.Figcaption: true, atom.Caption: true,
}

// Elements that never carry document content.
var htmlSkipped = map[atom.Atom]bool{
	atom.Script: true, atom.Style: true, atom.Noscript: true, atom.Template: true,
	atom.Nav: true, atom.Footer: true, atom.Header: true, atom.Head: true,
}

func (p *HTMLParser) Parse(_ context.Context, data []byte, filename string) (*doctree.DocTree, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := titleFromName(filename)
	if t := findElement(doc, atom.Title); t != nil {
		if s := nodeText(t); s != "" {
			title = s
		}
	}

	b := doctree.NewBuilder()
	var loose strings.Builder // text directly inside div/section/body

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			loose.WriteString(n.Data)
			return
		case html.ElementNode:
			if htmlSkipped[n.DataAtom] {
				return
			}
			if level := headingLevel(n.DataAtom); level > 0 {
				b.Paragraph(collapseSpace(loose.String()))
				loose.Reset()
				b.Heading(level, nodeText(n))
				return
			}
			if htmlBlocks[n.DataAtom] {
				b.Paragraph(collapseSpace(loose.String()))
				loose.Reset()
				if n.DataAtom == atom.Pre {
					b.Paragraph(rawText(n))
				} else {
					b.Paragraph(nodeText(n))
				}
				return
			}
			if n.DataAtom == atom.Br {
				loose.WriteString("\n")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	root := findElement(doc, atom.Body)
	if root == nil {
		root = doc
	}
	walk(root)
	b.Paragraph(collapseSpace(loose.String()))

	return b.Tree(title), nil
}

func headingLevel(a atom.Atom) int {
	switch a {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

// nodeText returns the text under n with runs of whitespace collapsed.
func nodeText(n *html.Node) string {
	return collapseSpace(rawText(n))
}

func rawText(n *html.Node) string {
	var buf strings.Builder
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && htmlSkipped[n.DataAtom] {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return strings.TrimSpace(buf.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}
