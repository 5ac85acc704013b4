package doctree

import "strings"

// DocTree is the root of an extracted document.
type DocTree struct {
	Title    string     // Document title (from metadata or filename)
	Children []*DocNode // Top-level sections
}

// DocNode is a recursive section in the document tree.
type DocNode struct {
	Title    string     // Section heading (empty for leaf text)
	Text     string     // Text content of this node (may be empty for container nodes)
	Page     int        // Source page (0 if N/A)
	Children []*DocNode // Subsections
}

// Text flattens the tree into plain text in document order. Headings are kept
// as their own paragraphs so they stay searchable; nodes are separated by a
// blank line, which the chunker treats as a paragraph boundary.
func (t *DocTree) Text() string {
	var parts []string
	var walk func(nodes []*DocNode)
	walk = func(nodes []*DocNode) {
		for _, n := range nodes {
			if h := strings.TrimSpace(n.Title); h != "" {
				parts = append(parts, h)
			}
			if body := strings.TrimSpace(n.Text); body != "" {
				parts = append(parts, body)
			}
			walk(n.Children)
		}
	}
	walk(t.Children)
	return strings.Join(parts, "\n\n")
}

// Builder assembles a DocTree from a flat stream of headings and paragraphs,
// nesting each heading under the closest preceding heading of a lower level.
type Builder struct {
	root  *DocNode
	stack []level
	text  strings.Builder
}

type level struct {
	node  *DocNode
	depth int
}

func NewBuilder() *Builder {
	root := &DocNode{}
	return &Builder{root: root, stack: []level{{node: root, depth: 0}}}
}

// Heading opens a new section at the given depth (1 = top level).
func (b *Builder) Heading(depth int, title string) {
	b.flush()
	node := &DocNode{Title: title}
	for len(b.stack) > 1 && b.stack[len(b.stack)-1].depth >= depth {
		b.stack = b.stack[:len(b.stack)-1]
	}
	parent := b.stack[len(b.stack)-1].node
	parent.Children = append(parent.Children, node)
	b.stack = append(b.stack, level{node: node, depth: depth})
}

// Paragraph appends body text to the current section.
func (b *Builder) Paragraph(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if b.text.Len() > 0 {
		b.text.WriteString("\n\n")
	}
	b.text.WriteString(text)
}

func (b *Builder) flush() {
	t := strings.TrimSpace(b.text.String())
	b.text.Reset()
	if t == "" {
		return
	}
	top := b.stack[len(b.stack)-1].node
	if top.Text != "" {
		top.Text += "\n\n" + t
	} else {
		top.Text = t
	}
}

// Tree finishes the build. Text that appeared before the first heading
// becomes a leading untitled node.
func (b *Builder) Tree(title string) *DocTree {
	b.flush()
	tree := &DocTree{Title: title}
	if b.root.Text != "" {
		tree.Children = append(tree.Children, &DocNode{Text: b.root.Text})
	}
	tree.Children = append(tree.Children, b.root.Children...)
	return tree
}
