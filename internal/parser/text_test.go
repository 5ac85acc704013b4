package parser

import (
	"context"
	"testing"
)

func parseText(t *testing.T, input, filename string) string {
	t.Helper()
	p := &TextParser{}
	tree, err := p.Parse(context.Background(), []byte(input), filename)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return tree.Text()
}

func TestTextParser_BasicParagraphSplitting(t *testing.T) {
	input := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	p := &TextParser{}
	tree, err := p.Parse(context.Background(), []byte(input), "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if tree.Title != "notes" {
		t.Errorf("expected title %q, got %q", "notes", tree.Title)
	}
	want := "First paragraph line one.\nFirst paragraph line two.\n\nSecond paragraph.\n\nThird paragraph."
	if got := tree.Text(); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestTextParser_EmptyInput(t *testing.T) {
	p := &TextParser{}
	tree, err := p.Parse(context.Background(), nil, "empty.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "empty" {
		t.Errorf("expected title %q, got %q", "empty", tree.Title)
	}
	if len(tree.Children) != 0 {
		t.Errorf("expected 0 children for empty input, got %d", len(tree.Children))
	}
}

func TestTextParser_SingleLine(t *testing.T) {
	if got := parseText(t, "Hello world", "single.txt"); got != "Hello world" {
		t.Errorf("expected %q, got %q", "Hello world", got)
	}
}

func TestTextParser_MultipleBlankLines(t *testing.T) {
	// Multiple consecutive blank lines collapse to one paragraph break.
	if got := parseText(t, "Para one.\n\n\n\nPara two.", "gaps.txt"); got != "Para one.\n\nPara two." {
		t.Errorf("unexpected text %q", got)
	}
}

func TestTextParser_WhitespaceOnlyLinesAndCRLF(t *testing.T) {
	got := parseText(t, "Para one.\r\n   \r\nPara two.\r\n", "ws.txt")
	if got != "Para one.\n\nPara two." {
		t.Errorf("unexpected text %q", got)
	}
}

func TestTextParser_StripsBOM(t *testing.T) {
	got := parseText(t, "\xEF\xBB\xBFBonjour", "bom.txt")
	if got != "Bonjour" {
		t.Errorf("expected BOM stripped, got %q", got)
	}
}
