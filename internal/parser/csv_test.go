package parser

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

func TestCSVParser_RowsBecomeHeaderValueLines(t *testing.T) {
	input := "name,city,age\nAda,London,36\nLinus,,28\n"
	p := &CSVParser{}
	tree, err := p.Parse(context.Background(), []byte(input), "people.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Title != "people" {
		t.Errorf("expected title %q, got %q", "people", tree.Title)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("expected 1 section, got %d", len(tree.Children))
	}
	sec := tree.Children[0]
	if sec.Title != "Rows 2-3" {
		t.Errorf("expected section title %q, got %q", "Rows 2-3", sec.Title)
	}
	want := "name: Ada, city: London, age: 36\nname: Linus, age: 28"
	if sec.Text != want {
		t.Errorf("expected %q, got %q", want, sec.Text)
	}
}

func TestCSVParser_GroupsRowsIntoSections(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("id,value\n")
	for i := range 45 {
		fmt.Fprintf(&sb, "%d,v%d\n", i, i)
	}
	p := &CSVParser{}
	tree, err := p.Parse(context.Background(), []byte(sb.String()), "data.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tree.Children) != 3 {
		t.Fatalf("expected 3 sections for 45 rows, got %d", len(tree.Children))
	}
	if tree.Children[2].Title != "Rows 42-46" {
		t.Errorf("expected last section %q, got %q", "Rows 42-46", tree.Children[2].Title)
	}
}

func TestCSVParser_RaggedRows(t *testing.T) {
	p := &CSVParser{}
	tree, err := p.Parse(context.Background(), []byte("a,b\n1,2,3\n"), "ragged.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tree.Children[0].Text; got != "a: 1, b: 2, 3" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestCSVParser_Empty(t *testing.T) {
	p := &CSVParser{}
	tree, err := p.Parse(context.Background(), nil, "empty.csv")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tree.Text() != "" {
		t.Errorf("expected no text, got %q", tree.Text())
	}
}
