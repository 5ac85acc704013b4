package parser

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/dgallion1/docchat/internal/doctree"
)

// CSVParser handles CSV files. Each data row becomes one "header: value" line,
// and rows are grouped so a section stays small enough to embed well.
type CSVParser struct{}

const csvRowsPerSection = 20

func (p *CSVParser) Parse(ctx context.Context, data []byte, filename string) (*doctree.DocTree, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	b := doctree.NewBuilder()
	if len(records) == 0 {
		return b.Tree(titleFromName(filename)), nil
	}

	headers := records[0]
	rows := records[1:]
	for start := 0; start < len(rows); start += csvRowsPerSection {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+csvRowsPerSection, len(rows))

		// Row numbers are 1-based and count the header line.
		b.Heading(1, fmt.Sprintf("Rows %d-%d", start+2, end+1))
		lines := make([]string, 0, end-start)
		for _, row := range rows[start:end] {
			lines = append(lines, csvRowLine(headers, row))
		}
		b.Paragraph(strings.Join(lines, "\n"))
	}
	return b.Tree(titleFromName(filename)), nil
}

func csvRowLine(headers, row []string) string {
	cells := make([]string, 0, len(row))
	for i, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if i < len(headers) && strings.TrimSpace(headers[i]) != "" {
			cells = append(cells, strings.TrimSpace(headers[i])+": "+cell)
		} else {
			cells = append(cells, cell)
		}
	}
	return strings.Join(cells, ", ")
}
