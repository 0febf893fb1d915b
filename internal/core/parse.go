package core

// parse.go turns uploaded text into a Dataset.
//
// Parsing is all-or-nothing: either every row validates and a Dataset is
// returned, or the first ValidationError is returned and no records are.
// Blank lines are dropped before row numbering, so "Row 3" always means the
// third non-blank data line.

import (
	"encoding/csv"
	"strings"
)

// Tokenizer splits one trimmed, non-blank line into raw cells.
type Tokenizer func(line string) ([]string, error)

// NaiveTokenizer splits on every comma. There is no quoting support: a comma
// inside a value is a field separator.
func NaiveTokenizer(line string) ([]string, error) {
	return strings.Split(line, ","), nil
}

// QuotedTokenizer reads one line as an RFC 4180 record, so quoted fields may
// contain commas and doubled quotes.
func QuotedTokenizer(line string) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.FieldsPerRecord = -1
	r.LazyQuotes = false
	return r.Read()
}

// ParseOption customises ParseCSV.
type ParseOption func(*parseConfig)

type parseConfig struct {
	tokenizer Tokenizer
}

// WithTokenizer replaces the default naive comma split.
func WithTokenizer(t Tokenizer) ParseOption {
	return func(c *parseConfig) {
		if t != nil {
			c.tokenizer = t
		}
	}
}

// WithQuotedFields is shorthand for WithTokenizer(QuotedTokenizer) when on is true.
func WithQuotedFields(on bool) ParseOption {
	return func(c *parseConfig) {
		if on {
			c.tokenizer = QuotedTokenizer
		}
	}
}

// ParseResult is either a Dataset or the error that rejected the upload.
type ParseResult struct {
	Records Dataset
	Err     *ValidationError
}

// OK reports whether the parse succeeded.
func (r ParseResult) OK() bool {
	return r.Err == nil
}

// ParseCSV parses and validates text. A header-only file yields an empty,
// non-nil Dataset.
func ParseCSV(text string, opts ...ParseOption) ParseResult {
	cfg := parseConfig{tokenizer: NaiveTokenizer}
	for _, opt := range opts {
		opt(&cfg)
	}

	lines := splitLines(text)
	if len(lines) == 0 {
		return ParseResult{Err: headerError("HDR001", "CSV file is empty.")}
	}

	headers, err := cfg.tokenizer(lines[0])
	if err != nil {
		return ParseResult{Err: headerError("HDR003", "Could not read the header line: %v", err)}
	}
	if verr := ValidateHeaders(trimCells(headers)); verr != nil {
		return ParseResult{Err: verr}
	}

	rows := make([][]string, 0, len(lines)-1)
	for i, line := range lines[1:] {
		cells, err := cfg.tokenizer(line)
		if err != nil {
			return ParseResult{Err: rowError(i, "ROW005", "malformed CSV line")}
		}
		rows = append(rows, trimCells(cells))
	}

	if verr := ValidateAllRows(rows); verr != nil {
		return ParseResult{Err: verr}
	}

	records := make(Dataset, len(rows))
	for i, row := range rows {
		// Already validated, so the parse cannot fail here.
		miles, _ := parseMiles(row[2])
		records[i] = Record{
			Date:   row[0],
			Person: row[1],
			Miles:  miles,
		}
	}

	return ParseResult{Records: records}
}

// splitLines normalises line endings, trims each line and drops blank ones.
func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func trimCells(cells []string) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = strings.TrimSpace(c)
	}
	return out
}
