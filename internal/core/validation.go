package core

// validation.go checks the header line and every data row of an upload.
//
// Validation is fail-fast at both levels: the first header mismatch or the
// first bad row aborts the upload. Row errors carry the zero-based data row
// index; messages show it 1-based.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// RequiredHeaders is the exact header sequence every upload must start with.
var RequiredHeaders = []string{"date", "person", "miles"}

// ValidateHeaders checks the trimmed header cells against RequiredHeaders.
// Names compare case-insensitively; order and count are fixed.
func ValidateHeaders(headers []string) *ValidationError {
	normalized := make([]string, len(headers))
	for i, h := range headers {
		normalized[i] = strings.ToLower(strings.TrimSpace(h))
	}

	if len(normalized) != len(RequiredHeaders) {
		if len(normalized) < len(RequiredHeaders) {
			for _, want := range RequiredHeaders {
				if !contains(normalized, want) {
					return headerError("HDR002", "Missing required column: %s", want)
				}
			}
		}
		return headerError("HDR003", "Expected exactly %d columns (%s), but found %d columns.",
			len(RequiredHeaders), strings.Join(RequiredHeaders, ", "), len(normalized))
	}

	for i, want := range RequiredHeaders {
		if normalized[i] != want {
			return headerError("HDR002", "Missing required column: %s", want)
		}
	}

	return nil
}

// ValidateRow checks one data row. Checks run in order and stop at the
// first failure: column count, date, person, miles.
func ValidateRow(row []string, rowIndex int) *ValidationError {
	if len(row) != len(RequiredHeaders) {
		return rowError(rowIndex, "ROW001", "Expected %d columns, but found %d.", len(RequiredHeaders), len(row))
	}

	dateStr := strings.TrimSpace(row[0])
	person := strings.TrimSpace(row[1])
	milesStr := strings.TrimSpace(row[2])

	if _, ok := ParseDate(dateStr); !ok {
		return rowError(rowIndex, "ROW002", "invalid date format")
	}

	if person == "" {
		return rowError(rowIndex, "ROW003", "person name cannot be empty")
	}

	if _, err := parseMiles(milesStr); err != nil {
		return rowError(rowIndex, "ROW004", "miles must be a positive number")
	}

	return nil
}

// ValidateAllRows applies ValidateRow to each row and returns the first error.
func ValidateAllRows(rows [][]string) *ValidationError {
	for i, row := range rows {
		if err := ValidateRow(row, i); err != nil {
			return err
		}
	}
	return nil
}

// parseMiles accepts only finite decimal numbers strictly greater than zero.
// ParseFloat also reads hex floats such as 0x1p3, which are not decimal.
func parseMiles(s string) (float64, error) {
	if digits := strings.TrimLeft(s, "+-"); strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, fmt.Errorf("invalid number %q: hex not allowed", s)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, fmt.Errorf("miles must be positive, got %q", s)
	}
	return v, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
