// Package core provides the business logic for the mileage dashboard.
// This package has no UI dependencies and can be used by any frontend.
package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Record is one validated (date, person, miles) row.
type Record struct {
	Date   string  `json:"date"`   // Original trimmed date string, never reformatted
	Person string  `json:"person"` // Trimmed entrant name
	Miles  float64 `json:"miles"`  // Always > 0
}

// Dataset is the ordered result of one successful parse, in file row order.
// Consumers treat it as read-only; every function in this package that
// derives a view returns a new slice.
type Dataset []Record

// ErrorKind tags where a ValidationError came from.
type ErrorKind string

const (
	KindHeader ErrorKind = "header"
	KindRow    ErrorKind = "row"
	KindRead   ErrorKind = "read"
)

// ValidationError is the single user-visible failure of an upload attempt.
type ValidationError struct {
	Kind     ErrorKind
	Message  string
	RowIndex int // Zero-based data row, only meaningful for KindRow
	Code     string

	cause error
}

// MarshalJSON emits rowIndex only for row errors, so row 0 is not lost to
// omitempty and header errors carry no index at all.
func (e *ValidationError) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind     ErrorKind `json:"type"`
		Message  string    `json:"message"`
		RowIndex *int      `json:"rowIndex,omitempty"`
		Code     string    `json:"code"`
	}
	w := wire{Kind: e.Kind, Message: e.Message, Code: e.Code}
	if e.Kind == KindRow {
		idx := e.RowIndex
		w.RowIndex = &idx
	}
	return json.Marshal(w)
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Unwrap exposes the technical cause of a read failure for logging.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// Line returns the 1-based row number shown to users, or 0 for non-row errors.
func (e *ValidationError) Line() int {
	if e.Kind != KindRow {
		return 0
	}
	return e.RowIndex + 1
}

func headerError(code, format string, args ...any) *ValidationError {
	return &ValidationError{Kind: KindHeader, Code: code, Message: fmt.Sprintf(format, args...)}
}

func rowError(rowIndex int, code, format string, args ...any) *ValidationError {
	return &ValidationError{
		Kind:     KindRow,
		Code:     code,
		RowIndex: rowIndex,
		Message:  fmt.Sprintf("Row %d: ", rowIndex+1) + fmt.Sprintf(format, args...),
	}
}

func readError(code, message string, cause error) *ValidationError {
	return &ValidationError{Kind: KindRead, Code: code, Message: message, cause: cause}
}

// PersonTotal is one bar of the per-person totals chart.
type PersonTotal struct {
	Person     string  `json:"person"`
	TotalMiles float64 `json:"totalMiles"`
}

// Summary bundles the card values shown above each chart.
type Summary struct {
	Count   int     `json:"count"`
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// SeriesPoint is one point on a miles-over-time line chart.
type SeriesPoint struct {
	Date   string    `json:"date"`  // Original record date
	Label  string    `json:"label"` // Short axis label, e.g. "Jan 2"
	Time   time.Time `json:"time"`
	Person string    `json:"person"`
	Miles  float64   `json:"miles"`
}

// OverviewView is everything the overall analysis tab renders.
type OverviewView struct {
	Summary Summary       `json:"summary"`
	Totals  []PersonTotal `json:"totals"`
	Series  []SeriesPoint `json:"series"`
}

// PersonView is everything the per-person tab renders for one entrant.
type PersonView struct {
	Person  string        `json:"person"`
	Summary Summary       `json:"summary"`
	Series  []SeriesPoint `json:"series"`
}
