package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	msgReadFailed = "Failed to read file. Please try again."
	msgNotCSV     = "Please upload a CSV file (.csv extension)."
	msgTooLarge   = "File exceeds the maximum upload size."
)

// CheckFileName rejects uploads whose extension is not .csv.
func CheckFileName(name string) *ValidationError {
	if !strings.EqualFold(filepath.Ext(name), ".csv") {
		return readError("FILE001", msgNotCSV, fmt.Errorf("not a csv file: %q", name))
	}
	return nil
}

// ReadText reads the complete upload as text. Any failure is reported as a
// read-kind ValidationError; the technical cause stays reachable through
// errors.Unwrap for logging. There is no retry.
func ReadText(ctx context.Context, r io.Reader, maxBytes int64) (string, *ValidationError) {
	if r == nil {
		return "", readError("FILE002", msgReadFailed, errors.New("no file provided"))
	}

	data, err := io.ReadAll(WrapForReading(ctx, r, maxBytes))
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return "", readError("FILE003", msgTooLarge, fmt.Errorf("read upload: %w", err))
		}
		return "", readError("FILE002", msgReadFailed, fmt.Errorf("read upload: %w", err))
	}
	return string(data), nil
}
