// Package core provides the business logic for the mileage dashboard.
//
// # Error Codes Reference
//
// Every error a user can see carries a code they can quote.
//
// # Header Errors (HDR001-HDR099)
//
//	HDR001 - Empty file: the file has no non-blank lines
//	HDR002 - Missing column: a required column is absent or out of place
//	HDR003 - Column count: the header does not have exactly three columns
//
// # Row Errors (ROW001-ROW099)
//
//	ROW001 - Column count: a data row does not have exactly three cells
//	ROW002 - Invalid date: the date cell does not parse as a calendar date
//	ROW003 - Empty person: the person cell is blank
//	ROW004 - Invalid miles: miles is not a positive number
//	ROW005 - Malformed line: the quoted-field tokenizer could not read the line
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - Not a CSV: the file name does not end in .csv
//	FILE002 - Read failed: the file could not be read
//	FILE003 - Too large: the file exceeds the upload size limit
//
// # Upload Errors (UPL001-UPL099)
//
//	UPL001 - Superseded: a newer upload replaced this one
//	UPL002 - System busy: too many uploads in progress
//	UPL003 - Unknown person: the selected person is not in the dataset
//	UPL004 - No data: nothing is loaded yet
//
// # Default Error (ERR000)
//
// Fallback when nothing matches; check the logs for the technical error.
package core

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// actions maps each ValidationError code to what the user should do next.
var actions = map[string]string{
	"HDR001":  "Add a header line: date,person,miles",
	"HDR002":  "The header must be exactly: date,person,miles",
	"HDR003":  "The header must be exactly: date,person,miles",
	"ROW001":  "Each row needs a date, a person and a miles value",
	"ROW002":  "Use a date such as 2024-01-31",
	"ROW003":  "Fill in the person column",
	"ROW004":  "Use a number greater than zero",
	"ROW005":  "Check the quotes on this line",
	"FILE001": "Choose a file ending in .csv",
	"FILE002": "Please try again",
	"FILE003": "Upload a smaller file",
}

type errorPattern struct {
	target  error
	pattern string
	msg     UserMessage
}

// errorPatterns maps sentinel errors, or failing that, case-insensitive
// substrings of the error text, to user messages. First match wins.
var errorPatterns = []errorPattern{
	{
		target: ErrStaleUpload,
		msg: UserMessage{
			Message: "A newer upload replaced this one",
			Action:  "No action needed",
			Code:    "UPL001",
		},
	},
	{
		target:  ErrTooManyUploads,
		pattern: "too many concurrent uploads",
		msg: UserMessage{
			Message: "System is busy processing other uploads",
			Action:  "Please wait a moment and try again",
			Code:    "UPL002",
		},
	},
	{
		target: ErrUnknownPerson,
		msg: UserMessage{
			Message: "That person is not in the uploaded data",
			Action:  "Pick a person from the list",
			Code:    "UPL003",
		},
	},
	{
		target: ErrNoData,
		msg: UserMessage{
			Message: "No data has been uploaded yet",
			Action:  "Upload a CSV file first",
			Code:    "UPL004",
		},
	},
	{
		target:  ErrFileTooLarge,
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Upload a smaller file",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Please select a CSV file to upload",
			Code:    "FILE002",
		},
	},
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-facing message. A *ValidationError
// already carries its own wording and code; anything else is matched
// against errorPatterns, falling back to ERR000.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		return UserMessage{
			Message: verr.Message,
			Action:  actions[verr.Code],
			Code:    verr.Code,
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if ep.target != nil && errors.Is(err, ep.target) {
			return ep.msg
		}
		if ep.pattern != "" && strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates "Message (Code: XXX). Action" for display.
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	if msg.Action == "" {
		return fmt.Sprintf("%s (Code: %s)", msg.Message, msg.Code)
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
