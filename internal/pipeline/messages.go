package pipeline

// messages.go maps technical errors to user-facing messages with codes for
// support reference. Patterns are matched case-insensitively with
// strings.Contains and the first match wins, so specific patterns come
// before general ones.
//
//	FILE001-FILE006  file handling (missing, format, size, encoding, empty)
//	VAL001-VAL008    row validation (dates, numbers, required, enums, ...)
//	MAP001           column mapping
//	ENT001           entity selection
//	IMP001-IMP006    import transactions (busy, not found, state, cancel)
//	DB001-DB006      persistence
//	REQ001-REQ002    malformed API requests, disallowed paths
//	ERR000           fallback

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Matched first since the message carries a client supplied path.
	{"path not allowed", UserMessage{"The file path is outside the import directory", "Upload the file or use a path inside the import directory", "REQ002"}},

	// File errors
	{"file not found", UserMessage{"The file could not be found", "Check the path and upload the file again", "FILE001"}},
	{"unsupported file format", UserMessage{"This file type is not supported", "Upload a .csv or .xlsx file", "FILE002"}},
	{"file too large", UserMessage{"File exceeds maximum size limit (100MB)", "Split the file into smaller chunks", "FILE003"}},
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with consistent columns", "FILE004"}},
	{"invalid spreadsheet", UserMessage{"File is not a readable spreadsheet", "Re-save the workbook as .xlsx and try again", "FILE005"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a file to import", "FILE006"}},

	// Validation errors
	{"validation failed", UserMessage{"Import stopped at the first invalid row", "Fix the row or enable skipping invalid rows", "VAL008"}},
	{"invalid date", UserMessage{"Invalid date format detected", "Use YYYY-MM-DD or MM/DD/YYYY", "VAL001"}},
	{"invalid number", UserMessage{"Invalid number format detected", "Use a plain decimal number", "VAL002"}},
	{"invalid integer", UserMessage{"A whole number was expected", "Remove decimals from this column", "VAL002"}},
	{"required field", UserMessage{"Required field is empty", "Ensure all required columns have values", "VAL003"}},
	{"invalid enum", UserMessage{"Value is not in the allowed list", "Check the allowed values for this field", "VAL004"}},
	{"invalid boolean", UserMessage{"Invalid yes/no value", "Use yes/no, true/false or 1/0", "VAL005"}},
	{"invalid email", UserMessage{"Invalid email address", "Check the address for typos", "VAL006"}},
	{"does not match pattern", UserMessage{"Value has the wrong format", "Check the expected format for this field", "VAL007"}},

	// Mapping and entity errors
	{"does not match any field", UserMessage{"A column could not be matched to a field", "Rename the column or provide a mapping", "MAP001"}},
	{"unknown entity", UserMessage{"Unknown import type", "Choose students, books or equipment", "ENT001"}},

	// Import transaction errors
	{"too many imports", UserMessage{"Too many imports in progress", "Please wait a moment and try again", "IMP001"}},
	{"transaction not found", UserMessage{"Import transaction not found", "The transaction may have expired. Start a new import", "IMP002"}},
	{"invalid status transition", UserMessage{"The import cannot change to that state", "Refresh the transaction and check its status", "IMP003"}},
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP005"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try a smaller file or try again later", "IMP006"}},

	// Persistence errors
	{"duplicate key", UserMessage{"A record with this ID already exists", "Review the duplicate rows", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your file", "DB002"}},
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB003"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB004"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB005"}},
	{"timeout", UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}},

	// API requests
	{"invalid request", UserMessage{"The request could not be understood", "Check the request parameters and try again", "REQ001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error into a user-friendly message.
// Returns an empty UserMessage for nil.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}
	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
