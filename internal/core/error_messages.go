// # Error Codes Reference
//
// This file defines operator-facing messages with codes for every failure
// the importer reports. Row failures carry the code of their classification
// bucket in the run summary; fatal errors are mapped by pattern before the
// command exits.
//
// # Row Failures (DB001-DB099)
//
//	DB002 - Unique constraint: This value must be unique but already exists
//	        Action: Check for duplicate entries in the source file
//	DB003 - Foreign key: Referenced record does not exist
//	        Action: Import the parent records first or fix the reference
//	DB008 - Duplicate enrollment: Student already enrolled for this year, program and level
//	        Action: Remove the extra enrollment code from the source file
//	DB009 - Value too long or malformed: Value does not fit its column
//	        Action: Shorten the value or fix its format
//
// # Connection Errors (DB004-DB007)
//
//	DB004 - Connection refused     Patterns: "connection refused"
//	DB005 - Connection reset       Patterns: "connection reset"
//	DB006 - Timeout                Patterns: "timeout"
//	DB007 - Deadlock               Patterns: "deadlock"
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Source file missing      Patterns: "no such file"
//	SRC002 - Missing columns          Patterns: "missing required columns"
//	SRC003 - Unreadable workbook      Patterns: "not a valid zip file", "sheet "
//	SRC004 - Unsupported encoding     Patterns: "unsupported encoding"
//	SRC005 - Unsupported format       Patterns: "unsupported source format"
//	SRC006 - Empty file               Patterns: "empty file"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Interrupted              Patterns: "context canceled"
//	RUN002 - Deadline exceeded        Patterns: "context deadline exceeded"
//	RUN003 - Schema provisioning      Patterns: "apply migrations"
//
// # Default Error (ERR000)
//
// Fallback when no specific pattern matches. Check the logs for the
// original technical error.
//
// # Pattern Matching
//
// Error patterns are matched case-insensitively using strings.Contains.
// The first matching pattern wins, so more specific patterns should be
// defined before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides operator-facing error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// kindMessages holds the summary hint of each row failure bucket.
var kindMessages = map[FailureKind]UserMessage{
	UniqueConstraintViolation: {
		Message: "This value must be unique but already exists",
		Action:  "Check for duplicate entries in the source file",
		Code:    "DB002",
	},
	ForeignKeyViolation: {
		Message: "Referenced record does not exist",
		Action:  "Import the parent records first or fix the reference",
		Code:    "DB003",
	},
	DataTruncationOrTypeError: {
		Message: "Value does not fit its column",
		Action:  "Shorten the value or fix its format",
		Code:    "DB009",
	},
}

var duplicateEnrollmentMessage = UserMessage{
	Message: "Student already enrolled for this year, program and level",
	Action:  "Remove the extra enrollment code from the source file",
	Code:    "DB008",
}

// errorPatterns maps technical error patterns (case-insensitive) to messages
// for errors that stop a stage or the run.
var errorPatterns = []errorPattern{
	// =========================================================================
	// Connection Errors (DB004-DB007)
	// =========================================================================
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Check DATABASE_URL and that the server is running",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Rerun the import; stored rows are kept",
			Code:    "DB005",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Raise DB_CONNECT_TIMEOUT or check the database host",
			Code:    "RUN002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Operation timed out",
			Action:  "Raise DB_CONNECT_TIMEOUT or check the database host",
			Code:    "DB006",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "Database was busy with conflicting operations",
			Action:  "Rerun the import when no other import is active",
			Code:    "DB007",
		},
	},

	// =========================================================================
	// Source Errors (SRC001-SRC006)
	// =========================================================================
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "Source file not found",
			Action:  "Check the *_FILE_PATH settings or the import profile",
			Code:    "SRC001",
		},
	},
	{
		pattern: "missing required columns",
		msg: UserMessage{
			Message: "Required column is missing from the source",
			Action:  "Check the header row or add a column alias",
			Code:    "SRC002",
		},
	},
	{
		pattern: "not a valid zip file",
		msg: UserMessage{
			Message: "The workbook could not be opened",
			Action:  "Save the file as .xlsx or export it as CSV",
			Code:    "SRC003",
		},
	},
	{
		pattern: "sheet ",
		msg: UserMessage{
			Message: "The worksheet could not be read",
			Action:  "Check SOURCE_SHEET or the sheet name in the profile",
			Code:    "SRC003",
		},
	},
	{
		pattern: "unsupported encoding",
		msg: UserMessage{
			Message: "Unknown text encoding",
			Action:  "Use utf-8, windows-1252, iso-8859-1 or another IANA name",
			Code:    "SRC004",
		},
	},
	{
		pattern: "unsupported source format",
		msg: UserMessage{
			Message: "Unsupported source format",
			Action:  "Provide an .xlsx, .xlsm or .csv file",
			Code:    "SRC005",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The source file is empty",
			Action:  "Provide a file with a header row and data rows",
			Code:    "SRC006",
		},
	},

	// =========================================================================
	// Run Errors (RUN001-RUN003)
	// =========================================================================
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Import was interrupted",
			Action:  "Rerun the import; committed rows are kept and upserted again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "apply migrations",
		msg: UserMessage{
			Message: "The database schema could not be provisioned",
			Action:  "Check the database permissions and the migration log",
			Code:    "RUN003",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the original error",
	Code:    "ERR000",
}

// MapError converts a technical error to an operator-facing message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, the ERR000 fallback is returned.
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

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether an error matches a known pattern (not the
// ERR000 fallback).
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
