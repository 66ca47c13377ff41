package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"connection refused", errors.New("connect to database: dial tcp 127.0.0.1:5432: connect: connection refused"), "DB004"},
		{"deadline before generic timeout", fmt.Errorf("ping database: %w", context.DeadlineExceeded), "RUN002"},
		{"timeout", errors.New("i/o timeout"), "DB006"},
		{"missing file", errors.New("read institutions source data/i.xlsx: open data/i.xlsx: no such file or directory"), "SRC001"},
		{"missing columns", errors.New("missing required columns: id_parcours"), "SRC002"},
		{"bad workbook", errors.New("zip: not a valid zip file"), "SRC003"},
		{"encoding", errors.New(`unsupported encoding "klingon"`), "SRC004"},
		{"interrupted", fmt.Errorf("stage student: %w", context.Canceled), "RUN001"},
		{"migrations", errors.New("apply migrations: permission denied"), "RUN003"},
		{"case insensitive matching", errors.New("CONNECTION RESET by peer"), "DB005"},
		{"unknown error returns default", errors.New("some random internal error"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err); got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}

	got := FormatUserError(errors.New("connection refused"))
	want := "Unable to connect to database (Code: DB004). Check DATABASE_URL and that the server is running"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("IsUserFacing(nil) = true")
	}
	if !IsUserFacing(errors.New("empty file")) {
		t.Error("known pattern should be user facing")
	}
	if IsUserFacing(errors.New("weird")) {
		t.Error("unknown error should not be user facing")
	}
}

// Every pattern must map to a non-empty message and code.
func TestErrorPatternsComplete(t *testing.T) {
	for _, ep := range errorPatterns {
		if ep.pattern == "" || ep.msg.Code == "" || ep.msg.Message == "" || ep.msg.Action == "" {
			t.Errorf("incomplete pattern entry: %+v", ep)
		}
	}
	for kind, msg := range kindMessages {
		if msg.Code == "" || msg.Action == "" {
			t.Errorf("incomplete hint for %s: %+v", kind, msg)
		}
	}
}
