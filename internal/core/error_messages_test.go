package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/JonMunkholm/adminjobs/internal/format"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{name: "nil error returns empty", err: nil, wantCode: ""},
		{name: "job not found", err: ErrJobNotFound, wantCode: "JOB001"},
		{name: "wrapped queue full", err: reject(ErrQueueFull), wantCode: "JOB002"},
		{name: "cancelled job", err: fmt.Errorf("import: %w", ErrJobCancelled), wantCode: "JOB004"},
		{name: "unsupported upload", err: rejectf(format.ErrUnsupported, "%q", "a.pdf"), wantCode: "IMP003"},
		{name: "missing columns", err: MissingColumnsError([]string{"email"}), wantCode: "IMP005"},
		{name: "no export data", err: ErrNoExportData, wantCode: "EXP001"},
		{name: "expired artifact", err: ErrArtifactNotFound, wantCode: "ART001"},
		{name: "missing tenant", err: reject(ErrMissingTenant), wantCode: "REQ001"},
		{name: "sentinel beats pattern", err: fmt.Errorf("%w: timeout while waiting", ErrQueueFull), wantCode: "JOB002"},
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: "DB006"},
		{name: "duplicate key pattern", err: errors.New("ERROR: duplicate key value violates unique constraint"), wantCode: "DB001"},
		{name: "connection refused", err: errors.New("dial tcp 127.0.0.1:5432: connection refused"), wantCode: "DB004"},
		{name: "invalid csv", err: errors.New("invalid csv: record on line 2"), wantCode: "IMP006"},
		{name: "rate limit", err: errors.New("rate limit exceeded"), wantCode: "RATE001"},
		{name: "unknown error returns default", err: errors.New("some random internal error"), wantCode: "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrNoExportData)

	expected := "No data (Code: EXP001). Adjust the filters and export again"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil error is not user facing", err: nil, want: false},
		{name: "sentinel is user facing", err: ErrUploadTooLarge, want: true},
		{name: "unknown error is not user facing", err: errors.New("random internal error xyz"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
