package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/importer/internal/schema"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil", nil, ""},
		{"missing file", fmt.Errorf("%w: /tmp/x.csv", ErrFileNotFound), "FILE001"},
		{"unsupported", fmt.Errorf("%w: \".pdf\"", ErrUnsupportedFormat), "FILE002"},
		{"too large", ErrFileTooLarge, "FILE003"},
		{"unknown entity", schema.ErrUnknownEntity, "ENT001"},
		{"validation abort", fmt.Errorf("%w: row 3: first_name: required field is empty", ErrValidationFailed), "VAL008"},
		{"required", errors.New("first_name: required field is empty"), "VAL003"},
		{"cancelled", context.Canceled, "IMP005"},
		{"duplicate key", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"path outside import dir", errors.New("path not allowed: /tmp/timeout/secrets.csv"), "REQ002"},
		{"unknown", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, MapError(tt.err).Code)
		})
	}
}

func TestFormatUserError(t *testing.T) {
	assert.Equal(t, "", FormatUserError(nil))
	assert.Equal(t,
		"File exceeds maximum size limit (100MB) (Code: FILE003). Split the file into smaller chunks",
		FormatUserError(ErrFileTooLarge))
}

func TestIsUserFacing(t *testing.T) {
	assert.False(t, IsUserFacing(nil))
	assert.False(t, IsUserFacing(errors.New("something odd")))
	assert.True(t, IsUserFacing(ErrUnsupportedFormat))
}
