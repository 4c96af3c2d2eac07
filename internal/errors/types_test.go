package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSiteError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *SiteError
		expected string
	}{
		{
			name:     "code and message",
			err:      NewValidationError("ERR_X", "bad input"),
			expected: "[ERR_X] bad input",
		},
		{
			name:     "with component",
			err:      NewSecurityError("ERR_Y", "blocked").WithComponent("csrf"),
			expected: "[ERR_Y] component:csrf blocked",
		},
		{
			name:     "with cause",
			err:      NewStorageError(ErrCodeStorageWrite, "write failed", fmt.Errorf("disk full")),
			expected: "[ERR_STORAGE_WRITE] write failed: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestSiteError_IsAndUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := NewLoadError(ErrCodeChunkLoad, "load failed", cause)
	wrapped := fmt.Errorf("render: %w", err)

	assert.True(t, errors.Is(wrapped, cause))
	assert.True(t, errors.Is(wrapped, &SiteError{Type: ErrorTypeLoad, Code: ErrCodeChunkLoad}))
	assert.False(t, errors.Is(wrapped, &SiteError{Type: ErrorTypeLoad, Code: "OTHER"}))
	assert.Equal(t, ErrorTypeLoad, TypeOf(wrapped))
}

func TestClassification(t *testing.T) {
	assert.True(t, IsNotFound(NewNotFoundError(ErrCodeChunkNotFound, "missing")))
	assert.True(t, IsValidation(NewValidationError(ErrCodeValidationFailed, "bad")))
	assert.True(t, IsRecoverable(NewStorageError(ErrCodeStorageRead, "x", nil)))
	assert.False(t, IsRecoverable(fmt.Errorf("plain")))
	assert.Equal(t, ErrorTypeInternal, TypeOf(fmt.Errorf("plain")))
}

func TestValidationErrorCollection(t *testing.T) {
	var vec ValidationErrorCollection
	assert.False(t, vec.HasErrors())
	assert.Nil(t, vec.ToSiteError())
	assert.Equal(t, "", vec.First())

	vec.AddField("email", "nope", "Please enter a valid email address")
	vec.AddField("name", "", "Name is required")

	require.True(t, vec.HasErrors())
	assert.Equal(t, "Please enter a valid email address", vec.First())
	assert.Equal(t, "validation failed with 2 errors", vec.Error())

	se := vec.ToSiteError()
	require.NotNil(t, se)
	assert.Equal(t, "Please enter a valid email address", se.Message)
	assert.Equal(t, ErrCodeValidationFailed, se.Code)
	fields, ok := se.Context["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, fields, 2)
}
