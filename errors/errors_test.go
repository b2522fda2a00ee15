package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.class.String())
		})
	}
}

func TestWrapPattern(t *testing.T) {
	base := fmt.Errorf("boom")
	err := Wrap(base, "flowstore", "Get", "get from KV")

	assert.Equal(t, "flowstore.Get: get from KV failed: boom", err.Error())
	assert.True(t, errors.Is(err, base))
	assert.Nil(t, Wrap(nil, "a", "b", "c"))
}

func TestClassifiedWrappers(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
		invalid   bool
		fatal     bool
	}{
		{"transient", WrapTransient(fmt.Errorf("x"), "c", "m", "a"), true, false, false},
		{"invalid", WrapInvalid(fmt.Errorf("x"), "c", "m", "a"), false, true, false},
		{"fatal", WrapFatal(fmt.Errorf("x"), "c", "m", "a"), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.invalid, IsInvalid(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestWrappersPreserveSentinels(t *testing.T) {
	err := WrapInvalid(ErrVersionConflict, "flowstore", "Update", "compare version")

	assert.True(t, IsConflict(err))
	assert.True(t, IsInvalid(err))
	assert.False(t, IsNotFound(err))

	notFound := WrapInvalid(ErrFlowNotFound, "flowstore", "Get", "lookup")
	assert.True(t, IsNotFound(notFound))
}

func TestIsTransient_UnclassifiedErrors(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(context.DeadlineExceeded))
	assert.True(t, IsTransient(ErrStorageUnavailable))
	assert.True(t, IsTransient(fmt.Errorf("dial tcp: connection refused")))
	assert.False(t, IsTransient(ErrMalformedFlow))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, ErrorInvalid, Classify(ErrUnknownComponent))
	assert.Equal(t, ErrorFatal, Classify(ErrInvalidConfig))
	assert.Equal(t, ErrorTransient, Classify(fmt.Errorf("something odd")))
	assert.Equal(t, ErrorInvalid, Classify(WrapInvalid(fmt.Errorf("bad"), "c", "m", "a")))
}
