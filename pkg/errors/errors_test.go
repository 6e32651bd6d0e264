package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(CodeDependency, cause, "saving preference")

	require.ErrorIs(t, err, cause)
	require.Equal(t, CodeDependency, err.Code())
	require.Equal(t, "DEPENDENCY_ERROR: saving preference", err.Error())
}

func TestWrapNilCauseBehavesLikeNew(t *testing.T) {
	err := Wrap(CodeValidation, nil, "missing id")
	require.Equal(t, CodeValidation, err.Code())
	require.Nil(t, err.Unwrap())
}

func TestAsFindsTypedErrorInChain(t *testing.T) {
	inner := New(CodeExpired, "offer no longer valid")
	wrapped := fmt.Errorf("accepting offer: %w", inner)

	typed := As(wrapped)
	require.NotNil(t, typed)
	require.Equal(t, CodeExpired, typed.Code())
	require.True(t, IsCode(wrapped, CodeExpired))
	require.False(t, IsCode(wrapped, CodeNotFound))
}

func TestRetryable(t *testing.T) {
	require.True(t, Retryable(New(CodeDependency, "redis down")))
	require.False(t, Retryable(New(CodeExpired, "too late")))
	require.True(t, Retryable(fmt.Errorf("plain")))
	require.False(t, Retryable(nil))
}

func TestMetadataForUnknownCodeFallsBack(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	require.Equal(t, metadataByCode[CodeInternal], meta)
}
