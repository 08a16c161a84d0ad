package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vytor/simclinic/internal/errors"
)

func TestAppError_ErrorIncludesSortedFields(t *testing.T) {
	err := errors.NewFieldsValidationError("bad override", map[string]string{
		"edited_score": "must be <= 100",
		"comments":     "too long",
	})

	assert.Equal(t, "VALIDATION_ERROR: bad override [comments=too long, edited_score=must be <= 100]", err.Error())
	assert.Equal(t, http.StatusUnprocessableEntity, err.Status)
}

func TestCode_FindsWrappedAppError(t *testing.T) {
	inner := errors.NewUpstreamUnavailableError("assessment oracle", stderrors.New("deadline exceeded"))
	wrapped := fmt.Errorf("generate: %w", inner)

	assert.Equal(t, errors.ErrCodeUpstreamUnavailable, errors.Code(wrapped))
	assert.True(t, errors.HasCode(wrapped, errors.ErrCodeUpstreamUnavailable))

	appErr, ok := errors.As(wrapped)
	require.True(t, ok)
	assert.True(t, appErr.Recoverable())
	assert.Contains(t, appErr.Error(), "deadline exceeded")
}

func TestCode_PlainErrorIsInternal(t *testing.T) {
	assert.Equal(t, errors.ErrCodeInternal, errors.Code(stderrors.New("boom")))
	assert.Equal(t, "", errors.Code(nil))
	assert.False(t, errors.HasCode(nil, errors.ErrCodeNotFound))
}

func TestNewInvalidStateError_NamesBothStates(t *testing.T) {
	err := errors.NewInvalidStateError("session", "ACTIVE", "ACTIVE")

	assert.Equal(t, http.StatusConflict, err.Status)
	assert.Contains(t, err.Message, "from ACTIVE to ACTIVE")
	assert.False(t, err.Recoverable())
}
