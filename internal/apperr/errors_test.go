package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestFromStorage(t *testing.T) {
	assert.Nil(t, FromStorage(nil))
	assert.ErrorIs(t, FromStorage(fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey)), ErrDuplicateKey)
	assert.ErrorIs(t, FromStorage(gorm.ErrRecordNotFound), ErrNotFound)

	other := errors.New("connection reset")
	assert.Equal(t, other, FromStorage(other))
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Errors: []FieldError{
		{Field: "email", Message: "must be an email"},
		{Field: "givenName", Message: "is required"},
	}}
	assert.Equal(t, "validation failed: email: must be an email; givenName: is required", err.Error())

	var ve *ValidationError
	assert.True(t, errors.As(fmt.Errorf("push: %w", err), &ve))
	assert.Len(t, ve.Errors, 2)
}

func TestTransient(t *testing.T) {
	assert.Nil(t, Transient("receive", nil))

	cause := errors.New("broker down")
	err := fmt.Errorf("poll: %w", Transient("receive", cause))
	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, cause)
	assert.False(t, IsTransient(cause))
}

func TestProcessingTimeoutError(t *testing.T) {
	err := &ProcessingTimeoutError{Pending: []string{"e1", "e2"}}
	assert.Contains(t, err.Error(), "e1,e2")
}
