package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/pii-vault/internal/errors"
)

func TestNotBlank(t *testing.T) {
	t.Run("accepts non-blank strings", func(t *testing.T) {
		assert.NoError(t, NotBlank.Validate("hello"))
		assert.NoError(t, NotBlank.Validate(" hello "))
	})

	t.Run("rejects blank strings", func(t *testing.T) {
		assert.Error(t, NotBlank.Validate("   "))
		assert.Error(t, NotBlank.Validate("\t\n"))
	})

	t.Run("skips empty strings", func(t *testing.T) {
		// Empty values are left to Required.
		assert.NoError(t, NotBlank.Validate(""))
	})
}

func TestNoWhitespace(t *testing.T) {
	t.Run("accepts trimmed strings", func(t *testing.T) {
		assert.NoError(t, NoWhitespace.Validate("123456789012"))
	})

	t.Run("interior whitespace is allowed", func(t *testing.T) {
		assert.NoError(t, NoWhitespace.Validate("12 34"))
	})

	t.Run("rejects leading whitespace", func(t *testing.T) {
		assert.Error(t, NoWhitespace.Validate(" 1234"))
	})

	t.Run("rejects trailing whitespace", func(t *testing.T) {
		assert.Error(t, NoWhitespace.Validate("1234\t"))
	})
}

func TestBase64(t *testing.T) {
	t.Run("accepts valid base64", func(t *testing.T) {
		assert.NoError(t, Base64.Validate("aGVsbG8="))
	})

	t.Run("skips empty strings", func(t *testing.T) {
		assert.NoError(t, Base64.Validate(""))
	})

	t.Run("rejects invalid base64", func(t *testing.T) {
		assert.Error(t, Base64.Validate("!!!not-base64!!!"))
	})

	t.Run("rejects non-string values", func(t *testing.T) {
		assert.Error(t, Base64.Validate(42))
	})
}

func TestWrapValidationError(t *testing.T) {
	t.Run("nil error passes through", func(t *testing.T) {
		assert.NoError(t, WrapValidationError(nil))
	})

	t.Run("wraps as invalid input", func(t *testing.T) {
		err := WrapValidationError(assert.AnError)
		require.Error(t, err)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
		assert.Contains(t, err.Error(), assert.AnError.Error())
	})
}
