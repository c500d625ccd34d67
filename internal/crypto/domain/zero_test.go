package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestZero(t *testing.T) {
	t.Run("zeroes buffer contents", func(t *testing.T) {
		buf := []byte{1, 2, 3, 4, 5}
		Zero(buf)
		assert.Equal(t, make([]byte, 5), buf)
	})

	t.Run("handles nil buffer", func(t *testing.T) {
		assert.NotPanics(t, func() { Zero(nil) })
	})

	t.Run("handles empty buffer", func(t *testing.T) {
		assert.NotPanics(t, func() { Zero([]byte{}) })
	})
}
