package httpx

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Quantity int `json:"quantity"`
	}

	t.Run("single value", func(t *testing.T) {
		var p payload
		require.NoError(t, DecodeJSON(strings.NewReader(`{"quantity":2}`), &p))
		assert.Equal(t, 2, p.Quantity)
	})

	t.Run("trailing whitespace", func(t *testing.T) {
		var p payload
		require.NoError(t, DecodeJSON(strings.NewReader("{\"quantity\":2}\n  "), &p))
		assert.Equal(t, 2, p.Quantity)
	})

	t.Run("empty body", func(t *testing.T) {
		var p payload
		assert.ErrorIs(t, DecodeJSON(strings.NewReader(""), &p), io.EOF)
	})

	t.Run("trailing garbage", func(t *testing.T) {
		var p payload
		assert.ErrorIs(t, DecodeJSON(strings.NewReader(`{"quantity":2}garbage`), &p), ErrTrailingData)
	})

	t.Run("second value", func(t *testing.T) {
		var p payload
		assert.ErrorIs(t, DecodeJSON(strings.NewReader(`{"quantity":2}{"quantity":3}`), &p), ErrTrailingData)
	})
}
