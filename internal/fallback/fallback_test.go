package fallback

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func counting(calls *int, value string, err error) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		return value, err
	}
}

func TestFirstSuccess(t *testing.T) {
	t.Run("stops at first success", func(t *testing.T) {
		var first, second int
		got, err := FirstSuccess(context.Background(), nil,
			Tier[string]{Name: "primary", Run: counting(&first, "a", nil)},
			Tier[string]{Name: "secondary", Run: counting(&second, "b", nil)},
		)
		require.NoError(t, err)
		assert.Equal(t, "a", got)
		assert.Equal(t, 1, first)
		assert.Equal(t, 0, second)
	})

	t.Run("falls through once per tier", func(t *testing.T) {
		var first, second int
		got, err := FirstSuccess(context.Background(), nil,
			Tier[string]{Name: "primary", Run: counting(&first, "", errBoom)},
			Tier[string]{Name: "secondary", Run: counting(&second, "b", nil)},
		)
		require.NoError(t, err)
		assert.Equal(t, "b", got)
		assert.Equal(t, 1, first)
		assert.Equal(t, 1, second)
	})

	t.Run("exhausted carries every error", func(t *testing.T) {
		other := errors.New("other")
		var first, second int
		_, err := FirstSuccess(context.Background(), nil,
			Tier[string]{Name: "primary", Run: counting(&first, "", errBoom)},
			Tier[string]{Name: "secondary", Run: counting(&second, "", other)},
		)
		var exhausted *ExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, []string{"primary", "secondary"}, exhausted.Tiers)
		assert.ErrorIs(t, err, errBoom)
		assert.ErrorIs(t, err, other)
		assert.Equal(t, 1, first)
		assert.Equal(t, 1, second)
	})

	t.Run("no tiers", func(t *testing.T) {
		_, err := FirstSuccess[string](context.Background(), nil)
		assert.Error(t, err)
	})
}
