package indicators

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/watchtower/internal/domain"
)

func closes(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func TestRSI(t *testing.T) {
	t.Run("rising closes", func(t *testing.T) {
		rsi, err := RSI(closes(1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15), RSIPeriod)
		require.NoError(t, err)
		assert.True(t, rsi.Equal(decimal.NewFromInt(100)), rsi.String())
	})

	t.Run("not enough closes", func(t *testing.T) {
		_, err := RSI(closes(1, 2, 3), RSIPeriod)
		assert.ErrorIs(t, err, domain.ErrStaleData)
	})
}

func TestChange(t *testing.T) {
	c := closes(100, 90, 95, 110)

	ch, err := Change(c, 3)
	require.NoError(t, err)
	assert.True(t, ch.Equal(decimal.NewFromInt(10)), ch.String())

	ch, err = Change(c, 1)
	require.NoError(t, err)
	assert.Equal(t, "15.79", ch.StringFixed(2))

	_, err = Change(c, 4)
	assert.ErrorIs(t, err, domain.ErrStaleData)
}
