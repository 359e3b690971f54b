package domain

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	tests := []struct {
		in      string
		want    Pair
		wantErr bool
	}{
		{in: "BTC-USDT", want: Pair{From: "BTC", To: "USDT"}},
		{in: "eth_usdt", want: Pair{From: "ETH", To: "USDT"}},
		{in: " sol/usdc ", want: Pair{From: "SOL", To: "USDC"}},
		{in: "BTCUSDT", wantErr: true},
		{in: "-USDT", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePair(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.From+"-"+tt.want.To, got.InstID())
		})
	}
}

func TestPriceAlert_Triggered(t *testing.T) {
	above, err := NewPriceAlert("a", "btc-usdt", ConditionAbove, d("65000"), time.Now())
	require.NoError(t, err)
	assert.Equal(t, "BTC-USDT", above.InstID)

	assert.False(t, above.Triggered(d("64000")))
	assert.False(t, above.Triggered(d("65000")))
	assert.True(t, above.Triggered(d("65500")))

	below, err := NewPriceAlert("b", "BTC-USDT", ConditionBelow, d("50000"), time.Now())
	require.NoError(t, err)
	assert.True(t, below.Triggered(d("49999.99")))
	assert.False(t, below.Triggered(d("50000")))
}

func TestParseAlertCondition(t *testing.T) {
	c, err := ParseAlertCondition(" Above ")
	require.NoError(t, err)
	assert.Equal(t, ConditionAbove, c)

	_, err = ParseAlertCondition("sideways")
	require.Error(t, err)
}

func TestMovementSettings_Threshold(t *testing.T) {
	s := MovementSettings{Global: d("5"), Overrides: map[string]decimal.Decimal{"ETH": d("2.5")}}
	assert.True(t, s.Threshold("eth").Equal(d("2.5")))
	assert.True(t, s.Threshold("BTC").Equal(d("5")))
}

func TestExtrema_Observe(t *testing.T) {
	e := NewExtrema("btc", d("100"), time.Now())
	assert.False(t, e.Observe(d("100")))
	assert.True(t, e.Observe(d("120")))
	assert.True(t, e.Observe(d("90")))
	assert.False(t, e.Observe(d("110")))
	assert.True(t, e.High.Equal(d("120")))
	assert.True(t, e.Low.Equal(d("90")))
}

func TestUpstreamError(t *testing.T) {
	err := NewUpstreamError("okx", "balance", "50011", errors.New("rate limited"))
	wrapped := errors.Wrap(err, "fetch balances")

	assert.ErrorIs(t, wrapped, ErrUpstream)
	var ue *UpstreamError
	require.ErrorAs(t, wrapped, &ue)
	assert.Equal(t, "50011", ue.Code)
	assert.Contains(t, err.Error(), "code 50011")
}
