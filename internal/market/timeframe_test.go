package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe(" 15M ")
	require.NoError(t, err)
	assert.Equal(t, "15m", tf.Key)
	assert.Equal(t, 15*time.Minute, tf.Duration)

	_, err = ParseTimeframe("10m")
	assert.Error(t, err)
	_, err = ParseTimeframe("2w")
	assert.Error(t, err)
}

func TestSupportedTimeframesOrdered(t *testing.T) {
	assert.Equal(t, []string{"1m", "3m", "5m", "15m", "30m", "1h", "4h", "1d"}, SupportedTimeframes())
}

func TestCandlesFor(t *testing.T) {
	tf, _ := ParseTimeframe("15m")
	assert.Equal(t, 192, tf.CandlesFor(48*time.Hour))
	assert.Equal(t, 2, tf.CandlesFor(16*time.Minute))
	assert.Equal(t, 0, tf.CandlesFor(0))
}

func TestCandlesHelpers(t *testing.T) {
	cs := Candles{{Close: 1, High: 2, Low: 0.5}, {Close: 3, High: 4, Low: 2.5, CloseTime: 1700000000000}}
	assert.Equal(t, []float64{1, 3}, cs.Closes())
	assert.Equal(t, []float64{2, 4}, cs.Highs())
	assert.Equal(t, []float64{0.5, 2.5}, cs.Lows())
	last, ok := cs.Last()
	assert.True(t, ok)
	assert.Equal(t, 3.0, last.Close)
	assert.Equal(t, int64(1700000000000), last.CloseAt().UnixMilli())
	_, ok = Candles{}.Last()
	assert.False(t, ok)
}
