package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair("BTC-USDT")
	require.NoError(t, err)
	assert.Equal(t, Pair{Base: "BTC", Quote: "USDT"}, p)
	assert.Equal(t, "BTC-USDT", p.String())

	p, err = ParsePair(" eth-usd ")
	require.NoError(t, err)
	assert.Equal(t, Pair{Base: "ETH", Quote: "USD"}, p)
}

func TestParsePairRejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "BTCUSDT", "BTC-", "-USDT", "BTC-USD-T"} {
		_, err := ParsePair(in)
		require.Error(t, err, "input %q", in)
		assert.True(t, IsKind(err, KindMisuse))
	}
}

func TestPairJoin(t *testing.T) {
	p := MustPair("BTC-USDT")
	assert.Equal(t, "BTCUSDT", p.Join(""))
	assert.Equal(t, "BTC_USDT", p.Join("_"))
	assert.Equal(t, "BTC/USDT", p.Join("/"))
}

func TestPairValidate(t *testing.T) {
	assert.NoError(t, Pair{Base: "BTC", Quote: "USDT"}.Validate())
	assert.Error(t, Pair{Base: "BTC"}.Validate())
	assert.True(t, Pair{}.IsZero())
}
