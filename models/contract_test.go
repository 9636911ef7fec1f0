package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContractType(t *testing.T) {
	for _, valid := range []string{"Stock", "Option", "Future", "Forex", "Index"} {
		ct, err := ParseContractType(valid)
		require.NoError(t, err)
		assert.Equal(t, ContractType(valid), ct)
	}

	_, err := ParseContractType("Warrant")
	assert.Error(t, err)
	_, err = ParseContractType("stock")
	assert.Error(t, err)
}

func TestParseRight(t *testing.T) {
	right, err := ParseRight("CALL")
	require.NoError(t, err)
	assert.Equal(t, RightCall, right)

	right, err = ParseRight("PUT")
	require.NoError(t, err)
	assert.Equal(t, RightPut, right)

	_, err = ParseRight("C")
	assert.Error(t, err)
}

func TestParseDataType(t *testing.T) {
	for _, valid := range []string{"BID", "ASK", "TRADES"} {
		dt, err := ParseDataType(valid)
		require.NoError(t, err)
		assert.Equal(t, DataType(valid), dt)
	}

	_, err := ParseDataType("MIDPOINT")
	assert.Error(t, err)
}

func TestTradableDefaultsToTrue(t *testing.T) {
	c := Contract{Symbol: "AAPL", ContractType: ContractStock}
	assert.True(t, c.Tradable())

	no := false
	c.ToTrade = &no
	assert.False(t, c.Tradable())
}
