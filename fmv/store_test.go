package fmv

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nordtax/espp"
)

func TestStore_RoundTrip(t *testing.T) {
	s, err := OpenStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	on := espp.MustParse("2024-05-02")
	require.NoError(t, s.Put("currency:USD", on, decimal.NewFromFloat(10.8765)))

	value, ok, err := s.Get("currency:USD", on)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, value.Equal(decimal.NewFromFloat(10.8765)), "got %s", value)

	// restatement overwrites
	require.NoError(t, s.Put("currency:USD", on, decimal.NewFromFloat(10.9)))
	value, ok, err = s.Get("currency:USD", on)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, value.Equal(decimal.NewFromFloat(10.9)))

	_, ok, err = s.Get("currency:USD", espp.MustParse("2024-05-03"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_PutAll(t *testing.T) {
	s, err := OpenStore(":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	series := map[string]decimal.Decimal{
		"2024-05-02": decimal.NewFromFloat(10.87),
		"2024-05-03": decimal.NewFromFloat(10.91),
	}
	require.NoError(t, s.PutAll("currency:USD", series))

	n, err := s.Count("currency:USD")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
