package escrow

import (
	"testing"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMistSuiRoundTrip(t *testing.T) {
	for _, x := range []float64{0, 1, 2, 17, 500, 2000, 1_000_000, 9_000_000} {
		assert.Equal(t, x, MistToSui(SuiToMist(x)), "x=%v", x)
	}
	assert.Equal(t, uint64(300_000_000), SuiToMist(0.3))
	assert.Equal(t, uint64(0), SuiToMist(-1))
}

func TestParseSui(t *testing.T) {
	v, err := ParseSui("1.5")
	require.NoError(t, err)
	assert.Equal(t, uint64(1_500_000_000), v)

	v, err = ParseSui("0.000000001")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	_, err = ParseSui("0.0000000001")
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
	_, err = ParseSui("-1")
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
	_, err = ParseSui("abc")
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)
}

func TestFormatSui(t *testing.T) {
	assert.Equal(t, "1", FormatSui(MistPerSui))
	assert.Equal(t, "1.5", FormatSui(1_500_000_000))
	assert.Equal(t, "0.000000001", FormatSui(1))
}

func TestAddressHelpers(t *testing.T) {
	full := interfaces.MustParseAddress("0x1234").String()
	assert.True(t, IsValidAddress(full))
	assert.False(t, IsValidAddress("0x1234"))
	assert.False(t, IsValidAddress(full[2:]))

	assert.Equal(t, "0x000000...001234", FormatAddress(full, 6))
	assert.Equal(t, "0x12", FormatAddress("0x12", 6))
}
