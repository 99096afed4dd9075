package discount

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdditive(t *testing.T) {
	cases := []struct {
		name       string
		d1, d2, d3 float64
		want       float64
	}{
		{"capped", 40, 40, 40, 100},
		{"exactly hundred", 50, 30, 20, 100},
		{"sum", 10, 20, 5, 35},
		{"negative floors at zero", -5, 0, 0, 0},
		{"negative offsets", 20, -5, 0, 15},
		{"all zero", 0, 0, 0, 0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Additive(tt.d1, tt.d2, tt.d3), 1e-9)
		})
	}
}

func TestMultiplicative(t *testing.T) {
	cases := []struct {
		name       string
		d1, d2, d3 float64
		want       float64
	}{
		{"two halves", 50, 50, 0, 75},
		{"three tens", 10, 10, 10, 27.1},
		{"none", 0, 0, 0, 0},
		{"single", 15, 0, 0, 15},
		{"full", 100, 20, 0, 100},
		{"over hundred is not clamped", 150, 0, 0, 150},
		{"negative surcharge", -10, 0, 0, -10},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Multiplicative(tt.d1, tt.d2, tt.d3), 1e-9)
		})
	}
}

func TestCombineDispatchesOnMode(t *testing.T) {
	got, err := Combine(ModeAdditive, 10, 10, 10)
	require.NoError(t, err)
	assert.InDelta(t, 30, got, 1e-9)

	got, err = Combine(ModeMultiplicative, 10, 10, 10)
	require.NoError(t, err)
	assert.InDelta(t, 27.1, got, 1e-9)
}

func TestCombineUnknownMode(t *testing.T) {
	_, err := Combine(Mode("progressive"), 10, 0, 0)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnknownDiscountingMode))

	var modeErr *UnknownModeError
	require.True(t, errors.As(err, &modeErr))
	assert.Equal(t, Mode("progressive"), modeErr.Mode)
	assert.Equal(t, `unknown discounting mode "progressive"`, err.Error())

	modeErr.Line = "Widget A"
	assert.Equal(t, `sales order line Widget A has unknown discounting mode "progressive"`, modeErr.Error())
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeMultiplicative, mode)

	mode, err = ParseMode("additive")
	require.NoError(t, err)
	assert.Equal(t, ModeAdditive, mode)

	_, err = ParseMode("ADDITIVE")
	require.ErrorIs(t, err, ErrUnknownDiscountingMode)
}
