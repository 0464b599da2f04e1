package trading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStepPrecision(t *testing.T) {
	assert.Equal(t, int32(5), StepPrecision(0.00001))
	assert.Equal(t, int32(4), StepPrecision(0.0001))
	assert.Equal(t, int32(0), StepPrecision(1))
	assert.Equal(t, int32(0), StepPrecision(0))
}

func TestFloorToStep(t *testing.T) {
	cases := []struct {
		qty, step, want float64
	}{
		{0.0074999, 0.0001, 0.0074},
		{0.0075, 0.0001, 0.0075},
		{15.0 / 2000.0, 0.00001, 0.0075},
		{1.23456789, 0.001, 1.234},
		{0.00009, 0.0001, 0},
		{3, 1, 3},
		{0, 0.001, 0},
	}
	for _, c := range cases {
		got := FloorToStep(c.qty, c.step)
		assert.Equal(t, c.want, got, "FloorToStep(%v, %v)", c.qty, c.step)
		assert.LessOrEqual(t, got, c.qty)
	}
}
