package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRound(t *testing.T) {
	assert.Equal(t, 15.0, Round2(100*15.0/100))
	assert.Equal(t, 1970.0, Round2(2000*(1-1.5/100)))
	assert.Equal(t, 2060.0, Round2(2000*(1+3.0/100)))
	assert.Equal(t, 0.1235, Round4(0.123456))
	assert.Equal(t, -2.1, Round2(-2.1))
}
