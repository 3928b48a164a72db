package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountInCentsRoundsExactly(t *testing.T) {
	// Truncation would yield 1998 here
	assert.Equal(t, int64(1999), amountInCents(19.99))
	assert.Equal(t, int64(25000), amountInCents(250))
	assert.Equal(t, int64(10), amountInCents(0.10))
	assert.Equal(t, int64(0), amountInCents(0))
}
