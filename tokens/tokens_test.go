package tokens

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateCounter(t *testing.T) {
	c := EstimateCounter{}

	assert.Equal(t, 0, c.Count(""))
	assert.Equal(t, 1, c.Count("abc"))
	assert.Equal(t, 1, c.Count("abcd"))
	assert.Equal(t, 2, c.Count("abcde"))
	assert.Equal(t, 25, c.Count(strings.Repeat("x", 100)))
}

func TestNewCounter_UnknownModelFallsBack(t *testing.T) {
	c := NewCounter("definitely-not-a-model")
	assert.IsType(t, EstimateCounter{}, c)
	assert.Equal(t, 1, c.Count("abcd"))
}
