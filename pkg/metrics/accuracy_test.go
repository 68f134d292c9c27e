package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExactMatch(t *testing.T) {
	assert.Equal(t, 1.0, ExactMatch("42", "42"))
	assert.Equal(t, 1.0, ExactMatch("Paris", "  paris "))
	assert.Equal(t, 1.0, ExactMatch("two  words", "Two Words"))
	assert.Equal(t, 0.0, ExactMatch("42", "43"))
	assert.Equal(t, 0.0, ExactMatch("42", "the answer is 42"))
}

func TestContains(t *testing.T) {
	assert.Equal(t, 1.0, Contains("42", "the answer is 42."))
	assert.Equal(t, 1.0, Contains("New York", "It happened in new york last year"))
	assert.Equal(t, 0.0, Contains("42", "no idea"))
	assert.Equal(t, 0.0, Contains("", "anything"))
}

func TestTokenF1(t *testing.T) {
	assert.Equal(t, 1.0, TokenF1("the quick fox", "the quick fox"))
	assert.Equal(t, 0.0, TokenF1("alpha", "beta"))
	assert.Equal(t, 0.0, TokenF1("", "beta"))
	assert.Equal(t, 0.0, TokenF1("alpha", ""))

	// expected "a b c d", actual "a b x": overlap 2, precision 2/3,
	// recall 2/4, F1 = 2*(2/3)*(1/2)/((2/3)+(1/2)) = 4/7
	assert.InDelta(t, 4.0/7.0, TokenF1("a b c d", "a b x"), 1e-9)
}

func TestTokenF1CountsDuplicates(t *testing.T) {
	// Repeating a matched token does not inflate the overlap.
	assert.InDelta(t, 0.5, TokenF1("yes", "yes yes yes"), 1e-9)
}
