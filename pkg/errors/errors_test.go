package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ValidationFailed, "graph rejected")
	require.Error(t, err)
	assert.Equal(t, "graph rejected", err.Error())

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, ValidationFailed, e.Code())
}

func TestWrap(t *testing.T) {
	base := fmt.Errorf("connection reset")
	err := Wrap(base, LLMGenerationFailed, "gateway call failed")
	require.Error(t, err)
	assert.Equal(t, "gateway call failed: connection reset", err.Error())
	assert.Equal(t, base, stderrors.Unwrap(err))

	assert.Nil(t, Wrap(nil, LLMGenerationFailed, "ignored"))
}

func TestWithFields(t *testing.T) {
	err := WithFields(
		New(NodeExecutionFailed, "node failed"),
		Fields{"node_id": "summarizer", "attempt": 2},
	)

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, NodeExecutionFailed, e.Code())

	fields := e.Fields()
	assert.Equal(t, "summarizer", fields["node_id"])
	assert.Equal(t, 2, fields["attempt"])
	assert.Contains(t, err.Error(), "node_id=summarizer")
}

func TestWithFieldsMergesExisting(t *testing.T) {
	err := WithFields(New(BudgetExceeded, "budget hit"), Fields{"run_id": "r1"})
	err = WithFields(err, Fields{"invocations": 3})

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, BudgetExceeded, e.Code())
	assert.Len(t, e.Fields(), 2)
}

func TestWithFieldsForeignError(t *testing.T) {
	err := WithFields(fmt.Errorf("plain"), Fields{"k": "v"})

	var e *Error
	require.True(t, stderrors.As(err, &e))
	assert.Equal(t, Unknown, e.Code())
}

func TestIsMatchesOnCode(t *testing.T) {
	err := New(EmptyPopulation, "no genomes")
	assert.True(t, stderrors.Is(err, New(EmptyPopulation, "different message")))
	assert.False(t, stderrors.Is(err, New(MutationFailed, "no genomes")))
	assert.False(t, stderrors.Is(err, fmt.Errorf("no genomes")))
}

func TestCode(t *testing.T) {
	assert.Equal(t, RateLimitExceeded, Code(New(RateLimitExceeded, "slow down")))
	assert.Equal(t, Unknown, Code(fmt.Errorf("plain")))
}

func TestCheckContext(t *testing.T) {
	assert.NoError(t, CheckContext(context.Background(), "dispatch"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := CheckContext(ctx, "dispatch")
	require.Error(t, err)
	assert.Equal(t, Canceled, Code(err))
	assert.Contains(t, err.Error(), "dispatch canceled")
}
