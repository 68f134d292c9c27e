package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureOutput records entries for assertions.
type captureOutput struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (c *captureOutput) Write(e LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureOutput) Sync() error  { return nil }
func (c *captureOutput) Close() error { return nil }

func (c *captureOutput) all() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]LogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

func TestSeverityFiltering(t *testing.T) {
	capture := &captureOutput{}
	logger := NewLogger(Config{Severity: WARN, Outputs: []Output{capture}})

	ctx := context.Background()
	logger.Debug(ctx, "debug message")
	logger.Info(ctx, "info message")
	logger.Warn(ctx, "warn message")
	logger.Error(ctx, "error message")

	entries := capture.all()
	require.Len(t, entries, 2)
	assert.Equal(t, WARN, entries[0].Severity)
	assert.Equal(t, ERROR, entries[1].Severity)
}

func TestContextFieldsPropagate(t *testing.T) {
	capture := &captureOutput{}
	logger := NewLogger(Config{Severity: DEBUG, Outputs: []Output{capture}})

	ctx := WithRunID(context.Background(), "run-42")
	ctx = WithNodeID(ctx, "planner")
	ctx = WithGeneration(ctx, 3)

	logger.Info(ctx, "dispatching node")

	entries := capture.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "run-42", entries[0].RunID)
	assert.Equal(t, "planner", entries[0].NodeID)
	assert.Equal(t, 3, entries[0].Generation)
}

func TestDefaultFields(t *testing.T) {
	capture := &captureOutput{}
	logger := NewLogger(Config{
		Severity:      DEBUG,
		Outputs:       []Output{capture},
		DefaultFields: map[string]interface{}{"component": "runner"},
	})

	logger.Info(context.Background(), "hello")

	entries := capture.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "runner", entries[0].Fields["component"])
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, DEBUG, ParseSeverity("DEBUG"))
	assert.Equal(t, ERROR, ParseSeverity("ERROR"))
	assert.Equal(t, INFO, ParseSeverity("bogus"))
}

func TestGetLoggerReturnsSingleton(t *testing.T) {
	l1 := GetLogger()
	l2 := GetLogger()
	assert.Same(t, l1, l2)

	custom := NewLogger(Config{Severity: DEBUG})
	SetLogger(custom)
	defer SetLogger(l1)
	assert.Same(t, custom, GetLogger())
}
