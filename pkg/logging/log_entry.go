package logging

// LogEntry represents a structured log record with fields relevant to
// workflow runs and evolution generations.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Run-specific fields
	RunID      string  // The workflow run this entry belongs to
	NodeID     string  // The node being invoked, if any
	Generation int     // Evolution generation, -1 when outside a run
	Cost       float64 // Accumulated cost in USD at log time

	// General structured data
	Fields map[string]interface{}
}
