package ice

import "time"

// Progress contains information about a program transfer.
// Passed to ProgressCallback during Program operations.
type Progress struct {
	// Phase describes the current operation phase:
	//   "programming" - Transferring image chunks
	//   "finalizing"  - Committing the transfer
	//   "complete"    - Operation completed successfully
	Phase string

	// CurrentChunk is the chunk being transferred (0-based)
	CurrentChunk int

	// TotalChunks is the total number of chunks to transfer
	TotalChunks int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// BytesWritten is the total number of image bytes sent so far
	BytesWritten int

	// ElapsedTime is the time elapsed since the transfer started
	ElapsedTime time.Duration
}

// ProgressCallback is called during Program to report progress.
// Implementations should return quickly to avoid blocking the
// transfer.
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the
// session. This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	sess := ice.New(device, ice.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
