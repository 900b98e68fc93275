package audit

import (
	"context"
)

// Logger records activities
type Logger interface {
	// Record stores one activity
	Record(ctx context.Context, activity *Activity) error

	// Close flushes any buffered records
	Close() error
}

// NoOpLogger discards every record
type NoOpLogger struct{}

func (NoOpLogger) Record(ctx context.Context, activity *Activity) error { return nil }

func (NoOpLogger) Close() error { return nil }
