package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/platinummonkey/cristata/pkg/observability"
)

// MultiLogger records to several loggers
type MultiLogger struct {
	loggers []Logger
	async   bool
	wg      sync.WaitGroup
	errChan chan error
}

// NewMultiLogger creates a synchronous multi-logger
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	return &MultiLogger{
		loggers: loggers,
		errChan: make(chan error, len(loggers)),
	}
}

// SetAsync sets whether records are written in the background
func (m *MultiLogger) SetAsync(async bool) {
	m.async = async
}

// Record writes the activity to every logger. Synchronous mode returns the
// first error but still writes to the remaining loggers.
func (m *MultiLogger) Record(ctx context.Context, activity *Activity) error {
	if len(m.loggers) == 0 {
		return nil
	}

	if m.async {
		for _, logger := range m.loggers {
			m.wg.Add(1)
			go func(l Logger) {
				defer m.wg.Done()
				if err := l.Record(context.WithoutCancel(ctx), activity); err != nil {
					observability.FromContext(ctx).WithError(err).WithField("collection", activity.ColName).
						Warn("Failed to record activity")
					select {
					case m.errChan <- err:
					default:
					}
				}
			}(logger)
		}
		return nil
	}

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Record(ctx, activity); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Wait waits for background writes
func (m *MultiLogger) Wait() {
	m.wg.Wait()
}

// GetErrors drains errors from background writes
func (m *MultiLogger) GetErrors() []error {
	var errs []error
	for {
		select {
		case err := <-m.errChan:
			errs = append(errs, err)
		default:
			return errs
		}
	}
}

// Close waits for pending writes and closes all loggers
func (m *MultiLogger) Close() error {
	m.wg.Wait()

	var firstErr error
	for _, logger := range m.loggers {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close logger: %w", err)
		}
	}
	return firstErr
}

// StructuredLogger writes activities to the structured application log
type StructuredLogger struct{}

// Record logs the activity at info level
func (StructuredLogger) Record(ctx context.Context, activity *Activity) error {
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"activity_type": string(activity.Type),
		"collection":    activity.ColName,
		"doc_id":        activity.DocID.Hex(),
		"activity_name": activity.Name,
	}).Info("activity recorded")
	return nil
}

func (StructuredLogger) Close() error { return nil }
