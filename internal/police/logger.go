package police

import (
	"time"

	"github.com/sirupsen/logrus"
)

func logRequest(log logrus.FieldLogger, endpoint string, params map[string]string) {
	entry := log.WithField("endpoint", endpoint)
	for k, v := range params {
		entry = entry.WithField(k, v)
	}
	entry.Debug("police api request")
}

func logResponse(log logrus.FieldLogger, endpoint string, statusCode int, duration time.Duration, resultCount int) {
	log.WithFields(logrus.Fields{
		"endpoint":    endpoint,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
		"results":     resultCount,
	}).Debug("police api response")
}

// leveledLogger adapts logrus to retryablehttp.LeveledLogger.
type leveledLogger struct {
	log logrus.FieldLogger
}

func (l leveledLogger) with(keysAndValues []interface{}) logrus.FieldLogger {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if k, ok := keysAndValues[i].(string); ok {
			fields[k] = keysAndValues[i+1]
		}
	}
	return l.log.WithFields(fields)
}

// Error is used by retryablehttp for individual failed attempts, which may
// still be retried. The client logs the final outcome itself.
func (l leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}

func (l leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Info(msg)
}

func (l leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Debug(msg)
}

func (l leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.with(keysAndValues).Warn(msg)
}
