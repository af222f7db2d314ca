// Package monitoring receives structured outcome records from the pipeline
// and surfaces pool health. The pipeline only writes to this package; it
// never queries it back.
package monitoring

import (
	"time"

	"go.uber.org/zap"

	"github.com/timewise-games/content-cli/internal/model"
)

// StageRecord is one structured success/error record emitted per pipeline
// stage invocation.
type StageRecord struct {
	Stage     string
	RequestID string
	Year      int
	Era       model.Era
	Usage     model.TokenUsage
	CostUSD   float64
	Duration  time.Duration
	Err       error
}

// Sink consumes stage records. Implementations must be safe for concurrent
// use; batch workers emit from many goroutines.
type Sink interface {
	Record(rec StageRecord)
}

// LogSink writes stage records as structured log lines.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink builds a sink over the given logger. Pass zap.L() for the
// process-wide logger.
func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(rec StageRecord) {
	fields := []zap.Field{
		zap.String("stage", rec.Stage),
		zap.String("request_id", rec.RequestID),
		zap.Int("year", rec.Year),
		zap.String("era", string(rec.Era)),
		zap.Int64("input_tokens", rec.Usage.InputTokens),
		zap.Int64("output_tokens", rec.Usage.OutputTokens),
		zap.Int64("reasoning_tokens", rec.Usage.ReasoningTokens),
		zap.Float64("cost_usd", rec.CostUSD),
		zap.Int64("duration_ms", rec.Duration.Milliseconds()),
	}
	if rec.Err != nil {
		s.log.Error("stage failed", append(fields, zap.Error(rec.Err))...)
		return
	}
	s.log.Info("stage completed", fields...)
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Record(StageRecord) {}
