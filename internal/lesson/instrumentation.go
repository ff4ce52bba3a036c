package lesson

import (
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/ashureev/lingua-lessons/internal/lesson"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
	logger = otelslog.NewLogger(scopeName)

	turnCounter, _ = meter.Int64Counter("lesson.turns",
		metric.WithDescription("Lesson turns by outcome"))
	completionCounter, _ = meter.Int64Counter("lesson.completions",
		metric.WithDescription("Sessions moved to completed"))
	turnDuration, _ = meter.Float64Histogram("lesson.turn.duration",
		metric.WithDescription("End-to-end turn latency"),
		metric.WithUnit("s"))
	orphanGauge, _ = meter.Int64Gauge("lesson.orphan_messages",
		metric.WithDescription("User messages without a reply, as of the last audit"))
)
