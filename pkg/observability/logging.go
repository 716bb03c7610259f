// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package observability

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LoggingTracer writes spans and metrics to a zap logger. It is the
// batteries-included exporter for deployments that have structured logging
// but no tracing backend; hosts with a real backend implement Tracer
// themselves.
type LoggingTracer struct {
	logger *zap.Logger
}

// NewLoggingTracer creates a tracer that logs spans and metrics at debug
// level and span errors at warn level.
func NewLoggingTracer(logger *zap.Logger) *LoggingTracer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingTracer{logger: logger}
}

// StartSpan creates a span linked to any parent found in the context.
func (t *LoggingTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{
		TraceID:    uuid.New().String(),
		SpanID:     uuid.New().String(),
		Name:       name,
		StartTime:  time.Now(),
		Attributes: make(map[string]interface{}),
	}

	for _, opt := range opts {
		opt(span)
	}

	if parent := SpanFromContext(ctx); parent != nil {
		span.TraceID = parent.TraceID
		span.ParentID = parent.SpanID
	}

	return ContextWithSpan(ctx, span), span
}

// EndSpan completes the span and logs it.
func (t *LoggingTracer) EndSpan(span *Span) {
	if span == nil {
		return
	}
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	fields := []zap.Field{
		zap.String("trace_id", span.TraceID),
		zap.String("span_id", span.SpanID),
		zap.String("span", span.Name),
		zap.Duration("duration", span.Duration),
		zap.Any("attributes", span.Attributes),
	}

	if span.Status.Code == StatusError {
		t.logger.Warn("span completed with error",
			append(fields, zap.String("status_message", span.Status.Message))...)
		return
	}
	t.logger.Debug("span completed", fields...)
}

// RecordMetric logs the metric point.
func (t *LoggingTracer) RecordMetric(name string, value float64, labels map[string]string) {
	t.logger.Debug("metric",
		zap.String("name", name),
		zap.Float64("value", value),
		zap.Any("labels", labels),
	)
}

// RecordEvent logs the event with any active span's identifiers.
func (t *LoggingTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	fields := []zap.Field{
		zap.String("event", name),
		zap.Any("attributes", attributes),
	}
	if span := SpanFromContext(ctx); span != nil {
		fields = append(fields, zap.String("trace_id", span.TraceID), zap.String("span_id", span.SpanID))
	}
	t.logger.Debug("event", fields...)
}

// Flush is a no-op; zap handles its own buffering.
func (t *LoggingTracer) Flush(ctx context.Context) error {
	return nil
}

// Ensure LoggingTracer implements Tracer interface.
var _ Tracer = (*LoggingTracer)(nil)
