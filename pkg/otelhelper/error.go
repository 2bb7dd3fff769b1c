package otelhelper

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

func SetError(span trace.Span, err error, attrs ...attribute.KeyValue) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.AddEvent("error_occurred", trace.WithAttributes(
		attrs...,
	))
}

// SetAgentError marks a span failed and tags it with the agent role and
// tool, so per-agent failures can be filtered in trace queries.
func SetAgentError(span trace.Span, role, tool string, err error) {
	SetError(span, err,
		attribute.String(AgentRoleKey, role),
		attribute.String(AgentToolKey, tool),
	)
}
