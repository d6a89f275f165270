package graph

import (
	"context"

	"github.com/dyike/agenttrader/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/dyike/agenttrader/internal/graph"

// startNodeSpan starts a span for a single node execution.
func startNodeSpan(ctx context.Context, node string, step int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "graph.node")
	span.SetAttributes(
		attribute.String("node.name", node),
		attribute.Int("node.step", step),
	)
	return ctx, span
}

// endNodeSpan ends the node span with what the node wrote.
func endNodeSpan(span trace.Span, delta *models.StateDelta, err error) {
	if delta != nil {
		span.SetAttributes(
			attribute.Int("node.messages", len(delta.Messages)),
			attribute.Bool("node.reset_messages", delta.ResetMessages),
		)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
