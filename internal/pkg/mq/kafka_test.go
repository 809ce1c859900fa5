package mq

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestKafkaHeaderCarrierSetOverwrites(t *testing.T) {
	carrier := KafkaHeaderCarrier{{Key: "a", Value: []byte("1")}}
	carrier.Set("a", "2")
	carrier.Set("b", "3")

	require.Equal(t, "2", carrier.Get("a"))
	require.Equal(t, "3", carrier.Get("b"))
	require.Equal(t, "", carrier.Get("missing"))
	require.ElementsMatch(t, []string{"a", "b"}, carrier.Keys())
}

func TestInjectExtractRoundTripsSpanContext(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	var headers []kafka.Header
	InjectTraceContext(ctx, &headers)
	require.NotEmpty(t, headers)

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), headers))
	require.Equal(t, traceID, got.TraceID())
	require.Equal(t, spanID, got.SpanID())
}
