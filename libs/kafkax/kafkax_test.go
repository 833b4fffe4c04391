package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBackToPositionAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "booking.appointment.created.v1", Key: []byte("a1"), Partition: 2, Offset: 41}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "booking.appointment.created.v1/2/41" || meta.EventType != "booking.appointment.created.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}

	msg.Headers = []kafka.Header{
		{Key: "event_id", Value: []byte("evt-2")},
		{Key: "event_type", Value: []byte("booking.appointment.status_changed.v1")},
	}
	meta = ExtractEventMeta(msg)
	if meta.EventID != "evt-2" || meta.EventType != "booking.appointment.status_changed.v1" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers: %#v", got)
	}
	if err := ReadyCheck("")(context.Background()); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("evt")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %#v", headers)
	}
	if HeaderValue(headers, "event_id") != "evt" {
		t.Fatal("expected existing headers to be kept")
	}

	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if got := trace.SpanContextFromContext(out).TraceID(); got != traceID {
		t.Fatalf("expected trace id %s, got %s", traceID, got)
	}
}
