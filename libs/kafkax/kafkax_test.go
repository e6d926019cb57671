package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestNewEventMessageRoundTripsMeta(t *testing.T) {
	msg := NewEventMessage(EventMeta{EventID: "evt-1", EventType: "booking.appointment.requested.v1"}, "appt-9", []byte(`{}`))
	if msg.Topic != "booking.appointment.requested.v1" || string(msg.Key) != "appt-9" {
		t.Fatalf("unexpected message %+v", msg)
	}
	meta := ExtractEventMeta(msg)
	if meta.EventID != "evt-1" || meta.EventType != msg.Topic {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestExtractEventMetaFallsBack(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "t", Key: []byte("k")})
	if meta.EventID != "k" || meta.EventType != "t" {
		t.Fatalf("unexpected meta %+v", meta)
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	carrier := propagation.MapCarrier{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"}
	ctx := otel.GetTextMapPropagator().Extract(context.Background(), carrier)

	headers := InjectTraceHeaders(ctx, nil)
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %+v", headers)
	}
	out := ExtractTraceContext(context.Background(), kafka.Message{Headers: headers})
	if trace.SpanContextFromContext(out).TraceID() != trace.SpanContextFromContext(ctx).TraceID() {
		t.Fatal("trace id not propagated")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka:9092, ,kafka2:9092")
	if len(got) != 2 || got[1] != "kafka2:9092" {
		t.Fatalf("unexpected %v", got)
	}
	if ReadyCheck(nil) != nil {
		t.Fatal("expected nil check without brokers")
	}
}
