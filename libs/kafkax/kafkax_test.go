package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestMetaOfFallsBackToPositionAndTopic(t *testing.T) {
	msg := kafka.Message{Topic: "appointments.row.changed.v1", Key: []byte("appt-1"), Partition: 2, Offset: 17}
	assert.Equal(t, EventMeta{EventID: "appointments.row.changed.v1/2/17", EventType: "appointments.row.changed.v1"}, MetaOf(msg))

	msg.Headers = []kafka.Header{{Key: HeaderEventID, Value: []byte("e1")}, {Key: HeaderEventType, Value: []byte("appointment.updated")}}
	assert.Equal(t, EventMeta{EventID: "e1", EventType: "appointment.updated"}, MetaOf(msg))
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1, 2, 3},
		SpanID:     trace.SpanID{4, 5, 6},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: HeaderEventID, Value: []byte("e1")}})
	assert.Len(t, headers, 2)

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	assert.Equal(t, sc.TraceID(), got.TraceID())
}

func TestSplitBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitBrokers(" a:9092, ,b:9092 "))
}
