package tracing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestOTelSpanLifecycle(t *testing.T) {
	tr := NewOTelWithTracer(noop.NewTracerProvider().Tracer("test"))

	ctx, span := tr.Start(context.Background(), "kvstore.get", String("backend", "redis"), Int("keys", 1))
	assert.NotNil(t, ctx)
	span.SetAttributes(Bool("fallback", true))
	span.End(errors.New("connection refused"))
}

func TestToOTelSkipsUnsupportedValues(t *testing.T) {
	attrs := toOTel([]Attribute{
		String("a", "x"),
		{Key: "b", Value: struct{}{}},
		{Key: "c", Value: int64(3)},
	})
	assert.Len(t, attrs, 2)
	assert.Nil(t, toOTel(nil))
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	got, span := Noop{}.Start(ctx, "x")
	assert.Equal(t, ctx, got)
	span.End(nil)
}
