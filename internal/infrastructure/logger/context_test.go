package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newBufferLogger() (*zap.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(encoder, zapcore.AddSync(&buf), zapcore.DebugLevel)
	return zap.New(core), &buf
}

func TestFromContext(t *testing.T) {
	t.Run("returns stored logger", func(t *testing.T) {
		base, _ := newBufferLogger()
		ctx := WithContext(context.Background(), base)
		assert.Same(t, base, FromContext(ctx))
	})

	t.Run("falls back to no-op", func(t *testing.T) {
		l := FromContext(context.Background())
		require.NotNil(t, l)
		assert.NotPanics(t, func() { l.Info("dropped") })
	})
}

func TestCorrelationSetters(t *testing.T) {
	tests := []struct {
		name  string
		set   func(context.Context, *zap.Logger, string) (context.Context, *zap.Logger)
		get   func(context.Context) string
		field string
	}{
		{"request id", WithRequestID, GetRequestID, "request_id"},
		{"store id", WithStoreID, GetStoreID, "store_id"},
		{"order id", WithOrderID, GetOrderID, "order_id"},
		{"subscription id", WithSubscriptionID, GetSubscriptionID, "subscription_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base, buf := newBufferLogger()
			ctx, enriched := tt.set(context.Background(), base, "value-1")

			assert.Equal(t, "value-1", tt.get(ctx))
			assert.Empty(t, tt.get(context.Background()))

			enriched.Info("hello")
			assert.Contains(t, buf.String(), `"`+tt.field+`":"value-1"`)

			buf.Reset()
			FromContext(ctx).Info("from context")
			assert.Contains(t, buf.String(), `"`+tt.field+`":"value-1"`)
		})
	}
}

func TestContextLogger_EnrichesWithContextFields(t *testing.T) {
	base, buf := newBufferLogger()

	ctx := context.Background()
	ctx = context.WithValue(ctx, RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, StoreIDKey, "store-1")
	ctx = context.WithValue(ctx, OrderIDKey, "order-1")
	ctx = WithContext(ctx, base)

	L(ctx).Info("Order closed", zap.String("state", "completed"))

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"store_id":"store-1"`)
	assert.Contains(t, out, `"order_id":"order-1"`)
	assert.Contains(t, out, `"state":"completed"`)
	assert.NotContains(t, out, "subscription_id")
	assert.NotContains(t, out, "trace_id")
}

func TestContextLogger_TraceFields(t *testing.T) {
	base, buf := newBufferLogger()
	provider := sdktrace.NewTracerProvider()
	ctx, span := provider.Tracer("test").Start(context.Background(), "billing.task")
	defer span.End()

	WithLogger(ctx, base).Warn("Charge declined")

	out := buf.String()
	assert.Contains(t, out, `"trace_id":"`+GetTraceID(ctx)+`"`)
	assert.Contains(t, out, `"span_id":"`+GetSpanID(ctx)+`"`)
	assert.Len(t, GetTraceID(ctx), 32)
	assert.Len(t, GetSpanID(ctx), 16)
}

func TestContextLogger_Levels(t *testing.T) {
	base, buf := newBufferLogger()
	cl := WithLogger(context.Background(), base).With(zap.String("component", "dunning"))

	cl.Debug("d")
	cl.Info("i")
	cl.Warn("w")
	cl.Error("e")
	cl.Zap().Info("z")

	out := buf.String()
	for _, level := range []string{"debug", "info", "warn", "error"} {
		assert.Contains(t, out, `"level":"`+level+`"`)
	}
	assert.Equal(t, 5, bytes.Count(buf.Bytes(), []byte(`"component":"dunning"`)))
}

func TestContextLogger_NilLogger(t *testing.T) {
	cl := &ContextLogger{ctx: context.Background()}
	assert.NotPanics(t, func() { cl.Info("test") })
}

func TestWithTraceContext_NoSpan(t *testing.T) {
	base, _ := newBufferLogger()
	assert.Same(t, base, WithTraceContext(context.Background(), base))
	assert.Empty(t, GetSpanID(context.Background()))
}
