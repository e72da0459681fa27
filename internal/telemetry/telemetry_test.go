package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetup_WithoutEndpoint(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Setup(ctx, Config{ServiceName: "lendnexus-test"})
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(ctx, "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	require.NoError(t, shutdown(ctx))
}

func TestSetup_WithEndpoint(t *testing.T) {
	ctx := context.Background()
	shutdown, err := Setup(ctx, Config{Endpoint: "localhost:4318", ServiceName: "lendnexus-test", Insecure: true})
	require.NoError(t, err)
	assert.NotNil(t, shutdown)
}
