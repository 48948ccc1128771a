package otelx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestConfigFromEnvClampsRatio(t *testing.T) {
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	assert.Equal(t, 0.25, ConfigFromEnv("svc").SampleRatio)

	t.Setenv("OTEL_SAMPLING_RATIO", "7")
	assert.Equal(t, 1.0, ConfigFromEnv("svc").SampleRatio)
}

func TestDisabledSetupStillPropagates(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "svc"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
	assert.ElementsMatch(t, []string{"traceparent", "tracestate", "baggage"}, otel.GetTextMapPropagator().Fields())
}
