package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "spine", config.ServiceName)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.False(t, config.Insecure)
}

func TestNewProviderDisabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p)

	// A disabled provider records nothing but must not panic.
	ctx := context.Background()
	p.RecordSubmission(ctx)
	p.RecordReplayRejection(ctx)
	p.RecordDecision(ctx, "APPROVED")
	p.RecordProofAppended(ctx)
	p.RecordError(ctx, errors.New("boom"))
	p.RecordDuration(ctx, time.Millisecond)

	spanCtx, done := p.TrackSubmission(ctx, attribute.String("event_hash", "abc"))
	require.NotNil(t, spanCtx)
	done(nil)
	done(errors.New("late failure"))

	require.NoError(t, p.Shutdown(context.Background()))
}

func TestNewProviderEnabled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	config := DefaultConfig()
	config.Insecure = true

	p, err := New(ctx, config)
	// The exporter connects lazily, so construction succeeds without a
	// collector listening.
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())

	p.RecordSubmission(ctx, attribute.String("event_hash", "abc"))
	p.RecordDecision(ctx, "REJECTED")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer shutdownCancel()
	_ = p.Shutdown(shutdownCtx)
}
