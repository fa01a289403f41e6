package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := WithCorrelationID(context.Background(), "req-42")
	require.Equal(t, "req-42", GetCorrelationID(ctx))
}

func TestGetCorrelationIDMissing(t *testing.T) {
	require.Equal(t, "", GetCorrelationID(context.Background()))
}

func TestEnsureCorrelationID(t *testing.T) {
	ctx, id := EnsureCorrelationID(context.Background())
	require.NotEmpty(t, id)
	require.Equal(t, id, GetCorrelationID(ctx))

	// An existing ID is preserved, not replaced.
	ctx2, id2 := EnsureCorrelationID(ctx)
	require.Equal(t, id, id2)
	require.Equal(t, ctx, ctx2)
}
