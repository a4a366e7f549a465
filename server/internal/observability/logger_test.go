package observability

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextTravelsWithContext(t *testing.T) {
	reqCtx := NewRequestContext(slog.Default(), "local", "")
	require.NotEmpty(t, reqCtx.RequestID)

	ctx := WithRequestContext(context.Background(), reqCtx)
	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, reqCtx.RequestID, got.RequestID)

	_, ok = FromContext(context.Background())
	assert.False(t, ok)
}
