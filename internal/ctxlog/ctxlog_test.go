package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromContext_MissingLoggerDiscards(t *testing.T) {
	t.Parallel()

	logger := FromContext(context.Background())
	require.NotNil(t, logger)
	logger.Info("nobody listens")
}

func TestWith_AddsAttributes(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	buf := &bytes.Buffer{}
	base := slog.New(slog.NewTextHandler(buf, nil))
	ctx := WithLogger(context.Background(), base)

	// --- Act ---
	ctx = With(ctx, "run.id", "abc")
	FromContext(ctx).Info("hello")

	// --- Assert ---
	require.Contains(t, buf.String(), "run.id=abc")
	require.Contains(t, buf.String(), "msg=hello")
}
