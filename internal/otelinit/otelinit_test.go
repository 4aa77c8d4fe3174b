package otelinit

import (
	"context"
	"testing"
)

func TestInitMetricsNoExporter(t *testing.T) {
	ctx := context.Background()
	shutdown, m := InitMetrics(ctx, "test-service")
	m.RetryAttempts.Add(ctx, 1)
	m.CircuitOpenTotal.Add(ctx, 1)
	_ = shutdown(ctx) // no collector present in test env; shutdown must still be safe to call
}
