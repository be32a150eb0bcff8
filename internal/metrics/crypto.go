package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jmcleod/healthseal/crypto"
)

// CryptoMetrics counts cipher operations by operation and outcome. It
// implements crypto.Recorder.
type CryptoMetrics struct {
	operationCounter metric.Int64Counter
}

var _ crypto.Recorder = (*CryptoMetrics)(nil)

// NewCryptoMetrics registers the operation counter on meterProvider.
func NewCryptoMetrics(meterProvider metric.MeterProvider, namespace string) (*CryptoMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_crypto_operations_total", namespace),
		metric.WithDescription("Total number of field encryption and decryption operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	return &CryptoMetrics{operationCounter: operationCounter}, nil
}

func (c *CryptoMetrics) RecordOperation(ctx context.Context, operation, outcome string) {
	c.operationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		),
	)
}

// NoOp discards every event.
type NoOp struct{}

func (NoOp) RecordOperation(context.Context, string, string) {}
