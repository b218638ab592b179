package escrow

import (
	"context"
	"time"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-escrow/pkg/metrics"
)

const (
	metricsStructName = "escrow.coordinator"

	initializedEventName = "EscrowInitialized"
	exchangedEventName   = "EscrowExchanged"
	failureEventName     = "EscrowFailure"

	initializeDurationMetricName = "Escrow/InitializeDuration"
	exchangeDurationMetricName   = "Escrow/ExchangeDuration"
)

func recordInitializedEvent(ctx context.Context, handle *Handle, elapsed time.Duration) {
	metrics.RecordEvent(ctx, initializedEventName, map[string]interface{}{
		"escrow":      base58.Encode(handle.Escrow),
		"initializer": base58.Encode(handle.Initializer),
		"receiver":    base58.Encode(handle.Receiver),
		"amount":      handle.ExpectedAmount,
		"signature":   handle.InitializeSignature.String(),
	})
	metrics.RecordDuration(ctx, initializeDurationMetricName, elapsed)
}

func recordExchangedEvent(ctx context.Context, handle *Handle, amount uint64, elapsed time.Duration) {
	metrics.RecordEvent(ctx, exchangedEventName, map[string]interface{}{
		"escrow": base58.Encode(handle.Escrow),
		"amount": amount,
	})
	metrics.RecordDuration(ctx, exchangeDurationMetricName, elapsed)
}

func recordFailureEvent(ctx context.Context, handle *Handle, stage State, err error) {
	metrics.RecordEvent(ctx, failureEventName, map[string]interface{}{
		"escrow": base58.Encode(handle.Escrow),
		"stage":  stage.String(),
		"error":  err.Error(),
	})
}
