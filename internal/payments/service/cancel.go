package service

import (
	"context"

	"masjid/internal/payments/gateway"
	"masjid/pkg/logger"
)

// IntentCanceler cancels the intent behind a released claim. A declined or
// abandoned intent stays payable at the processor until it is canceled.
type IntentCanceler struct {
	gateway gateway.Gateway
	log     *logger.Logger
}

func NewIntentCanceler(gw gateway.Gateway, log *logger.Logger) *IntentCanceler {
	return &IntentCanceler{gateway: gw, log: log}
}

// ClaimExpired is called by the ledger for every stale claim it releases.
func (c *IntentCanceler) ClaimExpired(ctx context.Context, dateID, intentID string) {
	c.Cancel(ctx, dateID, intentID, "claim expired")
}

// Cancel logs failures only; the sweep or the payment's own outcome will
// surface an intent that stayed payable.
func (c *IntentCanceler) Cancel(ctx context.Context, dateID, intentID, reason string) {
	if err := c.gateway.CancelIntent(ctx, intentID); err != nil {
		c.log.Error("Failed to cancel payment intent for released claim",
			"date_id", dateID,
			"intent_id", intentID,
			"reason", reason,
			"error", err,
		)
		return
	}
	c.log.Info("Payment intent canceled for released claim", "date_id", dateID, "intent_id", intentID, "reason", reason)
}
