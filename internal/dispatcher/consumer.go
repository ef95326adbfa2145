package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/dripwire/dripwire-backend/pkg/idempotency"
	"github.com/dripwire/dripwire-backend/pkg/logger"
)

const domainEventConsumer = "sequence-dispatcher"

// Consumer drains the domain events subscription into the dispatcher.
type Consumer struct {
	service      Service
	subscription *pubsub.Subscriber
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds the domain event consumer.
func NewConsumer(service Service, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if service == nil {
		return nil, fmt.Errorf("dispatcher service required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("events subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		service:      service,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
	})

	var event DomainEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		// Malformed payloads never become valid; ack to drop them.
		c.logg.Error(logCtx, "failed to decode domain event", err)
		return processResult{ack: true}
	}
	if event.EventID == uuid.Nil {
		c.logg.Error(logCtx, "domain event missing event id", nil)
		return processResult{ack: true}
	}

	already, err := c.idempotency.CheckAndMarkProcessed(ctx, domainEventConsumer, event.EventID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{ack: true}
	}

	if err := c.service.HandleEvent(ctx, event); err != nil {
		c.logg.Error(logCtx, "event handling failed", err)
		_ = c.idempotency.Delete(ctx, domainEventConsumer, event.EventID)
		return processResult{nack: true}
	}
	return processResult{ack: true}
}
