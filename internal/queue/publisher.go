package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/iliyamo/smart-parking/internal/model"
)

// Publisher turns admitted reservations into envelopes on the spot's
// routing key.
type Publisher struct {
	broker *Broker
}

// NewPublisher returns a publisher that sends through broker.
func NewPublisher(broker *Broker) *Publisher {
	if broker == nil {
		panic("nil broker passed to NewPublisher")
	}
	return &Publisher{broker: broker}
}

// PublishReservation publishes the reservation-created envelope for window w
// to spot_<spotID>.  Errors wrap ErrPublishFailure.
func (p *Publisher) PublishReservation(ctx context.Context, spotID string, w model.Window) error {
	body, err := json.Marshal(NewEnvelope(w))
	if err != nil {
		return fmt.Errorf("%w: marshal envelope: %v", ErrPublishFailure, err)
	}
	return p.broker.Publish(ctx, model.RoutingKey(spotID), body)
}
