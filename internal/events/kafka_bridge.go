package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/payflowhq/escrow_backend/internal/core/domain"
)

// BrokerProducer is the slice of the kafka producer the bridge needs.
type BrokerProducer interface {
	Topic(routingKey string) string
	Publish(ctx context.Context, topic string, key, payload []byte) error
}

// BrokerPayload is the structured record published to the external broker.
type BrokerPayload struct {
	EventType      string `json:"event_type"`
	Timestamp      string `json:"timestamp"` // ISO-8601
	TransactionID  string `json:"transaction_id"`
	TransactionUID string `json:"transaction_uid"`
	BuyerID        string `json:"buyer_id"`
	SellerID       string `json:"seller_id"`
	ListingID      string `json:"listing_id,omitempty"`
	ItemID         string `json:"item_id,omitempty"`
	Amount         string `json:"amount"`
	Currency       string `json:"currency"`
	FeeAmount      string `json:"fee_amount"`
	FeePercentage  string `json:"fee_percentage"`
	Status         string `json:"status"`
	SaleID         string `json:"sale_id,omitempty"`
}

// NewKafkaBridge returns a global subscriber that maps internal events to
// external broker messages. The routing key is the event type itself.
// Produce failures are reported to the publisher, which logs and swallows
// them: event delivery never blocks or rolls back a financial operation.
func NewKafkaBridge(producer BrokerProducer) Handler {
	return func(ctx context.Context, event domain.Event) error {
		payload := payloadFromEvent(event)
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("kafka bridge: failed to marshal event payload: %w", err)
		}
		topic := producer.Topic(string(event.Type))
		return producer.Publish(ctx, topic, []byte(payload.TransactionID), data)
	}
}

func payloadFromEvent(event domain.Event) BrokerPayload {
	p := BrokerPayload{
		EventType: string(event.Type),
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
	}
	p.TransactionID = stringField(event.Payload, "transaction_id")
	p.TransactionUID = stringField(event.Payload, "transaction_uid")
	p.BuyerID = stringField(event.Payload, "buyer_id")
	p.SellerID = stringField(event.Payload, "seller_id")
	p.ListingID = stringField(event.Payload, "listing_id")
	p.ItemID = stringField(event.Payload, "item_id")
	p.Amount = stringField(event.Payload, "amount")
	p.Currency = stringField(event.Payload, "currency")
	p.FeeAmount = stringField(event.Payload, "fee_amount")
	p.FeePercentage = stringField(event.Payload, "fee_percentage")
	p.Status = stringField(event.Payload, "status")
	p.SaleID = stringField(event.Payload, "sale_id")
	return p
}

func stringField(payload map[string]interface{}, key string) string {
	if payload == nil {
		return ""
	}
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprintf("%v", v)
	}
	return ""
}
