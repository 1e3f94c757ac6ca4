package source

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quantfabric/omsflow/internal/model"
)

// parseOrderID parses the string form of an order identifier.
func parseOrderID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid order id %q: %w", s, err)
	}
	return id, nil
}

// EncodeOrder serializes an order to its JSON wire form, shared by the
// stream-backed sources.
func EncodeOrder(order *model.Order) ([]byte, error) {
	data, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to encode order %s: %w", order.ID(), err)
	}
	return data, nil
}

// DecodeOrder deserializes an order from its JSON wire form, filling in
// the fields a minimal producer may omit.
func DecodeOrder(data []byte) (*model.Order, error) {
	var order model.Order
	if err := json.Unmarshal(data, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order payload: %w", err)
	}
	if order.OrderID == uuid.Nil {
		order.OrderID = uuid.New()
	}
	if order.Status == "" {
		order.Status = model.OrderStatusPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = order.CreatedAt
	}
	if order.Metadata == nil {
		order.Metadata = make(map[string]interface{})
	}
	return &order, nil
}
