package webhook

import "encoding/json"

// OrderNotification is the body delivered to every endpoint.
// Secret is always serialized, even when empty.
type OrderNotification struct {
	OrderID int64  `json:"order_id"`
	Secret  string `json:"secret"`
}

// NewOrderNotification builds the notification for an order
func NewOrderNotification(orderID int64, secret string) OrderNotification {
	return OrderNotification{OrderID: orderID, Secret: secret}
}

// Encode returns the JSON wire form
func (n OrderNotification) Encode() ([]byte, error) {
	return json.Marshal(n)
}
