package models

import "time"

// OrderEvent is published to SNS after a fulfillment change.
type OrderEvent struct {
	Type          string    `json:"type"` // order_placed | order_accepted | order_rejected | order_cancelled
	OrderID       string    `json:"order_id"`
	CustomerEmail string    `json:"customer_email"`
	ChefID        string    `json:"chef_id"`
	OrderStatus   string    `json:"order_status"`
	PaymentStatus string    `json:"payment_status"`
	Timestamp     time.Time `json:"timestamp"`
}

// PaymentEvent is published to SNS after settlement.
type PaymentEvent struct {
	Type      string    `json:"type"` // payment_succeeded
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	SessionID string    `json:"session_id"`
	Amount    float64   `json:"amount"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

// SettlementRetry is the SQS message replaying the order half of a settlement.
type SettlementRetry struct {
	OrderID   string    `json:"order_id"`
	PaymentID string    `json:"payment_id"`
	SessionID string    `json:"session_id"`
	PaidAt    time.Time `json:"paid_at"`
}
