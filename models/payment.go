package models

import "time"

type PaymentRecordStatus string

const (
	PaymentRecordPending PaymentRecordStatus = "pending"
	PaymentRecordPaid    PaymentRecordStatus = "paid"
)

// Payment is one checkout attempt against the gateway for an order. At most
// one Payment per order reaches paid.
type Payment struct {
	ID               string              `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(36)" dynamodbav:"id"`
	OrderID          string              `json:"orderId" bson:"orderId" gorm:"type:varchar(36);not null;index" dynamodbav:"orderId"`
	CustomerEmail    string              `json:"customerEmail" bson:"customerEmail" gorm:"type:varchar(255);not null;index" dynamodbav:"customerEmail"`
	Amount           float64             `json:"amount" bson:"amount" gorm:"not null" dynamodbav:"amount"`
	Currency         string              `json:"currency" bson:"currency" gorm:"type:varchar(10);not null" dynamodbav:"currency"`
	GatewaySessionID string              `json:"gatewaySessionId" bson:"gatewaySessionId" gorm:"type:varchar(255);not null;uniqueIndex" dynamodbav:"gatewaySessionId"`
	Status           PaymentRecordStatus `json:"status" bson:"status" gorm:"type:varchar(20);not null" dynamodbav:"status"`
	CreatedAt        time.Time           `json:"createdAt" bson:"createdAt" gorm:"not null" dynamodbav:"createdAt"`
	PaidAt           *time.Time          `json:"paidAt,omitempty" bson:"paidAt,omitempty" dynamodbav:"paidAt,omitempty"`
}

// CheckoutSession is the hosted session returned by the gateway.
type CheckoutSession struct {
	SessionID   string `json:"sessionId"`
	RedirectURL string `json:"redirectUrl"`
}
