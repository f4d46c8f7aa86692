package models

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusAccepted  OrderStatus = "accepted"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further fulfillment transition is allowed.
func (s OrderStatus) Terminal() bool {
	return s != OrderStatusPending
}

type PaymentStatus string

const (
	PaymentStatusUnpaid  PaymentStatus = "unpaid"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Order is a customer's purchase of one meal from one chef. orderStatus and
// paymentStatus are independent axes.
type Order struct {
	ID            string        `json:"id" bson:"_id" gorm:"primaryKey;type:varchar(36)" dynamodbav:"id"`
	MealID        string        `json:"mealId" bson:"mealId" gorm:"type:varchar(64);not null" dynamodbav:"mealId"`
	MealName      string        `json:"mealName" bson:"mealName" gorm:"type:varchar(255);not null" dynamodbav:"mealName"`
	Price         float64       `json:"price" bson:"price" gorm:"not null" dynamodbav:"price"`
	CustomerEmail string        `json:"customerEmail" bson:"customerEmail" gorm:"type:varchar(255);not null;index" dynamodbav:"customerEmail"`
	ChefID        string        `json:"chefId" bson:"chefId" gorm:"type:varchar(64);not null;index" dynamodbav:"chefId"`
	ChefName      string        `json:"chefName" bson:"chefName" gorm:"type:varchar(255)" dynamodbav:"chefName"`
	OrderStatus   OrderStatus   `json:"orderStatus" bson:"orderStatus" gorm:"type:varchar(20);not null;default:'pending'" dynamodbav:"orderStatus"`
	PaymentStatus PaymentStatus `json:"paymentStatus" bson:"paymentStatus" gorm:"type:varchar(20);not null;default:'unpaid'" dynamodbav:"paymentStatus"`
	OrderTime     time.Time     `json:"orderTime" bson:"orderTime" gorm:"not null" dynamodbav:"orderTime"`
	AcceptedAt    *time.Time    `json:"acceptedAt,omitempty" bson:"acceptedAt,omitempty" dynamodbav:"acceptedAt,omitempty"`
	RejectedAt    *time.Time    `json:"rejectedAt,omitempty" bson:"rejectedAt,omitempty" dynamodbav:"rejectedAt,omitempty"`
	CancelledAt   *time.Time    `json:"cancelledAt,omitempty" bson:"cancelledAt,omitempty" dynamodbav:"cancelledAt,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty" bson:"paidAt,omitempty" dynamodbav:"paidAt,omitempty"`
}

// OrderTransition describes a conditional fulfillment change: the order must
// still be pending and owned by Owner for the update to apply.
type OrderTransition struct {
	OrderID string
	Owner   Owner
	To      OrderStatus
	At      time.Time
}

// OwnerField names which order field an actor must match.
type OwnerField string

const (
	OwnerCustomer OwnerField = "customerEmail"
	OwnerChef     OwnerField = "chefId"
)

type Owner struct {
	Field OwnerField
	Value string
}

// OwnedBy reports whether the owner matches the order.
func (o *Order) OwnedBy(owner Owner) bool {
	switch owner.Field {
	case OwnerCustomer:
		return o.CustomerEmail == owner.Value
	case OwnerChef:
		return o.ChefID == owner.Value
	}
	return false
}

// TimestampField returns the field name stamped when entering a terminal status.
func (s OrderStatus) TimestampField() string {
	switch s {
	case OrderStatusAccepted:
		return "acceptedAt"
	case OrderStatusRejected:
		return "rejectedAt"
	case OrderStatusCancelled:
		return "cancelledAt"
	}
	return ""
}

// Apply mutates the in-memory order to reflect a transition.
func (o *Order) Apply(t OrderTransition) {
	at := t.At
	o.OrderStatus = t.To
	switch t.To {
	case OrderStatusAccepted:
		o.AcceptedAt = &at
	case OrderStatusRejected:
		o.RejectedAt = &at
	case OrderStatusCancelled:
		o.CancelledAt = &at
	}
}

// Settle marks the order paid and auto-accepts it if still pending.
func (o *Order) Settle(at time.Time) {
	o.PaymentStatus = PaymentStatusPaid
	o.PaidAt = &at
	if o.OrderStatus == OrderStatusPending {
		o.OrderStatus = OrderStatusAccepted
		o.AcceptedAt = &at
	}
}

// Payable reports whether a new checkout may be opened for the order.
func (o *Order) Payable() bool {
	if o.PaymentStatus == PaymentStatusPaid {
		return false
	}
	return o.OrderStatus == OrderStatusPending || o.OrderStatus == OrderStatusAccepted
}
