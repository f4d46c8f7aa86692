package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Pinak57/localchef-server/models"
)

// MemoryOrderRepository keeps orders in process memory. The mutex stands in
// for the document store's per-record atomicity and is never held across calls.
type MemoryOrderRepository struct {
	mu     sync.Mutex
	orders map[string]models.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[string]models.Order)}
}

func (r *MemoryOrderRepository) Create(_ context.Context, order *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[order.ID] = *order
	return nil
}

func (r *MemoryOrderRepository) FindByID(_ context.Context, id string) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &o, nil
}

func (r *MemoryOrderRepository) FindByCustomerEmail(_ context.Context, email string) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool { return o.CustomerEmail == email }), nil
}

func (r *MemoryOrderRepository) FindByChefID(_ context.Context, chefID string) ([]models.Order, error) {
	return r.filter(func(o models.Order) bool { return o.ChefID == chefID }), nil
}

func (r *MemoryOrderRepository) FindAll(_ context.Context) ([]models.Order, error) {
	return r.filter(func(models.Order) bool { return true }), nil
}

func (r *MemoryOrderRepository) filter(keep func(models.Order) bool) []models.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Order, 0)
	for _, o := range r.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderTime.After(out[j].OrderTime) })
	return out
}

func (r *MemoryOrderRepository) Transition(_ context.Context, t models.OrderTransition) (*models.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[t.OrderID]
	if !ok {
		return nil, ErrNotFound
	}
	if o.OrderStatus != models.OrderStatusPending || !o.OwnedBy(t.Owner) {
		return nil, ErrConditionFailed
	}
	o.Apply(t)
	r.orders[o.ID] = o
	return &o, nil
}

func (r *MemoryOrderRepository) MarkPaymentPending(_ context.Context, orderID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return false, ErrNotFound
	}
	if o.PaymentStatus != models.PaymentStatusUnpaid {
		return false, nil
	}
	o.PaymentStatus = models.PaymentStatusPending
	r.orders[orderID] = o
	return true, nil
}

func (r *MemoryOrderRepository) Settle(_ context.Context, orderID string, paidAt time.Time) (*models.Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderID]
	if !ok {
		return nil, false, ErrNotFound
	}
	if o.PaymentStatus == models.PaymentStatusPaid {
		return &o, false, nil
	}
	o.Settle(paidAt)
	r.orders[orderID] = o
	return &o, true, nil
}

// MemoryPaymentRepository keeps payments in process memory.
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]models.Payment // keyed by gateway session id
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]models.Payment)}
}

func (r *MemoryPaymentRepository) Create(_ context.Context, p *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.payments[p.GatewaySessionID]; exists {
		return ErrDuplicateSession
	}
	r.payments[p.GatewaySessionID] = *p
	return nil
}

func (r *MemoryPaymentRepository) FindBySessionID(_ context.Context, sessionID string) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *MemoryPaymentRepository) FindByOrderID(_ context.Context, orderID string) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool { return p.OrderID == orderID }), nil
}

func (r *MemoryPaymentRepository) FindByCustomerEmail(_ context.Context, email string) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool { return p.CustomerEmail == email }), nil
}

func (r *MemoryPaymentRepository) FindAll(_ context.Context) ([]models.Payment, error) {
	return r.filter(func(models.Payment) bool { return true }), nil
}

func (r *MemoryPaymentRepository) FindPaid(_ context.Context) ([]models.Payment, error) {
	return r.filter(func(p models.Payment) bool { return p.Status == models.PaymentRecordPaid }), nil
}

func (r *MemoryPaymentRepository) filter(keep func(models.Payment) bool) []models.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Payment, 0)
	for _, p := range r.payments {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *MemoryPaymentRepository) MarkPaid(_ context.Context, sessionID string, paidAt time.Time) (*models.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if p.Status != models.PaymentRecordPending {
		return nil, ErrConditionFailed
	}
	for _, sibling := range r.payments {
		if sibling.OrderID == p.OrderID && sibling.Status == models.PaymentRecordPaid {
			return nil, ErrAlreadySettled
		}
	}
	p.Status = models.PaymentRecordPaid
	p.PaidAt = &paidAt
	r.payments[sessionID] = p
	return &p, nil
}
