package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus - статус заказа в зале
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusPreparing OrderStatus = "preparing"
	OrderStatusReady     OrderStatus = "ready"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Порядок прямого движения заказа
var orderStatusRank = map[OrderStatus]int{
	OrderStatusPending:   0,
	OrderStatusPreparing: 1,
	OrderStatusReady:     2,
	OrderStatusDelivered: 3,
}

// ParseOrderStatus проверяет принадлежность значения перечислению
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	if _, ok := orderStatusRank[st]; ok || st == OrderStatusCancelled {
		return st, true
	}
	return "", false
}

// IsTerminal - delivered и cancelled не меняются
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// Rank возвращает позицию в цепочке pending → delivered, -1 для cancelled
func (s OrderStatus) Rank() int {
	if r, ok := orderStatusRank[s]; ok {
		return r
	}
	return -1
}

// Next возвращает следующий статус в цепочке
func (s OrderStatus) Next() (OrderStatus, bool) {
	switch s {
	case OrderStatusPending:
		return OrderStatusPreparing, true
	case OrderStatusPreparing:
		return OrderStatusReady, true
	case OrderStatusReady:
		return OrderStatusDelivered, true
	}
	return "", false
}

// CanTransition: вперед строго на один шаг, отмена только из pending/preparing
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if to == OrderStatusCancelled {
		return s == OrderStatusPending || s == OrderStatusPreparing
	}
	next, ok := s.Next()
	return ok && next == to
}

// Regresses: переход s -> to откатил бы заказ назад (или вывел из терминального статуса)
func (s OrderStatus) Regresses(to OrderStatus) bool {
	if s == to {
		return false
	}
	if s.IsTerminal() {
		return true
	}
	return to != OrderStatusCancelled && to.Rank() < s.Rank()
}

// PaymentStatus - статус оплаты заказа
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "unpaid"
	PaymentStatusPaid   PaymentStatus = "paid"
)

// OrderItem - позиция заказа. ID = id позиции меню
type OrderItem struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Order - заказ в зале
type Order struct {
	ID                  int64         `json:"id"`
	TableNumber         int           `json:"tableNumber"`
	ServerName          string        `json:"serverName"`
	GuestCount          int           `json:"guestCount"`
	Items               []OrderItem   `json:"items"`
	Status              OrderStatus   `json:"status"`
	Total               float64       `json:"total"`
	SpecialInstructions string        `json:"specialInstructions,omitempty"`
	EstimatedPrepTime   int           `json:"estimatedPrepTime"` // минуты
	PaymentStatus       PaymentStatus `json:"paymentStatus"`
	PaymentMethod       string        `json:"paymentMethod,omitempty"`
	Tip                 float64       `json:"tip"`
	PaidAt              *time.Time    `json:"paidAt,omitempty"`
	Timestamp           time.Time     `json:"timestamp"`
	UpdatedAt           time.Time     `json:"updatedAt"`
}

// Clone возвращает глубокую копию, чтобы снаружи не меняли внутреннее состояние
func (o Order) Clone() Order {
	c := o
	c.Items = append([]OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return c
}

// ComputeTotal считает сумму price*quantity в decimal, чтобы не копить ошибку float
func ComputeTotal(items []OrderItem) float64 {
	total := decimal.Zero
	for _, it := range items {
		line := decimal.NewFromFloat(it.Price).Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(line)
	}
	return total.Round(2).InexactFloat64()
}
