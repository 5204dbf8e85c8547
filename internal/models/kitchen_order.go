package models

import "time"

// KitchenStatus - статус позиции на кухне и агрегированный статус тикета
type KitchenStatus string

const (
	KitchenStatusPending   KitchenStatus = "pending"
	KitchenStatusPreparing KitchenStatus = "preparing"
	KitchenStatusReady     KitchenStatus = "ready"
	KitchenStatusDelivered KitchenStatus = "delivered"
	KitchenStatusCancelled KitchenStatus = "cancelled"
)

func ParseKitchenStatus(s string) (KitchenStatus, bool) {
	switch st := KitchenStatus(s); st {
	case KitchenStatusPending, KitchenStatusPreparing, KitchenStatusReady,
		KitchenStatusDelivered, KitchenStatusCancelled:
		return st, true
	}
	return "", false
}

func (s KitchenStatus) IsTerminal() bool {
	return s == KitchenStatusDelivered || s == KitchenStatusCancelled
}

// CanTransition: pending → preparing → ready → delivered, cancelled из pending/preparing
func (s KitchenStatus) CanTransition(to KitchenStatus) bool {
	switch s {
	case KitchenStatusPending:
		return to == KitchenStatusPreparing || to == KitchenStatusCancelled
	case KitchenStatusPreparing:
		return to == KitchenStatusReady || to == KitchenStatusCancelled
	case KitchenStatusReady:
		return to == KitchenStatusDelivered
	}
	return false
}

// Rank - позиция в цепочке pending → delivered, -1 для cancelled
func (s KitchenStatus) Rank() int {
	return s.OrderStatus().Rank()
}

// Regresses: s -> to - откат тикета назад
func (s KitchenStatus) Regresses(to KitchenStatus) bool {
	return s.OrderStatus().Regresses(to.OrderStatus())
}

// OrderStatus переводит статус тикета в статус заказа зала
func (s KitchenStatus) OrderStatus() OrderStatus {
	return OrderStatus(s)
}

// Priority выставляется персоналом, от статуса не зависит
type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityRush   Priority = "rush"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(s); p {
	case PriorityNormal, PriorityRush, PriorityHigh:
		return p, true
	}
	return "", false
}

// KitchenOrderItem - позиция тикета. ID - порядковый номер внутри тикета
type KitchenOrderItem struct {
	ID             int           `json:"id"`
	MenuItemID     int64         `json:"menuItemId"`
	Name           string        `json:"name"`
	Quantity       int           `json:"quantity"`
	Status         KitchenStatus `json:"status"`
	CookingStation string        `json:"cookingStation"`
	AssignedChef   string        `json:"assignedChef,omitempty"`
	Modifications  []string      `json:"modifications"`
	AllergenAlert  bool          `json:"allergenAlert"`
	StartTime      *time.Time    `json:"startTime,omitempty"`
	CompletionTime *time.Time    `json:"completionTime,omitempty"`
}

// KitchenOrder - тикет кухни, слабая ссылка на Order через OrderID
type KitchenOrder struct {
	ID                    int64              `json:"id"`
	OrderID               int64              `json:"orderId"`
	TableNumber           int                `json:"tableNumber"`
	Items                 []KitchenOrderItem `json:"items"`
	Status                KitchenStatus      `json:"status"`
	Priority              Priority           `json:"priority"`
	Notes                 string             `json:"notes,omitempty"`
	EstimatedDeliveryTime time.Time          `json:"estimatedDeliveryTime"`
	CreatedAt             time.Time          `json:"createdAt"`
	UpdatedAt             time.Time          `json:"updatedAt"`
}

func (k KitchenOrder) Clone() KitchenOrder {
	c := k
	c.Items = make([]KitchenOrderItem, len(k.Items))
	for i, it := range k.Items {
		c.Items[i] = it.clone()
	}
	return c
}

func (it KitchenOrderItem) clone() KitchenOrderItem {
	c := it
	c.Modifications = append([]string(nil), it.Modifications...)
	if it.StartTime != nil {
		t := *it.StartTime
		c.StartTime = &t
	}
	if it.CompletionTime != nil {
		t := *it.CompletionTime
		c.CompletionTime = &t
	}
	return c
}

// IsActive - тикет еще не отдан и не отменен
func (k KitchenOrder) IsActive() bool {
	return !k.Status.IsTerminal()
}

// AggregateStatus выводит статус тикета из статусов позиций.
// Отмененные позиции не учитываются; если отменено все - тикет cancelled.
func AggregateStatus(items []KitchenOrderItem) KitchenStatus {
	active, done, preparing := 0, 0, false
	for _, it := range items {
		switch it.Status {
		case KitchenStatusCancelled:
			continue
		case KitchenStatusReady, KitchenStatusDelivered:
			done++
		case KitchenStatusPreparing:
			preparing = true
		}
		active++
	}
	switch {
	case len(items) > 0 && active == 0:
		return KitchenStatusCancelled
	case active > 0 && done == active:
		return KitchenStatusReady
	case preparing:
		return KitchenStatusPreparing
	}
	return KitchenStatusPending
}
