package models

import "time"

// AlertKind - правило, породившее алерт
type AlertKind string

const (
	AlertKindDelayed   AlertKind = "delayed"
	AlertKindNearDelay AlertKind = "near_delay"
	AlertKindRush      AlertKind = "rush"
)

// AlertType - уровень важности для UI
type AlertType string

const (
	AlertTypeWarning AlertType = "warning"
	AlertTypeError   AlertType = "error"
	AlertTypeInfo    AlertType = "info"
	AlertTypeSuccess AlertType = "success"
)

// Alert не хранится в БД, живет только в истории движка
type Alert struct {
	ID          string    `json:"id"`
	Kind        AlertKind `json:"kind"`
	Type        AlertType `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	TicketID    int64     `json:"ticketId"`
	OrderID     int64     `json:"orderId"`
	TableNumber int       `json:"tableNumber"`
	CreatedAt   time.Time `json:"createdAt"`
	Read        bool      `json:"read"`
}
