package models

import "time"

// Имена таблиц, с которыми работает шлюз хранилища
const (
	TableOrders        = "orders"
	TableKitchenOrders = "kitchen_orders"
)

// OrderRecord - схема таблицы orders. ID назначает сервис заказов (max+1)
type OrderRecord struct {
	ID                  int64      `gorm:"primaryKey;autoIncrement:false"`
	TableNumber         int        `gorm:"not null;default:0"`
	ServerName          string     `gorm:"type:varchar(100)"`
	GuestCount          int        `gorm:"not null;default:1"`
	Items               string     `gorm:"type:text;not null;default:'[]'"` // JSON массив позиций
	Status              string     `gorm:"type:varchar(20);index;not null;default:'pending'"`
	Total               float64    `gorm:"type:numeric(10,2);not null;default:0"`
	SpecialInstructions string     `gorm:"type:text"`
	EstimatedPrepTime   int        `gorm:"not null;default:0"`
	PaymentStatus       string     `gorm:"type:varchar(20);not null;default:'unpaid'"`
	PaymentMethod       string     `gorm:"type:varchar(30)"`
	Tip                 float64    `gorm:"type:numeric(10,2);not null;default:0"`
	PaidAt              *time.Time
	Timestamp           time.Time `gorm:"column:timestamp;not null"`
	UpdatedAt           time.Time `gorm:"not null"`
}

func (OrderRecord) TableName() string {
	return TableOrders
}

// KitchenOrderRecord - схема таблицы kitchen_orders, один тикет на заказ
type KitchenOrderRecord struct {
	ID                    int64     `gorm:"primaryKey"`
	OrderID               int64     `gorm:"uniqueIndex;not null"`
	TableNumber           int       `gorm:"not null;default:0"`
	Items                 string    `gorm:"type:text;not null;default:'[]'"`
	Status                string    `gorm:"type:varchar(20);index;not null;default:'pending'"`
	Priority              string    `gorm:"type:varchar(20);not null;default:'normal'"`
	Notes                 string    `gorm:"type:text"`
	EstimatedDeliveryTime time.Time `gorm:"not null"`
	CreatedAt             time.Time `gorm:"not null"`
	UpdatedAt             time.Time `gorm:"not null"`
}

func (KitchenOrderRecord) TableName() string {
	return TableKitchenOrders
}
