package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// StringList - JSON массив строк в text колонке
type StringList []string

// Value реализует driver.Valuer для записи в БД
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	return string(b), err
}

// Scan реализует sql.Scanner для чтения из БД
func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("failed to unmarshal StringList value")
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

// MenuItem - позиция меню, источник цены, времени готовки и станции
type MenuItem struct {
	ID              int64      `gorm:"primaryKey" json:"id"`
	Name            string     `gorm:"not null" json:"name"`
	Category        string     `gorm:"index" json:"category"`
	Price           float64    `gorm:"type:numeric(10,2);not null" json:"price"`
	PreparationTime int        `gorm:"not null;default:10" json:"preparationTime"` // минуты на единицу
	Station         string     `json:"station"`
	Allergens       StringList `gorm:"type:text" json:"allergens"`
	IsAvailable     bool       `gorm:"default:true" json:"isAvailable"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (MenuItem) TableName() string {
	return "menu_items"
}
