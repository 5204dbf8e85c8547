package models

import (
	"log"

	"gorm.io/gorm"
)

// AutoMigrate создает/обновляет таблицы сервиса
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&MenuItem{}); err != nil {
		log.Printf("❌ AutoMigrate для MenuItem failed: %v", err)
		return err
	}
	if err := db.AutoMigrate(&OrderRecord{}, &KitchenOrderRecord{}); err != nil {
		log.Printf("❌ AutoMigrate для orders/kitchen_orders failed: %v", err)
		return err
	}
	if err := db.AutoMigrate(&DailyReportRecord{}); err != nil {
		log.Printf("❌ AutoMigrate для DailyReportRecord failed: %v", err)
		return err
	}
	log.Println("✅ Tables migrated successfully")
	return nil
}
