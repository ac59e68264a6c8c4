package db

import (
	"fmt"

	"github.com/cardvault/voucher-service/internal/models"
	"gorm.io/gorm"
)

// Migrate creates or updates the voucher schema.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	return conn.AutoMigrate(
		&models.Admin{},
		&models.Batch{},
		&models.Bundle{},
		&models.Card{},
		&models.AuditLog{},
	)
}
