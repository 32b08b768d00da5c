// Package seed fills an empty development database with a small catalog so
// the API is exercisable right after first boot. Production environments
// never call it.
package seed

import (
	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	customerdomain "github.com/arandulabs/kuatia/internal/customer/domain"
	productdomain "github.com/arandulabs/kuatia/internal/product/domain"
)

// EnsureDemoCatalog inserts sample products and a walk-in customer when the
// catalog is empty. Running it twice is a no-op.
func EnsureDemoCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&productdomain.Product{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	node, err := snowflake.NewNode(9)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		products := []productdomain.Product{
			{ID: node.Generate(), Code: "CEM-50", Description: "Cemento Portland 50kg", UnitPrice: decimal.NewFromInt(55000), TaxRate: 10},
			{ID: node.Generate(), Code: "ARE-M3", Description: "Arena lavada m3", UnitPrice: decimal.NewFromInt(180000), TaxRate: 5},
			{ID: node.Generate(), Code: "LAD-1K", Description: "Ladrillo comun x1000", UnitPrice: decimal.NewFromInt(950000), TaxRate: 10},
		}
		if err := tx.Create(&products).Error; err != nil {
			return err
		}

		customer := customerdomain.Customer{
			ID:      node.Generate(),
			Name:    "Consumidor Final",
			Address: "Asuncion",
			City:    "Asuncion",
		}
		return tx.Create(&customer).Error
	})
}
