package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/models"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
)

// Seeds a small ACME dataset for local runs: an exact pair, a quantity
// variance that needs a supplementary order, and a near-miss style code.
func main() {
	config.ConnectDatabaseWithRetry()
	models.MigrateTable()

	ctx := utils.SetActorInContext(context.Background(), "seed-demo")
	db := config.GetDB()

	configs := []models.CustomerMatchConfig{
		{Customer: "ACME", AttributeName: "style_code", Weight: decimal.NewFromInt(3), ComparisonMethod: models.ComparisonMethodSimilarity},
		{Customer: "ACME", AttributeName: "color_description", Weight: decimal.NewFromInt(2), ComparisonMethod: models.ComparisonMethodExact},
		{Customer: "ACME", AttributeName: "delivery_method", Weight: decimal.NewFromInt(1), ComparisonMethod: models.ComparisonMethodExact},
	}
	for i := range configs {
		if _, err := models.UpsertMatchConfig(ctx, &configs[i]); err != nil {
			log.Fatalf("seed match config: %v", err)
		}
	}

	orderDate := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	shippedDate := time.Date(2025, 4, 10, 0, 0, 0, 0, time.UTC)

	orders := []models.Order{
		{Customer: "ACME", PoNumber: "1001", StyleCode: "X1", ColorDescription: "RED", DeliveryMethod: "SEA", Quantity: decimal.NewFromInt(100), OrderDate: orderDate, LifecycleFlag: models.LifecycleFlagActive},
		{Customer: "ACME", PoNumber: "1001", StyleCode: "X1", ColorDescription: "RED", DeliveryMethod: "SEA", Quantity: decimal.NewFromInt(660), OrderDate: orderDate.AddDate(0, 0, 5), LifecycleFlag: models.LifecycleFlagActive},
		{Customer: "ACME", PoNumber: "1002", StyleCode: "Z9", ColorDescription: "BLUE", DeliveryMethod: "AIR", Quantity: decimal.NewFromInt(40), OrderDate: orderDate, LifecycleFlag: models.LifecycleFlagActive},
	}
	shipments := []models.Shipment{
		{Customer: "ACME", PoNumber: "1001", StyleCode: "X1", ColorDescription: "RED", DeliveryMethod: "SEA", Quantity: decimal.NewFromInt(760), ShippedDate: shippedDate},
		{Customer: "ACME", PoNumber: "1002", StyleCode: "Z9A", ColorDescription: "BLUE", DeliveryMethod: "AIR", Quantity: decimal.NewFromInt(40), ShippedDate: shippedDate},
	}

	for i := range orders {
		if err := db.Create(&orders[i]).Error; err != nil {
			log.Fatalf("seed order: %v", err)
		}
	}
	for i := range shipments {
		if err := db.Create(&shipments[i]).Error; err != nil {
			log.Fatalf("seed shipment: %v", err)
		}
	}

	log.Printf("seeded %d orders, %d shipments for ACME", len(orders), len(shipments))
}
