package models

import (
	"log"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Order{}, &Shipment{},
		&AttributeMapping{},
		&CustomerMatchConfig{}, &CustomerMatchSettings{},
		&ReconciliationJob{}, &ReconciliationResult{}, &MatchAttributeScore{},
		&HitlQueueItem{},
		&AuditLogEntry{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
