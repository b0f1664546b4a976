package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/matching"
	"bitbucket.org/mmdatafocus/reconcile_backend/models"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
)

// One-shot job trigger for operators: runs a reconciliation job in-process
// and prints the ledger row when it finishes.
func main() {
	customer := flag.String("customer", "", "customer scope (required)")
	po := flag.String("po", "", "optional PO number scope")
	force := flag.Bool("force", false, "re-match shipments that already have matched results")
	flag.Parse()

	if *customer == "" {
		log.Fatal("usage: run-reconciliation -customer <name> [-po <number>] [-force]")
	}

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := utils.SetActorInContext(context.Background(), "run-reconciliation")
	job, err := models.CreateJob(ctx, *customer, *po, *force)
	if err != nil {
		log.Fatalf("create job: %v", err)
	}

	if err := matching.NewEngine().RunJob(ctx, job.ID); err != nil {
		log.Printf("job %d failed: %v", job.ID, err)
	}

	final, err := models.GetJob(ctx, job.ID)
	if err != nil {
		log.Fatalf("reload job: %v", err)
	}
	fmt.Printf("job %d: %s (matched=%d unmatched=%d uncertain=%d skipped=%d)\n",
		final.ID, final.Status, final.MatchedCount, final.UnmatchedCount, final.UncertainCount, final.SkippedCount)
	if final.ErrorMessage != "" {
		fmt.Printf("error: %s\n", final.ErrorMessage)
	}
}
