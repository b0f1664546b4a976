package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"

	"bitbucket.org/mmdatafocus/reconcile_backend/config"
	"bitbucket.org/mmdatafocus/reconcile_backend/matching"
	"bitbucket.org/mmdatafocus/reconcile_backend/middlewares"
	"bitbucket.org/mmdatafocus/reconcile_backend/models"
	"bitbucket.org/mmdatafocus/reconcile_backend/utils"
)

const defaultPort = "8080"

var tracer = otel.Tracer("reconcile-backend")

type runJobRequest struct {
	Customer string `json:"customer" binding:"required"`
	PoNumber string `json:"po_number"`
	Force    bool   `json:"force"`
}

func runJobHandler(engine *matching.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req runJobRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, span := tracer.Start(c.Request.Context(), "run_reconciliation")
		defer span.End()

		job, err := models.CreateJob(ctx, req.Customer, req.PoNumber, req.Force)
		if err != nil {
			config.LogError(config.GetLogger(), "server.go", "runJobHandler", "creating job", req, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create job"})
			return
		}

		// The job runs out-of-band; HITL items are resolved asynchronously
		// so nothing here ever waits on a human.
		bgCtx := utils.SetCorrelationIdInContext(context.Background(), job.CorrelationId)
		if actor := utils.GetActorFromContext(ctx); actor != "" {
			bgCtx = utils.SetActorInContext(bgCtx, actor)
		}
		go func() {
			if err := engine.RunJob(bgCtx, job.ID); err != nil {
				config.LogError(config.GetLogger(), "server.go", "runJobHandler", "job run", job.ID, err)
			}
		}()

		c.JSON(http.StatusAccepted, job)
	}
}

func cancelJobHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	if err := models.RequestJobCancel(c.Request.Context(), id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrJobNotCancellable) {
			status = http.StatusConflict
		} else if errors.Is(err, utils.ErrorRecordNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "cancel requested"})
}

func getJobHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return
	}
	job, err := models.GetJob(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func listJobsHandler(c *gin.Context) {
	var page models.Pagination
	_ = c.ShouldBindQuery(&page)
	jobs, err := models.ListJobs(c.Request.Context(), c.Query("customer"), models.JobStatus(c.Query("status")), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func listResultsHandler(c *gin.Context) {
	var filter models.ResultFilter
	var page models.Pagination
	_ = c.ShouldBindQuery(&filter)
	_ = c.ShouldBindQuery(&page)
	results, err := models.ListResults(c.Request.Context(), filter, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, results)
}

func resultScoresHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid result id"})
		return
	}
	scores, err := models.ListResultScores(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, scores)
}

func listQueueHandler(c *gin.Context) {
	var page models.Pagination
	_ = c.ShouldBindQuery(&page)
	items, err := models.ListQueueItems(c.Request.Context(), c.Query("customer"), models.HitlStatus(c.Query("status")), page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

func claimQueueHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	reviewer := utils.GetActorFromContext(c.Request.Context())
	item, err := matching.Claim(c.Request.Context(), id, reviewer)
	if err != nil {
		if errors.Is(err, models.ErrAlreadyClaimed) {
			c.JSON(http.StatusConflict, gin.H{"error": "already claimed"})
			return
		}
		if errors.Is(err, utils.ErrorRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, item)
}

func decideQueueHandler(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}
	var decision matching.Decision
	if err := c.ShouldBindJSON(&decision); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := matching.SubmitDecision(c.Request.Context(), id, decision)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrorRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		case errors.Is(err, models.ErrTerminalQueueItem):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, matching.ErrItemNotClaimed),
			errors.Is(err, matching.ErrCanonicalValueRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, matching.ErrConcurrencyConflict):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "applied", "item": item})
}

func upsertMatchConfigHandler(c *gin.Context) {
	var input models.CustomerMatchConfig
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := models.UpsertMatchConfig(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, saved)
}

func writeMappingHandler(c *gin.Context) {
	var input models.NewAttributeMapping
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mapping, err := matching.ApplyMapping(c.Request.Context(), &input)
	if err != nil {
		if errors.Is(err, matching.ErrConcurrencyConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, mapping)
}

func listAuditHandler(c *gin.Context) {
	entityId, _ := strconv.Atoi(c.Query("entity_id"))
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC3339"})
			return
		}
		since = &parsed
	}
	var page models.Pagination
	_ = c.ShouldBindQuery(&page)
	entries, err := models.ListAuditLog(c.Request.Context(), c.Query("entity_type"), entityId, since, page)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

func healthzHandler(c *gin.Context) {
	if config.GetDB() == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func newRouter(engine *matching.Engine) *gin.Engine {
	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-Id"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(middlewares.AuthMiddleware())

	r.GET("/healthz", healthzHandler)

	api := r.Group("/api")
	{
		api.POST("/reconciliation/jobs", runJobHandler(engine))
		api.POST("/reconciliation/jobs/:id/cancel", cancelJobHandler)
		api.GET("/reconciliation/jobs/:id", getJobHandler)
		api.GET("/reconciliation/jobs", listJobsHandler)
		api.GET("/reconciliation/results", listResultsHandler)
		api.GET("/reconciliation/results/:id/scores", resultScoresHandler)
		api.GET("/hitl/items", listQueueHandler)
		api.POST("/hitl/items/:id/claim", claimQueueHandler)
		api.POST("/hitl/items/:id/decision", decideQueueHandler)
		api.POST("/config/match", upsertMatchConfigHandler)
		api.POST("/config/mappings", writeMappingHandler)
		api.GET("/audit", listAuditHandler)
	}
	return r
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	// Listen first, connect after: the health endpoint reports "starting"
	// until the DB is reachable.
	go func() {
		config.ConnectDatabaseWithRetry()
		config.ConnectRedisWithRetry()
		models.MigrateTable()
	}()

	r := newRouter(matching.NewEngine())
	if err := r.Run(":" + port); err != nil {
		config.GetLogger().Fatalf("server: %v", err)
	}
}
