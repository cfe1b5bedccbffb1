package main

import (
	"net/http"
	"time"

	"bitbucket.org/multycomm/collection_backend/config"
	"bitbucket.org/multycomm/collection_backend/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type outboxReplayRequest struct {
	TenantId string `json:"tenant_id"`
	// Ids limits the replay to specific outbox rows. Empty replays every
	// FAILED and DEAD row for the tenant.
	Ids []int `json:"ids"`
	// IncludeDead must be set explicitly; DEAD rows were already retried
	// to exhaustion and usually point at a poison payload.
	IncludeDead bool `json:"include_dead"`
}

// outboxReplayHandler requeues FAILED (and optionally DEAD) outbox rows by
// resetting them to PENDING with the attempt counter cleared. The running
// dispatcher picks them up on its next poll.
func outboxReplayHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req outboxReplayRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		if req.TenantId == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id is required"})
			return
		}

		statuses := []string{models.OutboxPublishStatusFailed}
		if req.IncludeDead {
			statuses = append(statuses, models.OutboxPublishStatusDead)
		}

		db := config.GetDB()
		query := db.Model(&models.RecordEventRecord{}).
			Where("tenant_id = ? AND publish_status IN ?", req.TenantId, statuses)
		if len(req.Ids) > 0 {
			query = query.Where("id IN ?", req.Ids)
		}

		now := time.Now().UTC()
		result := query.Updates(map[string]interface{}{
			"publish_status":     models.OutboxPublishStatusPending,
			"publish_attempts":   0,
			"next_attempt_at":    now,
			"locked_at":          nil,
			"locked_by":          nil,
			"last_publish_error": nil,
		})
		if result.Error != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": result.Error.Error()})
			return
		}

		config.GetLogger().WithFields(logrus.Fields{
			"field":        "OutboxReplay",
			"tenant_id":    req.TenantId,
			"requeued":     result.RowsAffected,
			"include_dead": req.IncludeDead,
		}).Info("requeued outbox rows for republish")

		c.JSON(http.StatusOK, gin.H{"requeued": result.RowsAffected})
	}
}

type outboxStatusCount struct {
	PublishStatus string `json:"publish_status"`
	Count         int64  `json:"count"`
}

// outboxStatsHandler reports per-status outbox row counts, optionally scoped
// to one tenant. Useful as an alerting probe for stuck rows.
func outboxStatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		db := config.GetDB()
		query := db.Model(&models.RecordEventRecord{}).
			Select("publish_status, COUNT(*) AS count").
			Group("publish_status")
		if tenantId := c.Query("tenant_id"); tenantId != "" {
			query = query.Where("tenant_id = ?", tenantId)
		}

		var counts []outboxStatusCount
		if err := query.Scan(&counts).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"statuses": counts})
	}
}
