package main

import (
	"net/http"
	"strings"

	"bitbucket.org/multycomm/collection_backend/workflow"
	"github.com/gin-gonic/gin"
)

// 10 MiB is generous for a dialer sheet; anything larger is a mistake.
const maxUploadBytes = 10 << 20

// stageUploadHandler parses an .xlsx workbook, validates every row and
// stages the batch in Redis. Nothing touches MySQL until confirm.
func stageUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		prefix := c.DefaultPostForm("prefix", workflow.PrefixDigital)

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file is required"})
			return
		}
		if fileHeader.Size > maxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file exceeds 10MB limit"})
			return
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only .xlsx files are accepted"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		summary, err := workflow.StageUpload(c.Request.Context(), prefix, file)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, summary)
	}
}

// getUploadHandler returns the staged rows for operator review, including
// per-row duplicate reports and rejection reasons. Reading refreshes the TTL.
func getUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		staging, err := workflow.GetStagedUpload(c.Request.Context(), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, staging)
	}
}

type confirmUploadRequest struct {
	Policy string `json:"policy"`
}

func confirmUploadHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req confirmUploadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		result, err := workflow.ConfirmUpload(c.Request.Context(), c.Param("id"), req.Policy)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}
