package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/firstbud/attribution-service/internal/domain/attribution"
	"github.com/firstbud/attribution-service/internal/services"
)

// maxUploadBytes caps a CSV upload at 10 MB.
const maxUploadBytes = 10 << 20

// UploadHandler handles CSV upload API requests
type UploadHandler struct {
	analysis *services.CustomerAnalysisService
	worker   *services.UploadWorker
	cache    *services.StatsCacheService
	logger   *zap.Logger
}

// NewUploadHandler creates a new UploadHandler
func NewUploadHandler(
	analysis *services.CustomerAnalysisService,
	worker *services.UploadWorker,
	cache *services.StatsCacheService,
	logger *zap.Logger,
) *UploadHandler {
	return &UploadHandler{
		analysis: analysis,
		worker:   worker,
		cache:    cache,
		logger:   logger,
	}
}

// Upload accepts a CSV file and starts processing it in the background.
// The response carries the upload id; clients poll its status.
// POST /api/v1/customers/upload-csv
func (h *UploadHandler) Upload(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file field"})
		return
	}
	defer file.Close()

	content, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file"})
		return
	}
	if len(content) > maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "File exceeds 10MB limit"})
		return
	}

	upload, err := h.analysis.CreateUpload(c.Request.Context(), header.Filename)
	if err != nil {
		h.logger.Error("Failed to register upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.worker.Enqueue(upload.ID, string(content))
	_ = h.cache.Invalidate(c.Request.Context())

	c.JSON(http.StatusAccepted, gin.H{
		"upload_id": upload.ID,
		"file_name": upload.FileName,
		"status":    upload.Status,
	})
}

// List returns the upload history with per-upload counts.
// GET /api/v1/customers/uploads
func (h *UploadHandler) List(c *gin.Context) {
	uploads, err := h.analysis.ListUploads(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list uploads", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": uploads, "total": len(uploads)})
}

// Get returns one upload with its records and per-customer snapshots.
// GET /api/v1/customers/upload-status/:id
func (h *UploadHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload ID"})
		return
	}

	upload, records, analysis, err := h.analysis.UploadDetail(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, attribution.ErrUploadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
			return
		}
		h.logger.Error("Failed to load upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upload":    upload,
		"records":   records,
		"customers": analysis,
	})
}

// Delete removes an upload and recomputes the customers it touched.
// DELETE /api/v1/customers/uploads/:id
func (h *UploadHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid upload ID"})
		return
	}

	if err := h.analysis.DeleteUpload(c.Request.Context(), id); err != nil {
		if errors.Is(err, attribution.ErrUploadNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Upload not found"})
			return
		}
		h.logger.Error("Failed to delete upload", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	_ = h.cache.Invalidate(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Upload deleted and customers recomputed"})
}
