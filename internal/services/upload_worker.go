package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// uploadTimeout caps one batch's processing time.
const uploadTimeout = 10 * time.Minute

// UploadWorker runs CSV processing off the request path. The handler
// registers the upload and returns immediately; the worker owns the
// terminal status transition, so a crash mid-batch leaves PROCESSING
// rather than a half-true SUCCESS.
type UploadWorker struct {
	analysis *CustomerAnalysisService
	logger   *zap.Logger
	wg       sync.WaitGroup
	active   atomic.Int64
}

// NewUploadWorker creates a new UploadWorker
func NewUploadWorker(analysis *CustomerAnalysisService, logger *zap.Logger) *UploadWorker {
	return &UploadWorker{analysis: analysis, logger: logger}
}

// Enqueue starts processing one upload in the background.
func (w *UploadWorker) Enqueue(uploadID uuid.UUID, content string) {
	w.wg.Add(1)
	w.active.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.active.Add(-1)

		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()

		if err := w.analysis.ProcessUpload(ctx, uploadID, content); err != nil {
			w.logger.Error("upload processing failed",
				zap.String("upload_id", uploadID.String()),
				zap.Error(err),
			)
		}
	}()
}

// Active returns the number of uploads currently being processed.
func (w *UploadWorker) Active() int64 {
	return w.active.Load()
}

// Wait blocks until every in-flight upload finishes. Called on shutdown.
func (w *UploadWorker) Wait() {
	w.wg.Wait()
}
