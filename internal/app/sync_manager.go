package app

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/internal/domain"
	"github.com/yourusername/offline-mirror-go/internal/offline"
)

// JobNotifier is told about finished sync jobs
type JobNotifier interface {
	NotifyJobCompleted(job *domain.SyncJob)
	NotifyJobFailed(job *domain.SyncJob, err error)
}

// SyncManager runs sync jobs against the offline mirror
type SyncManager struct {
	repo             domain.SyncJobRepository
	fetcher          *offline.ContentFetcher
	notifier         JobNotifier
	config           *domain.SyncConfig
	concurrency      int
	logger           *zap.Logger
	courseSemaphores map[string]chan struct{} // one running job per course
	running          map[string]context.CancelFunc
	mu               sync.Mutex
	stateMu          sync.Mutex // orders status writes against CancelJob
}

// NewSyncManager creates a new sync manager
func NewSyncManager(
	repo domain.SyncJobRepository,
	fetcher *offline.ContentFetcher,
	notifier JobNotifier,
	config *domain.SyncConfig,
	concurrency int,
	logger *zap.Logger,
) *SyncManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncManager{
		repo:             repo,
		fetcher:          fetcher,
		notifier:         notifier,
		config:           config,
		concurrency:      concurrency,
		logger:           logger,
		courseSemaphores: make(map[string]chan struct{}),
		running:          make(map[string]context.CancelFunc),
	}
}

func (sm *SyncManager) courseSemaphore(courseID string) chan struct{} {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sem, ok := sm.courseSemaphores[courseID]
	if !ok {
		sem = make(chan struct{}, 1)
		sm.courseSemaphores[courseID] = sem
	}
	return sem
}

// ProcessJob mirrors one job, retrying failures up to the configured limit.
// Jobs that are no longer queued when their course slot frees up are skipped.
func (sm *SyncManager) ProcessJob(ctx context.Context, job *domain.SyncJob) error {
	sem := sm.courseSemaphore(job.CourseID)
	select {
	case sem <- struct{}{}:
		defer func() { <-sem }()
	case <-ctx.Done():
		return ctx.Err()
	}

	current, err := sm.repo.FindByID(job.ID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if !current.IsPending() {
		sm.logger.Debug("Skipping job that is no longer queued",
			zap.String("id", job.ID),
			zap.String("status", string(current.Status)))
		return nil
	}
	*job = *current

	jobCtx, cancel := context.WithCancel(ctx)
	sm.mu.Lock()
	sm.running[job.ID] = cancel
	sm.mu.Unlock()
	defer func() {
		sm.mu.Lock()
		delete(sm.running, job.ID)
		sm.mu.Unlock()
		cancel()
	}()

	sm.logger.Info("Processing sync job",
		zap.String("id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("course_id", job.CourseID),
		zap.String("resource_id", job.ResourceID),
		zap.String("section", string(job.Section)))

	cancelled, err := sm.transition(job, job.MarkProcessing)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if cancelled {
		sm.logger.Debug("Skipping job cancelled before it started", zap.String("id", job.ID))
		return nil
	}

	var lastErr error
	for attempt := 0; attempt <= sm.config.MaxRetries; attempt++ {
		if attempt > 0 {
			sm.logger.Info("Retrying sync job",
				zap.String("id", job.ID),
				zap.Int("attempt", attempt),
				zap.Int("max_retries", sm.config.MaxRetries))

			select {
			case <-time.After(sm.config.RetryDelay):
			case <-jobCtx.Done():
				return sm.interrupted(ctx, job)
			}

			if cancelled, _ := sm.transition(job, job.IncrementRetry); cancelled {
				return sm.interrupted(ctx, job)
			}
		}

		resultPath, err := sm.run(jobCtx, job)
		if err == nil {
			cancelled, _ := sm.transition(job, func() { job.MarkCompleted(resultPath) })
			if cancelled {
				sm.logger.Info("Sync job cancelled before it could complete", zap.String("id", job.ID))
				return context.Canceled
			}

			sm.logger.Info("Sync job completed",
				zap.String("id", job.ID),
				zap.String("result", resultPath),
				zap.Int("assets", job.AssetsTotal),
				zap.Int("assets_failed", job.AssetsFailed))

			if sm.notifier != nil {
				sm.notifier.NotifyJobCompleted(job)
			}
			return nil
		}

		if jobCtx.Err() != nil {
			return sm.interrupted(ctx, job)
		}

		lastErr = err
		sm.logger.Warn("Sync job attempt failed",
			zap.String("id", job.ID),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if isPermanent(err) {
			break
		}
	}

	cancelled, _ = sm.transition(job, func() { job.MarkFailed(lastErr) })
	if cancelled {
		sm.logger.Info("Sync job cancelled before it could fail", zap.String("id", job.ID))
		return context.Canceled
	}

	sm.logger.Error("Sync job failed",
		zap.String("id", job.ID),
		zap.String("course_id", job.CourseID),
		zap.String("resource_id", job.ResourceID),
		zap.Error(lastErr))

	if sm.notifier != nil {
		sm.notifier.NotifyJobFailed(job, lastErr)
	}
	return lastErr
}

// interrupted records why a running job stopped early. A cancelled parent
// context puts the job back in the queue; CancelJob leaves it cancelled.
func (sm *SyncManager) interrupted(ctx context.Context, job *domain.SyncJob) error {
	if err := ctx.Err(); err != nil {
		cancelled, _ := sm.transition(job, func() {
			job.Status = domain.StatusQueued
			job.StartedAt = nil
			job.UpdatedAt = time.Now()
		})
		if !cancelled {
			sm.logger.Info("Sync job interrupted, requeued", zap.String("id", job.ID))
		}
		return err
	}

	sm.stateMu.Lock()
	job.MarkCancelled()
	sm.saveJob(job)
	sm.stateMu.Unlock()
	sm.logger.Info("Sync job cancelled while running", zap.String("id", job.ID))
	return context.Canceled
}

// transition applies change to job and stores it, unless CancelJob got
// there first. A cancelled job is reloaded into job and reported as such.
func (sm *SyncManager) transition(job *domain.SyncJob, change func()) (bool, error) {
	sm.stateMu.Lock()
	defer sm.stateMu.Unlock()

	current, err := sm.repo.FindByID(job.ID)
	if err != nil {
		sm.logger.Error("Failed to reload job", zap.String("id", job.ID), zap.Error(err))
	} else if current.Status == domain.StatusCancelled {
		*job = *current
		return true, nil
	}

	change()
	return false, sm.saveJob(job)
}

func (sm *SyncManager) saveJob(job *domain.SyncJob) error {
	if err := sm.repo.Update(job); err != nil {
		sm.logger.Error("Failed to update job status",
			zap.String("id", job.ID),
			zap.String("status", string(job.Status)),
			zap.Error(err))
		return err
	}
	return nil
}

// run performs one attempt and returns the job's result path
func (sm *SyncManager) run(ctx context.Context, job *domain.SyncJob) (string, error) {
	fetcher := sm.fetcher.WithSection(job.Section)

	switch job.Kind {
	case domain.KindPage:
		req := domain.RewriteRequest{
			HTMLContent: job.HTMLContent,
			ResourceID:  job.ResourceID,
			CourseID:    job.CourseID,
		}
		if job.BaseURL != "" {
			base, err := url.Parse(job.BaseURL)
			if err != nil {
				return "", fmt.Errorf("%w: base url %s: %w", domain.ErrInvalidURL, job.BaseURL, err)
			}
			req.BaseURL = base
		}

		rewriter := offline.NewHTMLRewriter(fetcher, sm.concurrency, sm.logger)
		result, err := rewriter.Rewrite(ctx, req)
		if err != nil {
			return "", err
		}
		job.AssetsTotal = result.AssetsTotal
		job.AssetsFailed = result.AssetsFailed
		return result.BodyPath, nil

	case domain.KindAttachment:
		downloader := offline.NewAttachmentDownloader(fetcher, sm.logger)
		return downloader.DownloadAttachment(ctx, job.SourceURL, job.CourseID, job.ResourceID)

	default:
		return "", fmt.Errorf("unknown job kind: %s", job.Kind)
	}
}

// isPermanent reports whether repeating the attempt cannot help
func isPermanent(err error) bool {
	if errors.Is(err, domain.ErrInvalidURL) {
		return true
	}
	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) {
		return !statusErr.Retryable()
	}
	return false
}

// CancelJob cancels a queued or running job
func (sm *SyncManager) CancelJob(id string) error {
	if err := sm.markCancelled(id); err != nil {
		return err
	}

	sm.mu.Lock()
	cancel, ok := sm.running[id]
	sm.mu.Unlock()
	if ok {
		cancel()
	}

	sm.logger.Info("Sync job cancelled", zap.String("id", id))
	return nil
}

func (sm *SyncManager) markCancelled(id string) error {
	sm.stateMu.Lock()
	defer sm.stateMu.Unlock()

	job, err := sm.repo.FindByID(id)
	if err != nil {
		return err
	}

	if job.IsTerminal() {
		return fmt.Errorf("%w: job already in terminal state: %s", domain.ErrJobState, job.Status)
	}

	job.MarkCancelled()
	if err := sm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	return nil
}

// RetryJob puts a failed or cancelled job back in the queue
func (sm *SyncManager) RetryJob(id string) error {
	job, err := sm.repo.FindByID(id)
	if err != nil {
		return err
	}

	switch job.Status {
	case domain.StatusFailed, domain.StatusCancelled:
	case domain.StatusQueued:
		return fmt.Errorf("%w: job is already queued", domain.ErrJobState)
	case domain.StatusProcessing:
		return fmt.Errorf("%w: job is currently processing", domain.ErrJobState)
	default:
		return fmt.Errorf("%w: job cannot be retried in state: %s", domain.ErrJobState, job.Status)
	}

	job.Requeue()
	if err := sm.repo.Update(job); err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}

	sm.logger.Info("Sync job queued for retry", zap.String("id", id))
	return nil
}

// DeleteJob removes a job that is not running
func (sm *SyncManager) DeleteJob(id string) error {
	job, err := sm.repo.FindByID(id)
	if err != nil {
		return err
	}
	if job.IsProcessing() {
		return fmt.Errorf("%w: job is currently processing", domain.ErrJobState)
	}
	return sm.repo.Delete(id)
}
