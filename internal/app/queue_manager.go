package app

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/internal/domain"
	"github.com/yourusername/offline-mirror-go/pkg/logger"
)

// QueueManager manages the sync job queue
type QueueManager struct {
	repo        domain.SyncJobRepository
	syncMgr     *SyncManager
	config      *domain.SyncConfig
	multiLogger *logger.MultiLogger
	mu          sync.RWMutex
	running     bool
	stopChan    chan struct{}
	workerWg    sync.WaitGroup
	inFlight    map[string]bool
	flightMu    sync.Mutex
}

// NewQueueManager creates a new queue manager
func NewQueueManager(
	repo domain.SyncJobRepository,
	syncMgr *SyncManager,
	config *domain.SyncConfig,
	multiLogger *logger.MultiLogger,
) *QueueManager {
	return &QueueManager{
		repo:        repo,
		syncMgr:     syncMgr,
		config:      config,
		multiLogger: multiLogger,
		inFlight:    make(map[string]bool),
	}
}

// Start starts the queue processor
func (qm *QueueManager) Start(ctx context.Context) error {
	qm.mu.Lock()
	if qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager already running")
	}
	qm.running = true
	qm.stopChan = make(chan struct{})
	qm.mu.Unlock()

	if n, err := qm.repo.ResetProcessing(); err != nil {
		qm.multiLogger.LogAppError("Failed to reset orphaned jobs", zap.Error(err))
	} else if n > 0 {
		qm.multiLogger.LogSyncEvent("orphaned_jobs_requeued", zap.Int64("count", n))
	}

	qm.multiLogger.LogSyncEvent("queue_started")

	qm.workerWg.Add(1)
	go qm.processQueue(ctx, qm.stopChan)

	return nil
}

// Stop stops the queue processor and waits for running jobs
func (qm *QueueManager) Stop() error {
	qm.mu.Lock()
	if !qm.running {
		qm.mu.Unlock()
		return fmt.Errorf("queue manager not running")
	}
	qm.running = false
	close(qm.stopChan)
	qm.mu.Unlock()

	qm.multiLogger.LogSyncEvent("queue_stopped")
	qm.workerWg.Wait()

	return nil
}

// IsRunning returns whether the queue manager is running
func (qm *QueueManager) IsRunning() bool {
	qm.mu.RLock()
	defer qm.mu.RUnlock()
	return qm.running
}

// AddPageJob queues an HTML resource. A page still waiting in the queue is
// updated with the newer content instead of being queued twice.
func (qm *QueueManager) AddPageJob(courseID, resourceID string, section domain.Section, baseURL, html string) (*domain.SyncJob, error) {
	if err := validateResource(courseID, resourceID, section); err != nil {
		return nil, err
	}
	if baseURL != "" {
		if _, err := parseHTTPURL(baseURL); err != nil {
			return nil, err
		}
	}

	existing, err := qm.repo.FindByResource(domain.KindPage, courseID, resourceID, section,
		[]domain.SyncStatus{domain.StatusQueued})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing jobs: %w", err)
	}
	if existing != nil {
		existing.BaseURL = baseURL
		existing.HTMLContent = html
		existing.UpdatedAt = time.Now()
		if err := qm.repo.Update(existing); err != nil {
			return nil, fmt.Errorf("failed to update job: %w", err)
		}
		qm.multiLogger.LogSyncEvent("job_updated",
			zap.String("id", existing.ID),
			zap.String("course_id", courseID),
			zap.String("resource_id", resourceID))
		return existing, nil
	}

	job := domain.NewPageJob(courseID, resourceID, section, baseURL, html)
	if err := qm.repo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	qm.logJobAdded(job)
	return job, nil
}

// AddAttachmentJob queues a single file reference. The same URL already
// queued or processing for the resource returns the existing job.
func (qm *QueueManager) AddAttachmentJob(courseID, resourceID string, section domain.Section, sourceURL string) (*domain.SyncJob, error) {
	if err := validateResource(courseID, resourceID, section); err != nil {
		return nil, err
	}
	if _, err := parseHTTPURL(sourceURL); err != nil {
		return nil, err
	}

	jobs, err := qm.repo.FindAll(map[string]interface{}{
		"kind":        domain.KindAttachment,
		"course_id":   courseID,
		"resource_id": resourceID,
		"section":     section,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to check existing jobs: %w", err)
	}
	for _, existing := range jobs {
		if existing.SourceURL == sourceURL && (existing.IsPending() || existing.IsProcessing()) {
			return existing, nil
		}
	}

	job := domain.NewAttachmentJob(courseID, resourceID, section, sourceURL)
	if err := qm.repo.Create(job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	qm.logJobAdded(job)
	return job, nil
}

func (qm *QueueManager) logJobAdded(job *domain.SyncJob) {
	qm.multiLogger.LogSyncEvent("job_added",
		zap.String("id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("course_id", job.CourseID),
		zap.String("resource_id", job.ResourceID),
		zap.String("section", string(job.Section)))
}

// GetJob retrieves a job by ID
func (qm *QueueManager) GetJob(id string) (*domain.SyncJob, error) {
	return qm.repo.FindByID(id)
}

// ListJobs lists all jobs with optional filters
func (qm *QueueManager) ListJobs(filters map[string]interface{}) ([]*domain.SyncJob, error) {
	return qm.repo.FindAll(filters)
}

// GetStats returns queue statistics
func (qm *QueueManager) GetStats() (*domain.SyncStats, error) {
	return qm.repo.GetStats()
}

// processQueue dispatches queued jobs on every tick
func (qm *QueueManager) processQueue(ctx context.Context, stopChan <-chan struct{}) {
	defer qm.workerWg.Done()

	ticker := time.NewTicker(qm.config.CheckInterval)
	defer ticker.Stop()

	wasEmpty := false
	dispatched := false

	for {
		select {
		case <-ctx.Done():
			qm.multiLogger.LogSyncEvent("queue_processor_stopped",
				zap.String("reason", "context_cancelled"))
			return
		case <-stopChan:
			qm.multiLogger.LogSyncEvent("queue_processor_stopped",
				zap.String("reason", "stop_signal"))
			return
		case <-ticker.C:
			pending, err := qm.repo.FindPending()
			if err != nil {
				qm.multiLogger.LogAppError("Failed to fetch pending jobs", zap.Error(err))
				continue
			}

			if len(pending) == 0 {
				if !wasEmpty {
					wasEmpty = true
					qm.multiLogger.LogSyncEvent("queue_empty")
					if dispatched {
						qm.notifyQueueEmpty()
					}
				}
				continue
			}
			wasEmpty = false
			dispatched = true

			for _, job := range pending {
				qm.dispatch(ctx, job)
			}
		}
	}
}

// queueEmptyNotifier is implemented by notifiers that report a drained queue
type queueEmptyNotifier interface {
	NotifyQueueEmpty()
}

func (qm *QueueManager) notifyQueueEmpty() {
	if n, ok := qm.syncMgr.notifier.(queueEmptyNotifier); ok {
		n.NotifyQueueEmpty()
	}
}

// dispatch starts job unless it is already in flight. The per-course
// semaphore in SyncManager decides when it actually runs.
func (qm *QueueManager) dispatch(ctx context.Context, job *domain.SyncJob) {
	qm.flightMu.Lock()
	if qm.inFlight[job.ID] {
		qm.flightMu.Unlock()
		return
	}
	qm.inFlight[job.ID] = true
	qm.flightMu.Unlock()

	qm.multiLogger.LogSyncEvent("job_started",
		zap.String("id", job.ID),
		zap.String("kind", string(job.Kind)),
		zap.String("course_id", job.CourseID))

	qm.workerWg.Add(1)
	go func() {
		defer qm.workerWg.Done()
		defer func() {
			qm.flightMu.Lock()
			delete(qm.inFlight, job.ID)
			qm.flightMu.Unlock()
		}()

		if err := qm.syncMgr.ProcessJob(ctx, job); err != nil {
			qm.multiLogger.LogSyncEvent("job_failed",
				zap.String("id", job.ID),
				zap.Error(err))
			qm.multiLogger.LogAppError("Failed to process job",
				zap.String("id", job.ID),
				zap.Error(err))
			return
		}

		qm.multiLogger.LogSyncEvent("job_finished",
			zap.String("id", job.ID),
			zap.String("status", string(job.Status)),
			zap.String("result_path", job.ResultPath))
	}()
}

func validateResource(courseID, resourceID string, section domain.Section) error {
	if courseID == "" || resourceID == "" {
		return fmt.Errorf("%w: course_id and resource_id are required", domain.ErrInvalidJob)
	}
	if !domain.ValidatePathID(courseID) || !domain.ValidatePathID(resourceID) {
		return fmt.Errorf("%w: course_id and resource_id may only contain letters, digits, '.', '_' and '-'", domain.ErrInvalidJob)
	}
	if !domain.ValidateSection(section) {
		return fmt.Errorf("%w: invalid section: %s", domain.ErrInvalidJob, section)
	}
	return nil
}

func parseHTTPURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidURL, raw)
	}
	return u, nil
}
