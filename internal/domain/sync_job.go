package domain

import (
	"time"

	"github.com/google/uuid"
)

// SyncStatus represents the current status of a sync job
type SyncStatus string

const (
	StatusQueued     SyncStatus = "queued"
	StatusProcessing SyncStatus = "processing"
	StatusCompleted  SyncStatus = "completed"
	StatusFailed     SyncStatus = "failed"
	StatusCancelled  SyncStatus = "cancelled"
)

// JobKind selects how a sync job is mirrored
type JobKind string

const (
	KindPage       JobKind = "page"       // HTML body with embedded assets
	KindAttachment JobKind = "attachment" // single file reference
)

// SyncJob is one request to mirror a course resource for offline use
type SyncJob struct {
	ID           string     `json:"id" gorm:"primaryKey"`
	Kind         JobKind    `json:"kind" gorm:"not null"`
	CourseID     string     `json:"course_id" gorm:"not null;index"`
	ResourceID   string     `json:"resource_id" gorm:"not null"`
	Section      Section    `json:"section" gorm:"not null"`
	BaseURL      string     `json:"base_url,omitempty"`
	SourceURL    string     `json:"source_url,omitempty"`
	HTMLContent  string     `json:"-" gorm:"type:text"`
	Status       SyncStatus `json:"status" gorm:"not null;index"`
	RetryCount   int        `json:"retry_count" gorm:"default:0"`
	ErrorMessage string     `json:"error_message,omitempty"`
	ResultPath   string     `json:"result_path,omitempty"`
	AssetsTotal  int        `json:"assets_total"`
	AssetsFailed int        `json:"assets_failed"`
	CreatedAt    time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// NewPageJob creates a sync job for an HTML resource
func NewPageJob(courseID, resourceID string, section Section, baseURL, html string) *SyncJob {
	job := newSyncJob(KindPage, courseID, resourceID, section)
	job.BaseURL = baseURL
	job.HTMLContent = html
	return job
}

// NewAttachmentJob creates a sync job for a single file reference
func NewAttachmentJob(courseID, resourceID string, section Section, sourceURL string) *SyncJob {
	job := newSyncJob(KindAttachment, courseID, resourceID, section)
	job.SourceURL = sourceURL
	return job
}

func newSyncJob(kind JobKind, courseID, resourceID string, section Section) *SyncJob {
	now := time.Now()
	return &SyncJob{
		ID:         uuid.New().String(),
		Kind:       kind,
		CourseID:   courseID,
		ResourceID: resourceID,
		Section:    section,
		Status:     StatusQueued,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkProcessing marks the job as processing
func (j *SyncJob) MarkProcessing() {
	j.Status = StatusProcessing
	now := time.Now()
	j.StartedAt = &now
	j.UpdatedAt = now
}

// MarkCompleted marks the job as completed
func (j *SyncJob) MarkCompleted(resultPath string) {
	j.Status = StatusCompleted
	j.ResultPath = resultPath
	j.ErrorMessage = ""
	now := time.Now()
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkFailed marks the job as failed
func (j *SyncJob) MarkFailed(err error) {
	j.Status = StatusFailed
	j.ErrorMessage = err.Error()
	j.UpdatedAt = time.Now()
}

// MarkCancelled marks the job as cancelled
func (j *SyncJob) MarkCancelled() {
	j.Status = StatusCancelled
	j.UpdatedAt = time.Now()
}

// IncrementRetry increments the retry count
func (j *SyncJob) IncrementRetry() {
	j.RetryCount++
	j.UpdatedAt = time.Now()
}

// Requeue resets a failed or cancelled job
func (j *SyncJob) Requeue() {
	j.Status = StatusQueued
	j.RetryCount = 0
	j.ErrorMessage = ""
	j.StartedAt = nil
	j.CompletedAt = nil
	j.UpdatedAt = time.Now()
}

// CanRetry checks if the job can be retried
func (j *SyncJob) CanRetry(maxRetries int) bool {
	return j.RetryCount < maxRetries && j.Status == StatusFailed
}

// IsTerminal checks if the job is in a terminal state
func (j *SyncJob) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusCancelled
}

// IsPending checks if the job is waiting in the queue
func (j *SyncJob) IsPending() bool {
	return j.Status == StatusQueued
}

// IsProcessing checks if the job is currently processing
func (j *SyncJob) IsProcessing() bool {
	return j.Status == StatusProcessing
}

// ValidateKind checks if a job kind is valid
func ValidateKind(kind JobKind) bool {
	return kind == KindPage || kind == KindAttachment
}
