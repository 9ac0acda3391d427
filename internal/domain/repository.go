package domain

// SyncJobRepository defines the interface for sync job persistence
type SyncJobRepository interface {
	// Create creates a new job
	Create(job *SyncJob) error

	// Update updates an existing job
	Update(job *SyncJob) error

	// Delete deletes a job by ID
	Delete(id string) error

	// FindByID finds a job by ID, returning ErrJobNotFound when missing
	FindByID(id string) (*SyncJob, error)

	// FindByStatus finds jobs by status
	FindByStatus(status SyncStatus) ([]*SyncJob, error)

	// FindByResource returns the most recent job of kind for a resource whose
	// status is one of statuses, or nil when there is none
	FindByResource(kind JobKind, courseID, resourceID string, section Section, statuses []SyncStatus) (*SyncJob, error)

	// FindPending finds all queued jobs ordered by creation time
	FindPending() ([]*SyncJob, error)

	// FindAll finds all jobs with optional column filters
	FindAll(filters map[string]interface{}) ([]*SyncJob, error)

	// ResetProcessing requeues jobs left in processing by an interrupted run
	ResetProcessing() (int64, error)

	// GetStats returns job statistics
	GetStats() (*SyncStats, error)
}

// SyncStats represents sync job statistics
type SyncStats struct {
	Total      int64 `json:"total"`
	Queued     int64 `json:"queued"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Cancelled  int64 `json:"cancelled"`
}
