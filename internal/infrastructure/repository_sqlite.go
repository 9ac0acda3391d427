package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

// filterColumns whitelists the columns FindAll accepts as filters
var filterColumns = map[string]bool{
	"status":      true,
	"kind":        true,
	"course_id":   true,
	"resource_id": true,
	"section":     true,
}

// SQLiteSyncJobRepository implements SyncJobRepository using SQLite
type SQLiteSyncJobRepository struct {
	db *gorm.DB
}

// NewSQLiteSyncJobRepository creates a new SQLite repository
func NewSQLiteSyncJobRepository(dbPath string) (*SQLiteSyncJobRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.SyncJob{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteSyncJobRepository{db: db}, nil
}

// Create creates a new job
func (r *SQLiteSyncJobRepository) Create(job *domain.SyncJob) error {
	return r.db.Create(job).Error
}

// Update updates an existing job
func (r *SQLiteSyncJobRepository) Update(job *domain.SyncJob) error {
	return r.db.Save(job).Error
}

// Delete deletes a job by ID
func (r *SQLiteSyncJobRepository) Delete(id string) error {
	result := r.db.Delete(&domain.SyncJob{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// FindByID finds a job by ID
func (r *SQLiteSyncJobRepository) FindByID(id string) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := r.db.First(&job, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// FindByStatus finds jobs by status
func (r *SQLiteSyncJobRepository) FindByStatus(status domain.SyncStatus) ([]*domain.SyncJob, error) {
	var jobs []*domain.SyncJob
	err := r.db.Where("status = ?", status).Order("created_at ASC").Find(&jobs).Error
	return jobs, err
}

// FindByResource returns the most recent matching job, or nil if none exists
func (r *SQLiteSyncJobRepository) FindByResource(kind domain.JobKind, courseID, resourceID string, section domain.Section, statuses []domain.SyncStatus) (*domain.SyncJob, error) {
	var job domain.SyncJob
	err := r.db.Where("kind = ? AND course_id = ? AND resource_id = ? AND section = ? AND status IN ?",
		kind, courseID, resourceID, section, statuses).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// FindPending finds all queued jobs in submission order
func (r *SQLiteSyncJobRepository) FindPending() ([]*domain.SyncJob, error) {
	var jobs []*domain.SyncJob
	err := r.db.Where("status = ?", domain.StatusQueued).
		Order("created_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// FindAll finds all jobs with optional filters
func (r *SQLiteSyncJobRepository) FindAll(filters map[string]interface{}) ([]*domain.SyncJob, error) {
	var jobs []*domain.SyncJob
	query := r.db

	for key, value := range filters {
		if !filterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&jobs).Error
	return jobs, err
}

// GetStats returns job statistics
func (r *SQLiteSyncJobRepository) GetStats() (*domain.SyncStats, error) {
	stats := &domain.SyncStats{}

	if err := r.db.Model(&domain.SyncJob{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.SyncStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.SyncJob{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StatusQueued:
			stats.Queued = sc.Count
		case domain.StatusProcessing:
			stats.Processing = sc.Count
		case domain.StatusCompleted:
			stats.Completed = sc.Count
		case domain.StatusFailed:
			stats.Failed = sc.Count
		case domain.StatusCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// ResetProcessing requeues jobs left in processing by an interrupted run
func (r *SQLiteSyncJobRepository) ResetProcessing() (int64, error) {
	result := r.db.Model(&domain.SyncJob{}).
		Where("status = ?", domain.StatusProcessing).
		Updates(map[string]interface{}{"status": domain.StatusQueued, "started_at": nil})
	return result.RowsAffected, result.Error
}

// Close closes the database connection
func (r *SQLiteSyncJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
