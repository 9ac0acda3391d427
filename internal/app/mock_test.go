package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/yourusername/offline-mirror-go/internal/domain"
	"github.com/yourusername/offline-mirror-go/internal/offline"
)

// mockRepo implements domain.SyncJobRepository for testing. It stores copies
// so callers never share a *SyncJob with the repository.
type mockRepo struct {
	mu        sync.Mutex
	jobs      []*domain.SyncJob
	updateErr func(job *domain.SyncJob) error
}

func newMockRepo() *mockRepo {
	return &mockRepo{}
}

func cloneJob(job *domain.SyncJob) *domain.SyncJob {
	c := *job
	return &c
}

func (m *mockRepo) Create(job *domain.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = append(m.jobs, cloneJob(job))
	return nil
}

func (m *mockRepo) Update(job *domain.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		if err := m.updateErr(job); err != nil {
			return err
		}
	}
	for i, j := range m.jobs {
		if j.ID == job.ID {
			m.jobs[i] = cloneJob(job)
			return nil
		}
	}
	return domain.ErrJobNotFound
}

func (m *mockRepo) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, j := range m.jobs {
		if j.ID == id {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return nil
		}
	}
	return domain.ErrJobNotFound
}

func (m *mockRepo) FindByID(id string) (*domain.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			return cloneJob(j), nil
		}
	}
	return nil, domain.ErrJobNotFound
}

func (m *mockRepo) FindByStatus(status domain.SyncStatus) ([]*domain.SyncJob, error) {
	return m.FindAll(map[string]interface{}{"status": status})
}

func (m *mockRepo) FindByResource(kind domain.JobKind, courseID, resourceID string, section domain.Section, statuses []domain.SyncStatus) (*domain.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.jobs) - 1; i >= 0; i-- {
		j := m.jobs[i]
		if j.Kind != kind || j.CourseID != courseID || j.ResourceID != resourceID || j.Section != section {
			continue
		}
		for _, s := range statuses {
			if j.Status == s {
				return cloneJob(j), nil
			}
		}
	}
	return nil, nil
}

func (m *mockRepo) FindPending() ([]*domain.SyncJob, error) {
	return m.FindByStatus(domain.StatusQueued)
}

func (m *mockRepo) FindAll(filters map[string]interface{}) ([]*domain.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*domain.SyncJob
	for _, j := range m.jobs {
		columns := map[string]string{
			"status":      string(j.Status),
			"kind":        string(j.Kind),
			"course_id":   j.CourseID,
			"resource_id": j.ResourceID,
			"section":     string(j.Section),
		}
		match := true
		for key, value := range filters {
			if columns[key] != fmt.Sprint(value) {
				match = false
				break
			}
		}
		if match {
			result = append(result, cloneJob(j))
		}
	}
	return result, nil
}

func (m *mockRepo) ResetProcessing() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, j := range m.jobs {
		if j.Status == domain.StatusProcessing {
			j.Status = domain.StatusQueued
			j.StartedAt = nil
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) GetStats() (*domain.SyncStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &domain.SyncStats{Total: int64(len(m.jobs))}
	for _, j := range m.jobs {
		switch j.Status {
		case domain.StatusQueued:
			stats.Queued++
		case domain.StatusProcessing:
			stats.Processing++
		case domain.StatusCompleted:
			stats.Completed++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusCancelled:
			stats.Cancelled++
		}
	}
	return stats, nil
}

func (m *mockRepo) status(id string) domain.SyncStatus {
	job, err := m.FindByID(id)
	if err != nil {
		return ""
	}
	return job.Status
}

// mockTasks implements domain.TaskProvider for testing
type mockTasks struct {
	mu      sync.Mutex
	calls   []string
	onFetch func(ctx context.Context, url string, call int) error
}

func (m *mockTasks) Fetch(ctx context.Context, url string) (*domain.FetchResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	call := len(m.calls)
	hook := m.onFetch
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, url, call); err != nil {
			return nil, err
		}
	}
	return &domain.FetchResult{URL: url, Body: []byte("content of " + url)}, nil
}

func (m *mockTasks) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockNotifier records job notifications
type mockNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	drained   int
}

func (m *mockNotifier) NotifyJobCompleted(job *domain.SyncJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, job.ID)
}

func (m *mockNotifier) NotifyJobFailed(job *domain.SyncJob, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, job.ID)
}

func (m *mockNotifier) NotifyQueueEmpty() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drained++
}

func (m *mockNotifier) drainedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drained
}

type syncFixture struct {
	manager  *SyncManager
	repo     *mockRepo
	tasks    *mockTasks
	notifier *mockNotifier
	fs       afero.Fs
}

func newSyncFixture() *syncFixture {
	repo := newMockRepo()
	tasks := &mockTasks{}
	notifier := &mockNotifier{}
	fs := afero.NewMemMapFs()

	fetcher := offline.NewContentFetcher(tasks, nil, fs, offline.FetcherConfig{
		DocumentsDir: "/docs",
		SessionID:    "session",
		Section:      domain.SectionPages,
	}, nil)

	config := &domain.SyncConfig{
		CheckInterval: 10 * time.Millisecond,
		MaxRetries:    2,
		RetryDelay:    time.Millisecond,
	}

	return &syncFixture{
		manager:  NewSyncManager(repo, fetcher, notifier, config, 4, nil),
		repo:     repo,
		tasks:    tasks,
		notifier: notifier,
		fs:       fs,
	}
}
