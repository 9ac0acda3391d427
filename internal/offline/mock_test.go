package offline

import (
	"context"
	"sync"

	"github.com/spf13/afero"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

const (
	testDocumentsDir = "/docs"
	testSessionID    = "session"
)

// mockTaskProvider implements domain.TaskProvider for testing
type mockTaskProvider struct {
	mu      sync.Mutex
	calls   []string
	bodies  map[string][]byte
	errs    map[string]error
	onFetch func(ctx context.Context, url string) error
}

func newMockTaskProvider() *mockTaskProvider {
	return &mockTaskProvider{
		bodies: make(map[string][]byte),
		errs:   make(map[string]error),
	}
}

func (m *mockTaskProvider) Fetch(ctx context.Context, url string) (*domain.FetchResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	body, ok := m.bodies[url]
	err := m.errs[url]
	hook := m.onFetch
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx, url); err != nil {
			return nil, err
		}
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		body = []byte("content of " + url)
	}
	return &domain.FetchResult{URL: url, Body: body}, nil
}

func (m *mockTaskProvider) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// mockFileResolver implements domain.FileResolver for testing
type mockFileResolver struct {
	mu    sync.Mutex
	files map[string]*domain.FileMetadata
	err   error
	calls []string
}

func newMockFileResolver() *mockFileResolver {
	return &mockFileResolver{files: make(map[string]*domain.FileMetadata)}
}

func (m *mockFileResolver) ResolveFile(ctx context.Context, fileURL string) (*domain.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, fileURL)
	if m.err != nil {
		return nil, m.err
	}
	meta, ok := m.files[fileURL]
	if !ok {
		return nil, domain.ErrFileResolve
	}
	return meta, nil
}

func newTestFetcher(tasks domain.TaskProvider, resolver domain.FileResolver, fs afero.Fs) *ContentFetcher {
	return NewContentFetcher(tasks, resolver, fs, FetcherConfig{
		DocumentsDir: testDocumentsDir,
		SessionID:    testSessionID,
		Section:      domain.SectionPages,
	}, nil)
}
