package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

// canvasFile mirrors the subset of the files API response we need
type canvasFile struct {
	ID          json.Number `json:"id"`
	DisplayName string      `json:"display_name"`
	Filename    string      `json:"filename"`
	URL         string      `json:"url"`
	ContentType string      `json:"content-type"`
	Size        int64       `json:"size"`
}

// CanvasFileResolver implements domain.FileResolver against the Canvas files API
type CanvasFileResolver struct {
	tasks  domain.TaskProvider
	logger *zap.Logger
}

// NewCanvasFileResolver creates a new file resolver
func NewCanvasFileResolver(tasks domain.TaskProvider, logger *zap.Logger) *CanvasFileResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CanvasFileResolver{tasks: tasks, logger: logger}
}

// ResolveFile looks up the download URL and name of the file fileURL points at
func (r *CanvasFileResolver) ResolveFile(ctx context.Context, fileURL string) (*domain.FileMetadata, error) {
	u, err := url.Parse(fileURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidURL, fileURL)
	}

	id, ok := domain.FileIDFromURL(u)
	if !ok {
		return nil, fmt.Errorf("%w: no file id in %s", domain.ErrFileResolve, fileURL)
	}

	endpoint := (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/api/v1/files/" + id}).String()
	result, err := r.tasks.Fetch(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: file %s: %w", domain.ErrFileResolve, id, err)
	}

	var file canvasFile
	dec := json.NewDecoder(bytes.NewReader(result.Body))
	dec.UseNumber()
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode file %s: %w", domain.ErrFileResolve, id, err)
	}
	if file.URL == "" {
		return nil, fmt.Errorf("%w: file %s has no download url", domain.ErrFileResolve, id)
	}

	filename := file.Filename
	if unescaped, err := url.QueryUnescape(filename); err == nil {
		filename = unescaped
	}

	meta := &domain.FileMetadata{
		ID:          file.ID.String(),
		DisplayName: file.DisplayName,
		Filename:    filename,
		URL:         file.URL,
		ContentType: file.ContentType,
		Size:        file.Size,
	}
	if meta.ID == "" {
		meta.ID = id
	}

	r.logger.Debug("File resolved",
		zap.String("file_id", meta.ID),
		zap.String("filename", meta.Filename),
		zap.Int64("size", meta.Size))

	return meta, nil
}
