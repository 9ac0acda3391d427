package domain

import "context"

// FetchResult is the body of a fetched remote resource
type FetchResult struct {
	URL         string // final URL after redirects
	ContentType string
	Body        []byte
}

// TaskProvider fetches remote resources
type TaskProvider interface {
	// Fetch retrieves the resource at url
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// FileMetadata describes a file served by a file endpoint
type FileMetadata struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Filename    string `json:"filename"`
	URL         string `json:"url"` // concrete download URL
	ContentType string `json:"content-type"`
	Size        int64  `json:"size"`
}

// FileResolver maps a file endpoint URL to a concrete download URL
type FileResolver interface {
	// ResolveFile looks up the metadata of the file behind fileURL
	ResolveFile(ctx context.Context, fileURL string) (*FileMetadata, error)
}
