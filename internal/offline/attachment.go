package offline

import (
	"context"

	"go.uber.org/zap"
)

// AttachmentDownloader mirrors a single file reference without HTML rewriting
type AttachmentDownloader struct {
	fetcher *ContentFetcher
	logger  *zap.Logger
}

// NewAttachmentDownloader creates a new attachment downloader
func NewAttachmentDownloader(fetcher *ContentFetcher, logger *zap.Logger) *AttachmentDownloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentDownloader{fetcher: fetcher, logger: logger}
}

// DownloadAttachment fetches url into the resource folder and returns its
// path relative to the documents root.
func (a *AttachmentDownloader) DownloadAttachment(ctx context.Context, url, courseID, resourceID string) (string, error) {
	localPath, err := a.fetcher.Download(ctx, url, courseID, resourceID, a.fetcher.DocumentsDir())
	if err != nil {
		return "", err
	}

	a.logger.Info("Attachment mirrored",
		zap.String("url", url),
		zap.String("course_id", courseID),
		zap.String("resource_id", resourceID),
		zap.String("path", localPath))

	return localPath, nil
}
