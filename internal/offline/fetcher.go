package offline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

// FetcherConfig configures a ContentFetcher
type FetcherConfig struct {
	DocumentsDir string
	SessionID    string
	Section      domain.Section
}

// ContentFetcher retrieves single remote resources and stores them under
// the offline folder layout.
type ContentFetcher struct {
	tasks    domain.TaskProvider
	resolver domain.FileResolver
	fs       afero.Fs
	config   FetcherConfig
	logger   *zap.Logger
}

// NewContentFetcher creates a new content fetcher
func NewContentFetcher(
	tasks domain.TaskProvider,
	resolver domain.FileResolver,
	fs afero.Fs,
	config FetcherConfig,
	logger *zap.Logger,
) *ContentFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &ContentFetcher{
		tasks:    tasks,
		resolver: resolver,
		fs:       fs,
		config:   config,
		logger:   logger,
	}
}

// WithSection returns a fetcher that stores resources under another section
func (f *ContentFetcher) WithSection(section domain.Section) *ContentFetcher {
	clone := *f
	clone.config.Section = section
	return &clone
}

// Section returns the section this fetcher stores resources under
func (f *ContentFetcher) Section() domain.Section {
	return f.config.Section
}

// DocumentsDir returns the configured documents root
func (f *ContentFetcher) DocumentsDir() string {
	return f.config.DocumentsDir
}

// ResourceFolder returns the on-disk folder of a resource
func (f *ContentFetcher) ResourceFolder(courseID, resourceID, documentsDir string) string {
	rel := domain.FolderPath(f.config.SessionID, courseID, f.config.Section, resourceID)
	return filepath.Join(documentsDir, filepath.FromSlash(rel))
}

// Download fetches rawURL and writes it into the resource folder. The
// returned path is relative to documentsDir.
func (f *ContentFetcher) Download(ctx context.Context, rawURL, courseID, resourceID, documentsDir string) (string, error) {
	u, err := parseRemoteURL(rawURL)
	if err != nil {
		return "", err
	}
	return f.downloadAs(ctx, u, assetFileName(u), courseID, resourceID, documentsDir)
}

// downloadAs stores u under filename, which may contain one subfolder
func (f *ContentFetcher) downloadAs(ctx context.Context, u *url.URL, filename, courseID, resourceID, documentsDir string) (string, error) {
	if err := checkIDs(courseID, resourceID); err != nil {
		return "", err
	}
	target := domain.NewDownloadTarget(u, f.config.SessionID, courseID, f.config.Section, resourceID)
	return f.fetchTo(ctx, target, filename, documentsDir)
}

// DownloadFile resolves a file endpoint to its download URL and fetches it.
// A file that cannot be resolved or fetched yields rawURL so the reference
// stays reachable online.
func (f *ContentFetcher) DownloadFile(ctx context.Context, rawURL, courseID, resourceID string) string {
	localPath, err := f.downloadFile(ctx, rawURL, courseID, resourceID)
	if err != nil {
		f.logger.Warn("File download failed, keeping remote URL",
			zap.String("url", rawURL),
			zap.String("course_id", courseID),
			zap.String("resource_id", resourceID),
			zap.Error(err))
		return rawURL
	}
	return localPath
}

func (f *ContentFetcher) downloadFile(ctx context.Context, rawURL, courseID, resourceID string) (string, error) {
	if err := checkIDs(courseID, resourceID); err != nil {
		return "", err
	}
	if f.resolver == nil {
		return "", fmt.Errorf("%w: no file resolver configured", domain.ErrFileResolve)
	}

	meta, err := f.resolver.ResolveFile(ctx, rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrFileResolve, rawURL, err)
	}

	u, err := parseRemoteURL(meta.URL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrFileResolve, rawURL, err)
	}

	filename := sanitizeFileName(meta.Filename)
	if filename == "" {
		filename = sanitizeFileName(meta.DisplayName)
	}
	if filename == "" {
		filename = FileNameFromURL(u)
	}
	if domain.ValidatePathID(meta.ID) {
		filename = path.Join("file-"+meta.ID, filename)
	} else if strings.EqualFold(filename, domain.BodyFileName) {
		filename = hashedName(u, filename)
	}

	target := domain.NewDownloadTarget(u, f.config.SessionID, courseID, f.config.Section, resourceID)
	return f.fetchTo(ctx, target, filename, f.config.DocumentsDir)
}

// SaveBaseContent writes content to folder/body.html and returns content
func (f *ContentFetcher) SaveBaseContent(ctx context.Context, content, folder string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dest := filepath.Join(folder, domain.BodyFileName)
	if f.config.DocumentsDir != "" && !within(f.config.DocumentsDir, dest) {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidPath, dest)
	}
	if err := f.writeFile(dest, []byte(content)); err != nil {
		return "", err
	}

	f.logger.Debug("Base content saved", zap.String("path", dest), zap.Int("bytes", len(content)))
	return content, nil
}

// fetchTo downloads target and stores it as filename inside the target folder
func (f *ContentFetcher) fetchTo(ctx context.Context, target domain.DownloadTarget, filename, documentsDir string) (string, error) {
	remote := target.RemoteURL.String()

	rel := target.Path(filename)
	dest := filepath.Join(documentsDir, filepath.FromSlash(rel))
	if !within(documentsDir, dest) {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidPath, rel)
	}

	result, err := f.tasks.Fetch(ctx, remote)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", domain.ErrFetchFailed, remote, err)
	}

	if err := f.writeFile(dest, result.Body); err != nil {
		return "", err
	}

	f.logger.Debug("Asset downloaded",
		zap.String("url", remote),
		zap.String("path", rel),
		zap.Int("bytes", len(result.Body)))

	return rel, nil
}

// writeFile replaces dest atomically so the last concurrent writer wins
func (f *ContentFetcher) writeFile(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := f.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create directory %s: %w", domain.ErrWriteFailed, dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(dest)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, dest, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		f.fs.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, dest, err)
	}
	if err := tmp.Close(); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, dest, err)
	}
	if err := f.fs.Rename(tmpName, dest); err != nil {
		f.fs.Remove(tmpName)
		return fmt.Errorf("%w: %s: %w", domain.ErrWriteFailed, dest, err)
	}

	return nil
}

// FileNameFromURL returns the last path component of u, or a stable
// hash-based name when the path has none.
func FileNameFromURL(u *url.URL) string {
	if name := sanitizeFileName(path.Base(u.Path)); name != "" {
		return name
	}
	sum := sha1.Sum([]byte(u.String()))
	return "asset-" + hex.EncodeToString(sum[:8])
}

// assetFileName is FileNameFromURL with body.html moved out of the way
func assetFileName(u *url.URL) string {
	name := FileNameFromURL(u)
	if strings.EqualFold(name, domain.BodyFileName) {
		return hashedName(u, name)
	}
	return name
}

// hashedName places name in a subfolder derived from u so that different
// URLs sharing a last path segment land in different files
func hashedName(u *url.URL, name string) string {
	sum := sha1.Sum([]byte(u.String()))
	return path.Join("asset-"+hex.EncodeToString(sum[:4]), name)
}

// checkIDs rejects IDs that would escape their folder level
func checkIDs(courseID, resourceID string) error {
	if !domain.ValidatePathID(courseID) || !domain.ValidatePathID(resourceID) {
		return fmt.Errorf("%w: course %q resource %q", domain.ErrInvalidPath, courseID, resourceID)
	}
	return nil
}

// within reports whether target is inside root
func within(root, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	if name == "" || name == "." || name == ".." || name == "_" {
		return ""
	}
	return name
}

func parseRemoteURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidURL, rawURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidURL, rawURL)
	}
	return u, nil
}
