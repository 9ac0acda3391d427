package infrastructure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

// HTTPTaskProvider implements domain.TaskProvider over net/http
type HTTPTaskProvider struct {
	client *http.Client
	config *domain.FetchConfig
	logger *zap.Logger
}

// NewHTTPTaskProvider creates a new HTTP task provider
func NewHTTPTaskProvider(config *domain.FetchConfig, logger *zap.Logger) *HTTPTaskProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := config.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &HTTPTaskProvider{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        concurrency * 2,
				MaxIdleConnsPerHost: concurrency,
				IdleConnTimeout:     30 * time.Second,
			},
			Timeout: config.Timeout,
		},
		config: config,
		logger: logger,
	}
}

// Fetch downloads url, retrying transport errors and retryable statuses
func (p *HTTPTaskProvider) Fetch(ctx context.Context, url string) (*domain.FetchResult, error) {
	attempts := p.config.MaxRetries + 1
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := p.fetchOnce(ctx, url)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryable(err) || attempt == attempts {
			break
		}

		p.logger.Debug("Fetch failed, retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.config.RetryDelay):
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, lastErr
}

func (p *HTTPTaskProvider) fetchOnce(ctx context.Context, url string) (*domain.FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrInvalidURL, url, err)
	}
	if p.config.UserAgent != "" {
		req.Header.Set("User-Agent", p.config.UserAgent)
	}
	if p.authorizes(req.URL) {
		req.Header.Set("Authorization", "Bearer "+p.config.AccessToken)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &domain.StatusError{URL: url, StatusCode: resp.StatusCode}
	}

	reader := io.Reader(resp.Body)
	if p.config.MaxFileSize > 0 {
		reader = io.LimitReader(resp.Body, p.config.MaxFileSize+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	if p.config.MaxFileSize > 0 && int64(len(body)) > p.config.MaxFileSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrFetchFailed, url, p.config.MaxFileSize)
	}

	return &domain.FetchResult{
		URL:         resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

// authorizes reports whether the access token may be sent to u. Embedded
// assets often live on third-party hosts, so only the API host gets it.
func (p *HTTPTaskProvider) authorizes(u *url.URL) bool {
	if p.config.AccessToken == "" || p.config.APIHost == "" {
		return false
	}
	return strings.EqualFold(u.Host, p.config.APIHost)
}

// isRetryable reports whether a failed attempt may succeed when repeated
func isRetryable(err error) bool {
	var statusErr *domain.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Retryable()
	}
	if errors.Is(err, domain.ErrInvalidURL) || errors.Is(err, domain.ErrFetchFailed) {
		return false
	}
	return true
}
