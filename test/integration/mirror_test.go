//go:build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/yourusername/offline-mirror-go/api"
	"github.com/yourusername/offline-mirror-go/internal/app"
	"github.com/yourusername/offline-mirror-go/internal/domain"
	"github.com/yourusername/offline-mirror-go/internal/infrastructure"
	"github.com/yourusername/offline-mirror-go/internal/offline"
)

// newOrigin serves a tiny course site with one image, one file and one broken asset
func newOrigin(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	var origin *httptest.Server

	mux.HandleFunc("/images/logo.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png-bytes"))
	})
	mux.HandleFunc("/api/v1/files/34", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"id":34,"display_name":"Notes","filename":"notes.pdf","url":"%s/blob/notes.pdf","content-type":"application/pdf","size":9}`, origin.URL)
	})
	mux.HandleFunc("/blob/notes.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("pdf-bytes"))
	})
	mux.HandleFunc("/slides.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("slides"))
	})

	origin = httptest.NewServer(mux)
	t.Cleanup(origin.Close)
	return origin
}

type stack struct {
	docs     string
	router   *gin.Engine
	queueMgr *app.QueueManager
	fetcher  *offline.ContentFetcher
}

func newStack(t *testing.T) *stack {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	dir := t.TempDir()
	config := domain.DefaultConfig()
	config.Offline.DocumentsDir = filepath.Join(dir, "docs")
	config.Offline.SessionID = "session"
	config.Fetch.MaxRetries = 0
	config.Sync.MaxRetries = 0
	config.Sync.CheckInterval = 20 * time.Millisecond

	repo, err := infrastructure.NewSQLiteSyncJobRepository(filepath.Join(dir, "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	tasks := infrastructure.NewHTTPTaskProvider(&config.Fetch, log)
	resolver := infrastructure.NewCanvasFileResolver(tasks, log)
	fetcher := offline.NewContentFetcher(tasks, resolver, afero.NewOsFs(), offline.FetcherConfig{
		DocumentsDir: config.Offline.DocumentsDir,
		SessionID:    config.Offline.SessionID,
		Section:      domain.SectionPages,
	}, log)

	syncMgr := app.NewSyncManager(repo, fetcher, nil, &config.Sync, config.Fetch.Concurrency, log)
	queueMgr := app.NewQueueManager(repo, syncMgr, &config.Sync, nil)

	return &stack{
		docs:     config.Offline.DocumentsDir,
		router:   api.SetupRouter(queueMgr, syncMgr, log, nil, filepath.Join(dir, "logs")),
		queueMgr: queueMgr,
		fetcher:  fetcher,
	}
}

func (s *stack) request(t *testing.T, method, path string, payload interface{}) (int, map[string]interface{}) {
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func TestMirror_PageThroughAPI(t *testing.T) {
	origin := newOrigin(t)
	s := newStack(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, s.queueMgr.Start(ctx))
	defer s.queueMgr.Stop()

	html := `<p><img src="/images/logo.png"></p>` +
		`<a class="instructure_file_link" href="/courses/1/files/34?wrap=1">Notes</a>` +
		`<img src="/missing.png">` +
		`<a href="/courses/1/pages/next">Next</a>`

	code, job := s.request(t, http.MethodPost, "/api/v1/sync/pages", map[string]string{
		"course_id":   "1",
		"resource_id": "2",
		"section":     "pages",
		"base_url":    origin.URL + "/courses/1/pages/intro",
		"html":        html,
	})
	require.Equal(t, http.StatusCreated, code)
	id := job["id"].(string)

	require.Eventually(t, func() bool {
		_, job = s.request(t, http.MethodGet, "/api/v1/sync/jobs/"+id, nil)
		return job["status"] == string(domain.StatusCompleted)
	}, 10*time.Second, 50*time.Millisecond)

	assert.EqualValues(t, 3, job["assets_total"])
	assert.EqualValues(t, 1, job["assets_failed"])

	folder := filepath.Join(s.docs, "session", "Offline", "course-1", "pages", "pages-2")
	assert.Equal(t, filepath.Join(folder, "body.html"), job["result_path"])

	logo, err := os.ReadFile(filepath.Join(folder, "logo.png"))
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(logo))

	notes, err := os.ReadFile(filepath.Join(folder, "file-34", "notes.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdf-bytes", string(notes))

	body, err := os.ReadFile(filepath.Join(folder, "body.html"))
	require.NoError(t, err)
	assert.Contains(t, string(body), `src="session/Offline/course-1/pages/pages-2/logo.png"`)
	assert.Contains(t, string(body), `href="session/Offline/course-1/pages/pages-2/file-34/notes.pdf"`)
	assert.Contains(t, string(body), `src="`+origin.URL+`/missing.png"`)
	assert.Contains(t, string(body), `href="`+origin.URL+`/courses/1/pages/next"`)
}

func TestMirror_Attachment(t *testing.T) {
	origin := newOrigin(t)
	s := newStack(t)

	downloader := offline.NewAttachmentDownloader(s.fetcher.WithSection(domain.SectionDiscussions), nil)
	rel, err := downloader.DownloadAttachment(context.Background(), origin.URL+"/slides.pdf", "1", "7")
	require.NoError(t, err)
	assert.Equal(t, "session/Offline/course-1/discussions/discussions-7/slides.pdf", rel)

	data, err := os.ReadFile(filepath.Join(s.docs, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, "slides", string(data))
}

func TestMirror_AttachmentNotFound(t *testing.T) {
	origin := newOrigin(t)
	s := newStack(t)

	downloader := offline.NewAttachmentDownloader(s.fetcher, nil)
	_, err := downloader.DownloadAttachment(context.Background(), origin.URL+"/gone.pdf", "1", "7")
	require.Error(t, err)

	var statusErr *domain.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
}
