package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/offline-mirror-go/internal/domain"
)

func newTestQueueManager(f *syncFixture) *QueueManager {
	return NewQueueManager(f.repo, f.manager, f.manager.config, nil)
}

func TestAddPageJob_New(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	job, err := qm.AddPageJob("1", "2", domain.SectionPages, "https://canvas.test", "<p>hi</p>")
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, domain.KindPage, job.Kind)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Len(t, f.repo.jobs, 1)
}

func TestAddPageJob_UpdatesQueuedDuplicate(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	first, err := qm.AddPageJob("1", "2", domain.SectionPages, "https://canvas.test", "<p>v1</p>")
	require.NoError(t, err)

	second, err := qm.AddPageJob("1", "2", domain.SectionPages, "https://canvas.test", "<p>v2</p>")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "should reuse the queued job")
	assert.Len(t, f.repo.jobs, 1)

	stored, err := f.repo.FindByID(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "<p>v2</p>", stored.HTMLContent)
}

func TestAddPageJob_NewJobAfterCompletion(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	first, err := qm.AddPageJob("1", "2", domain.SectionPages, "https://canvas.test", "<p>v1</p>")
	require.NoError(t, err)
	first.MarkCompleted("body.html")
	require.NoError(t, f.repo.Update(first))

	second, err := qm.AddPageJob("1", "2", domain.SectionPages, "https://canvas.test", "<p>v2</p>")
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Len(t, f.repo.jobs, 2)
}

func TestAddPageJob_Validation(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	_, err := qm.AddPageJob("", "2", domain.SectionPages, "", "<p/>")
	assert.Error(t, err)

	_, err = qm.AddPageJob("1", "2", "wiki", "", "<p/>")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid section")

	for _, ids := range [][2]string{{"../../etc", "2"}, {"1", "../2"}, {"1", "a/b"}, {"..", "2"}} {
		_, err = qm.AddPageJob(ids[0], ids[1], domain.SectionPages, "", "<p/>")
		require.Error(t, err, ids)
		assert.True(t, errors.Is(err, domain.ErrInvalidJob), ids)
	}
	_, err = qm.AddAttachmentJob("1", "../../x", domain.SectionFiles, "https://canvas.test/a.pdf")
	assert.True(t, errors.Is(err, domain.ErrInvalidJob))

	_, err = qm.AddPageJob("1", "2", domain.SectionPages, "ftp://canvas.test", "<p/>")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidURL))

	assert.Empty(t, f.repo.jobs)
}

func TestAddAttachmentJob_Dedup(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	first, err := qm.AddAttachmentJob("1", "2", domain.SectionDiscussions, "https://canvas.test/a.pdf")
	require.NoError(t, err)

	same, err := qm.AddAttachmentJob("1", "2", domain.SectionDiscussions, "https://canvas.test/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID)

	other, err := qm.AddAttachmentJob("1", "2", domain.SectionDiscussions, "https://canvas.test/b.pdf")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	assert.Len(t, f.repo.jobs, 2)
}

func TestAddAttachmentJob_AllowsRetryAfterFailure(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	first, err := qm.AddAttachmentJob("1", "2", domain.SectionFiles, "https://canvas.test/a.pdf")
	require.NoError(t, err)
	first.MarkFailed(assert.AnError)
	require.NoError(t, f.repo.Update(first))

	second, err := qm.AddAttachmentJob("1", "2", domain.SectionFiles, "https://canvas.test/a.pdf")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestAddAttachmentJob_InvalidURL(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	_, err := qm.AddAttachmentJob("1", "2", domain.SectionFiles, "/relative.pdf")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidURL))
}

func TestQueueManager_GetListStats(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	a, err := qm.AddAttachmentJob("1", "2", domain.SectionFiles, "https://canvas.test/a.pdf")
	require.NoError(t, err)
	_, err = qm.AddPageJob("3", "4", domain.SectionPages, "", "<p/>")
	require.NoError(t, err)

	got, err := qm.GetJob(a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.SourceURL, got.SourceURL)

	jobs, err := qm.ListJobs(map[string]interface{}{"course_id": "3"})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)

	stats, err := qm.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(2), stats.Queued)
}

func TestQueueManager_StartStop(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	require.NoError(t, qm.Start(context.Background()))
	assert.True(t, qm.IsRunning())
	assert.Error(t, qm.Start(context.Background()), "double start")

	require.NoError(t, qm.Stop())
	assert.False(t, qm.IsRunning())
	assert.Error(t, qm.Stop(), "double stop")

	require.NoError(t, qm.Start(context.Background()), "restart after stop")
	require.NoError(t, qm.Stop())
}

func TestQueueManager_ProcessesQueuedJobs(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	orphan := domain.NewAttachmentJob("5", "6", domain.SectionFiles, "https://canvas.test/orphan.pdf")
	orphan.MarkProcessing()
	require.NoError(t, f.repo.Create(orphan))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, qm.Start(ctx))
	defer qm.Stop()

	page, err := qm.AddPageJob("1", "2", domain.SectionPages, "https://canvas.test", `<img src="/a.png">`)
	require.NoError(t, err)
	attachment, err := qm.AddAttachmentJob("1", "3", domain.SectionFiles, "https://canvas.test/b.pdf")
	require.NoError(t, err)

	for _, id := range []string{page.ID, attachment.ID, orphan.ID} {
		id := id
		require.Eventually(t, func() bool {
			return f.repo.status(id) == domain.StatusCompleted
		}, 5*time.Second, 10*time.Millisecond)
	}
}

func TestQueueManager_NotifiesWhenDrained(t *testing.T) {
	f := newSyncFixture()
	qm := newTestQueueManager(f)

	require.NoError(t, qm.Start(context.Background()))
	defer qm.Stop()

	time.Sleep(5 * f.manager.config.CheckInterval)
	assert.Zero(t, f.notifier.drainedCount(), "an idle queue never drained anything")

	_, err := qm.AddAttachmentJob("1", "3", domain.SectionFiles, "https://canvas.test/b.pdf")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.notifier.drainedCount() == 1
	}, 5*time.Second, 10*time.Millisecond)
}
