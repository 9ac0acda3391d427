package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.NotNil(t, config)
	assert.Equal(t, "localhost", config.Server.Host)
	assert.Equal(t, 8080, config.Server.Port)
	assert.Equal(t, "default", config.Offline.SessionID)
	assert.Equal(t, 30*time.Second, config.Fetch.Timeout)
	assert.Equal(t, 6, config.Fetch.Concurrency)
	assert.Equal(t, 3, config.Sync.MaxRetries)
	assert.Equal(t, 5*time.Second, config.Sync.CheckInterval)
	assert.True(t, config.Sync.AutoStartWorkers)
	assert.False(t, config.Notification.Enabled)
	assert.Equal(t, "info", config.Logging.Level)
}
