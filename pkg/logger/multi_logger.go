package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogCategory represents different log categories
type LogCategory string

const (
	CategorySync  LogCategory = "sync"  // Sync job lifecycle events (JSON)
	CategoryError LogCategory = "error" // Application errors (JSON)
)

// Categories lists every category MultiLogger writes
func Categories() []LogCategory {
	return []LogCategory{CategorySync, CategoryError}
}

// ParseCategory validates a category name
func ParseCategory(name string) (LogCategory, bool) {
	for _, c := range Categories() {
		if string(c) == name {
			return c, true
		}
	}
	return "", false
}

type categoryLogger struct {
	logger *zap.Logger
	file   *os.File
	level  zapcore.Level
}

// MultiLogger writes categorized JSON logs to one file per category and day.
// A nil *MultiLogger discards everything.
type MultiLogger struct {
	loggers     map[LogCategory]*categoryLogger
	config      MultiLoggerConfig
	mu          sync.RWMutex
	currentDate string
	now         func() time.Time
}

// MultiLoggerConfig contains configuration for multi-output logging
type MultiLoggerConfig struct {
	Level   string // debug, info, warn, error
	LogsDir string // Directory for log files
}

// NewMultiLogger creates a new multi-output logger
func NewMultiLogger(config MultiLoggerConfig) (*MultiLogger, error) {
	if config.LogsDir == "" {
		return nil, fmt.Errorf("logs_dir must be specified")
	}

	if err := os.MkdirAll(config.LogsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	ml := &MultiLogger{
		loggers: make(map[LogCategory]*categoryLogger),
		config:  config,
		now:     time.Now,
	}
	ml.currentDate = ml.now().Format(dateLayout)

	levels := map[LogCategory]zapcore.Level{
		CategorySync:  ParseLevel(config.Level),
		CategoryError: zapcore.ErrorLevel,
	}
	for category, level := range levels {
		cl, err := ml.openCategory(category, level, ml.currentDate)
		if err != nil {
			ml.closeAll()
			return nil, fmt.Errorf("failed to create %s logger: %w", category, err)
		}
		ml.loggers[category] = cl
	}

	return ml, nil
}

const dateLayout = "20060102"

func (ml *MultiLogger) openCategory(category LogCategory, level zapcore.Level, date string) (*categoryLogger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "ts"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.MessageKey = "msg"
	encoderConfig.LevelKey = "level"
	encoderConfig.CallerKey = ""

	path := categoryLogPath(ml.config.LogsDir, category, date)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(file), level)
	return &categoryLogger{
		logger: zap.New(core).With(zap.String("category", string(category))),
		file:   file,
		level:  level,
	}, nil
}

func categoryLogPath(logsDir string, category LogCategory, date string) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s-%s.log", category, date))
}

// rotate reopens every category file when the day changes
func (ml *MultiLogger) rotate() {
	date := ml.now().Format(dateLayout)

	ml.mu.RLock()
	current := ml.currentDate
	ml.mu.RUnlock()
	if date == current {
		return
	}

	ml.mu.Lock()
	defer ml.mu.Unlock()
	if date == ml.currentDate {
		return
	}

	for category, old := range ml.loggers {
		cl, err := ml.openCategory(category, old.level, date)
		if err != nil {
			continue
		}
		old.logger.Sync()
		old.file.Close()
		ml.loggers[category] = cl
	}
	ml.currentDate = date
}

// GetLogsDir returns the logs directory path
func (ml *MultiLogger) GetLogsDir() string {
	return ml.config.LogsDir
}

// GetLogger returns the structured logger for a specific category
func (ml *MultiLogger) GetLogger(category LogCategory) *zap.Logger {
	if ml == nil {
		return zap.NewNop()
	}
	ml.rotate()

	ml.mu.RLock()
	defer ml.mu.RUnlock()

	if cl, ok := ml.loggers[category]; ok {
		return cl.logger
	}
	if cl, ok := ml.loggers[CategoryError]; ok {
		return cl.logger
	}
	return zap.NewNop()
}

// Sync returns the sync event logger
func (ml *MultiLogger) Sync() *zap.Logger {
	return ml.GetLogger(CategorySync)
}

// Error returns the error logger
func (ml *MultiLogger) Error() *zap.Logger {
	return ml.GetLogger(CategoryError)
}

// LogAppError logs an application-level error
func (ml *MultiLogger) LogAppError(msg string, fields ...zap.Field) {
	ml.Error().Error(msg, fields...)
}

// LogSyncEvent logs a sync job lifecycle event
func (ml *MultiLogger) LogSyncEvent(event string, fields ...zap.Field) {
	ml.Sync().Info(event, fields...)
}

// Flush flushes all loggers
func (ml *MultiLogger) Flush() error {
	if ml == nil {
		return nil
	}
	ml.mu.RLock()
	defer ml.mu.RUnlock()

	var lastErr error
	for _, cl := range ml.loggers {
		if err := cl.logger.Sync(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Close flushes and closes all log files
func (ml *MultiLogger) Close() error {
	if ml == nil {
		return nil
	}
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.closeAll()
}

func (ml *MultiLogger) closeAll() error {
	var lastErr error
	for category, cl := range ml.loggers {
		cl.logger.Sync()
		if err := cl.file.Close(); err != nil {
			lastErr = err
		}
		delete(ml.loggers, category)
	}
	return lastErr
}
