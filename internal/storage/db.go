// Package storage persists articles, analyses and aggregated forecasts in SQLite.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"news-forecaster/internal/logger"
	"news-forecaster/internal/types"
)

var (
	// ErrLockContention marks a write that kept hitting a locked database.
	ErrLockContention = errors.New("database lock contention")
	// ErrFatal marks a write that failed for good.
	ErrFatal = errors.New("storage failure")
)

// Open connects to the SQLite file at path and migrates the schema.
func Open(path string, busyTimeoutMS int) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL", path, busyTimeoutMS)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: &gormLog{slow: 500 * time.Millisecond, level: gormlogger.Warn},
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := db.AutoMigrate(
		&types.Article{},
		&types.Analysis{},
		&types.Prediction{},
		&types.SummarizedAnalysis{},
		&types.SummarizedPrediction{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// isLocked reports whether err is SQLite's transient busy/locked condition.
func isLocked(err error) bool {
	if err == nil {
		return false
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// gormLog routes gorm's messages into the structured logger.
type gormLog struct {
	slow  time.Duration
	level gormlogger.LogLevel
}

func (l *gormLog) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *gormLog) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Info {
		logger.Debug(ctx, "gorm: "+fmt.Sprintf(msg, data...))
	}
}

func (l *gormLog) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Warn {
		logger.Warn(ctx, "gorm: "+fmt.Sprintf(msg, data...))
	}
}

func (l *gormLog) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= gormlogger.Error {
		logger.Error(ctx, "gorm: "+fmt.Sprintf(msg, data...))
	}
}

func (l *gormLog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !isLocked(err):
		sql, rows := fc()
		logger.Debug(ctx, "SQL error", "sql", sql, "rows", rows, "duration_ms", elapsed.Milliseconds(), "error", err)
	case l.slow > 0 && elapsed > l.slow:
		sql, rows := fc()
		logger.Warn(ctx, "Slow SQL", "sql", sql, "rows", rows, "duration_ms", elapsed.Milliseconds())
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		logger.Debug(ctx, "SQL", "sql", sql, "rows", rows, "duration_ms", elapsed.Milliseconds())
	}
}
