package infrastructure

import (
	"errors"
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/garycarlyle/TVShow/internal/domain"
)

// SQLitePlaybackRepository implements PlaybackRepository using SQLite
type SQLitePlaybackRepository struct {
	db *gorm.DB
}

// NewSQLitePlaybackRepository creates a new SQLite repository
func NewSQLitePlaybackRepository(dbPath string) (*SQLitePlaybackRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.PlaybackRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLitePlaybackRepository{db: db}, nil
}

// Create creates a new record
func (r *SQLitePlaybackRepository) Create(record *domain.PlaybackRecord) error {
	return r.db.Create(record).Error
}

// Update updates an existing record
func (r *SQLitePlaybackRepository) Update(record *domain.PlaybackRecord) error {
	return r.db.Save(record).Error
}

// FindByID finds a record by session ID
func (r *SQLitePlaybackRepository) FindByID(id string) (*domain.PlaybackRecord, error) {
	var record domain.PlaybackRecord
	err := r.db.First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("playback session %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	return &record, nil
}

// FindByStatus finds records by status, newest first
func (r *SQLitePlaybackRepository) FindByStatus(status domain.DownloadState) ([]*domain.PlaybackRecord, error) {
	var records []*domain.PlaybackRecord
	err := r.db.Where("status = ?", status).
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// FindRecent returns up to limit records, newest first
func (r *SQLitePlaybackRepository) FindRecent(limit int) ([]*domain.PlaybackRecord, error) {
	var records []*domain.PlaybackRecord
	query := r.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// MarkInterrupted fails sessions left active by a previous run.
// Their partial data is not tracked any more.
func (r *SQLitePlaybackRepository) MarkInterrupted() (int64, error) {
	result := r.db.Model(&domain.PlaybackRecord{}).
		Where("status IN ?", []domain.DownloadState{domain.StateStarting, domain.StateDownloading, domain.StateBuffered}).
		Updates(map[string]interface{}{
			"status":        domain.StateFailed,
			"error_message": "interrupted by shutdown",
		})
	return result.RowsAffected, result.Error
}

// GetStats returns playback statistics
func (r *SQLitePlaybackRepository) GetStats() (*domain.PlaybackStats, error) {
	stats := &domain.PlaybackStats{}

	if err := r.db.Model(&domain.PlaybackRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	if err := r.db.Model(&domain.PlaybackRecord{}).
		Distinct("movie_id").
		Count(&stats.UniqueFilms).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.DownloadState
		Count  int64
	}{}

	if err := r.db.Model(&domain.PlaybackRecord{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.StateStarting, domain.StateDownloading:
			stats.Active += sc.Count
		case domain.StateBuffered:
			stats.Active += sc.Count
			stats.Buffered += sc.Count
		case domain.StateStopped:
			stats.Stopped = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLitePlaybackRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
