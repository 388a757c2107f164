package services

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lessonsync_go/middleware"
	"lessonsync_go/models"

	"github.com/go-redis/redis/v8"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ArchiveUploader stores archive files
type ArchiveUploader interface {
	UploadBytes(ctx context.Context, folder, filename string, data []byte) (string, error)
}

// AuditService flushes cached activity logs into MySQL and archives old ones to S3
type AuditService struct {
	redisClient *redis.Client
	db          *gorm.DB
	uploader    ArchiveUploader
	archiveDays int
	cron        *cron.Cron
}

// NewAuditService creates the service. Any collaborator may be nil; the
// matching step is then skipped.
func NewAuditService(redisClient *redis.Client, db *gorm.DB, uploader ArchiveUploader) *AuditService {
	return &AuditService{
		redisClient: redisClient,
		db:          db,
		uploader:    uploader,
		archiveDays: 30,
	}
}

// FlushCachedLogsToDatabase moves every queued log from Redis into the database
func (as *AuditService) FlushCachedLogsToDatabase(ctx context.Context) error {
	if as.redisClient == nil {
		return fmt.Errorf("redis client not available")
	}
	if as.db == nil {
		return fmt.Errorf("database not available")
	}

	queued, err := as.redisClient.ZRangeByScore(ctx, middleware.AuditQueueKey, &redis.ZRangeBy{
		Min: "0",
		Max: fmt.Sprintf("%d", time.Now().Unix()),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read log queue: %v", err)
	}
	if len(queued) == 0 {
		return nil
	}

	var processedCount, errorCount int
	for _, logKey := range queued {
		logData, err := as.redisClient.Get(ctx, logKey).Result()
		if err != nil {
			if err == redis.Nil {
				// expired before the flush ran
				as.redisClient.ZRem(ctx, middleware.AuditQueueKey, logKey)
			} else {
				logrus.WithError(err).WithField("key", logKey).Error("Failed to get cached log")
				errorCount++
			}
			continue
		}

		var activityLog models.ActivityLog
		if err := json.Unmarshal([]byte(logData), &activityLog); err != nil {
			logrus.WithError(err).WithField("key", logKey).Error("Failed to unmarshal cached log")
			errorCount++
			continue
		}
		activityLog.ID = 0

		if err := as.db.WithContext(ctx).Create(&activityLog).Error; err != nil {
			logrus.WithError(err).WithField("key", logKey).Error("Failed to save log to database")
			errorCount++
			continue
		}

		pipeline := as.redisClient.Pipeline()
		pipeline.Del(ctx, logKey)
		pipeline.ZRem(ctx, middleware.AuditQueueKey, logKey)
		if _, err := pipeline.Exec(ctx); err != nil {
			logrus.WithError(err).WithField("key", logKey).Error("Failed to remove log from cache")
		}
		processedCount++
	}

	logrus.WithFields(logrus.Fields{"flushed": processedCount, "errors": errorCount}).Info("Flushed cached activity logs")
	return nil
}

// ArchiveOldLogs zips logs older than daysOld, uploads them and deletes them from the database
func (as *AuditService) ArchiveOldLogs(ctx context.Context, daysOld int) error {
	if daysOld < 7 {
		return fmt.Errorf("minimum archive age is 7 days for safety")
	}
	if as.db == nil || as.uploader == nil {
		return fmt.Errorf("archiving needs both database and storage")
	}

	cutoffDate := time.Now().AddDate(0, 0, -daysOld)
	var logs []models.ActivityLog
	if err := as.db.WithContext(ctx).Where("created_at < ?", cutoffDate).Order("created_at").Find(&logs).Error; err != nil {
		return fmt.Errorf("failed to fetch logs for archiving: %v", err)
	}
	if len(logs) == 0 {
		return nil
	}

	fileName := fmt.Sprintf("activity_logs_%s.zip", cutoffDate.Format(models.DateLayout))
	archive, err := createZipArchive(logs, fileName)
	if err != nil {
		return fmt.Errorf("failed to create ZIP archive: %v", err)
	}
	key, err := as.uploader.UploadBytes(ctx, "logs/archived", fileName, archive.Bytes())
	if err != nil {
		return fmt.Errorf("failed to upload archive: %v", err)
	}

	result := as.db.WithContext(ctx).Where("created_at < ?", cutoffDate).Delete(&models.ActivityLog{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete archived logs: %v", result.Error)
	}
	logrus.WithFields(logrus.Fields{"key": key, "archived": len(logs), "deleted": result.RowsAffected}).Info("Archived activity logs")
	return nil
}

// createZipArchive creates a ZIP file containing the logs as JSON
func createZipArchive(logs []models.ActivityLog, fileName string) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	zipWriter := zip.NewWriter(buf)

	logsFile, err := zipWriter.Create("activity_logs.json")
	if err != nil {
		return nil, fmt.Errorf("failed to create logs file in ZIP: %v", err)
	}
	encoder := json.NewEncoder(logsFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(map[string]any{
		"file_name":      fileName,
		"export_date":    time.Now().UTC(),
		"record_count":   len(logs),
		"format_version": "1.0",
		"logs":           logs,
	}); err != nil {
		return nil, fmt.Errorf("failed to encode logs to JSON: %v", err)
	}

	if err := zipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close ZIP writer: %v", err)
	}
	return buf, nil
}

// Start schedules the flush on spec and the archive once a day
func (as *AuditService) Start(spec string) error {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() {
		if err := as.FlushCachedLogsToDatabase(context.Background()); err != nil {
			logrus.WithError(err).Debug("Audit flush skipped")
		}
	}); err != nil {
		return fmt.Errorf("invalid audit flush schedule %q: %v", spec, err)
	}
	if _, err := c.AddFunc("@daily", func() {
		if err := as.ArchiveOldLogs(context.Background(), as.archiveDays); err != nil {
			logrus.WithError(err).Debug("Audit archive skipped")
		}
	}); err != nil {
		return err
	}
	c.Start()
	as.cron = c
	logrus.WithField("spec", spec).Info("Audit log maintenance scheduled")
	return nil
}

// Stop waits for a running job and stops the scheduler
func (as *AuditService) Stop() {
	if as.cron == nil {
		return
	}
	<-as.cron.Stop().Done()
}
