package middleware

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"lessonsync_go/database"
	"lessonsync_go/models"
	"lessonsync_go/utils"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// AuditQueueKey is the sorted set holding cached activity log keys awaiting flush
const AuditQueueKey = "logs:queue"

// RequestIDMiddleware reuses the caller's X-Request-ID or assigns a new one
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals("request_id", id)
		c.Set("X-Request-ID", id)
		return c.Next()
	}
}

// RequestID returns the id assigned by RequestIDMiddleware
func RequestID(c *fiber.Ctx) string {
	id, _ := c.Locals("request_id").(string)
	return id
}

// LoggerMiddleware logs HTTP requests
func LoggerMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		logrus.WithFields(logrus.Fields{
			"method":     c.Method(),
			"path":       c.Path(),
			"status":     c.Response().StatusCode(),
			"duration":   time.Since(start).String(),
			"ip":         c.IP(),
			"user_agent": c.Get("User-Agent"),
			"request_id": RequestID(c),
		}).Info("HTTP Request")

		return err
	}
}

// LogActivity records a scheduling operation. The record is cached in Redis
// (24-hour TTL plus the flush queue) and written to MySQL when Redis is down.
func LogActivity(c *fiber.Ctx, action, resource string, resourceID uint, details interface{}) {
	var userID uint
	if claims, err := GetCurrentClaims(c); err == nil {
		userID = claims.UserID
	}

	activityLog := models.ActivityLog{
		UserID:     userID,
		Action:     action,
		Resource:   resource,
		ResourceID: resourceID,
		IPAddress:  c.IP(),
		UserAgent:  c.Get("User-Agent"),
		RequestID:  RequestID(c),
	}
	activityLog.CreatedAt = time.Now()

	securityDetails := map[string]interface{}{
		"original_details": details,
		"integrity_hash":   generateIntegrityHash(activityLog),
		"method":           c.Method(),
		"path":             c.Path(),
		"query":            string(c.Request().URI().QueryString()),
		"status_code":      c.Response().StatusCode(),
		"timestamp_utc":    time.Now().UTC().Unix(),
	}
	if detailsBytes, err := json.Marshal(securityDetails); err == nil {
		activityLog.Details = detailsBytes
	}

	go func(al models.ActivityLog) {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithField("panic", r).Error("panic recovered in LogActivity goroutine")
			}
		}()

		if err := cacheActivityLog(database.GetRedisClient(), al); err != nil {
			logrus.WithError(err).Debug("Failed to cache activity log, saving directly to database")
			if database.DB == nil {
				logrus.WithFields(logrus.Fields{
					"action":      al.Action,
					"resource":    al.Resource,
					"resource_id": al.ResourceID,
					"user_id":     al.UserID,
				}).Info("Activity")
				return
			}
			if dbErr := database.DB.Create(&al).Error; dbErr != nil {
				logrus.WithError(dbErr).Error("Failed to save activity log to database")
			}
		}
	}(activityLog)
}

// generateIntegrityHash creates a hash for tamper detection
func generateIntegrityHash(log models.ActivityLog) string {
	data := fmt.Sprintf("%d:%s:%s:%d:%s:%s:%s",
		log.UserID,
		log.Action,
		log.Resource,
		log.ResourceID,
		log.IPAddress,
		log.RequestID,
		log.CreatedAt.Format(time.RFC3339),
	)
	return fmt.Sprintf("%x", md5.Sum([]byte(data)))
}

// cacheActivityLog stores activity log in Redis with 24-hour TTL
func cacheActivityLog(redisClient *redis.Client, log models.ActivityLog) error {
	if redisClient == nil {
		return fmt.Errorf("redis client is nil")
	}
	ctx := context.Background()

	logData, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %v", err)
	}

	cacheKey := fmt.Sprintf("log:%d:%s:%d", log.UserID, log.Action, time.Now().UnixNano())
	if err := redisClient.Set(ctx, cacheKey, logData, 24*time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to cache log: %v", err)
	}

	if err := redisClient.ZAdd(ctx, AuditQueueKey, &redis.Z{
		Score:  float64(time.Now().Unix()),
		Member: cacheKey,
	}).Err(); err != nil {
		logrus.WithError(err).Error("Failed to add log to processing queue")
	}
	return nil
}

// LogActivityMiddleware records every successful mutating request under /api
func LogActivityMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Method() == fiber.MethodGet || c.Method() == fiber.MethodHead {
			return c.Next()
		}

		err := c.Next()

		var action string
		switch c.Method() {
		case fiber.MethodPost:
			action = "CREATE"
		case fiber.MethodPut, fiber.MethodPatch:
			action = "UPDATE"
		case fiber.MethodDelete:
			action = "DELETE"
		default:
			return err
		}

		resource, resourceID := resourceFromPath(c.Path())
		if c.Response().StatusCode() < 400 {
			LogActivity(c, action, resource, resourceID, nil)
		}
		return err
	}
}

// resourceFromPath maps "/api/groups/12/courses/3/reconcile" to ("groups", 12)
func resourceFromPath(path string) (string, uint) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 {
		return "", 0
	}
	resource := parts[1]
	var id uint
	if len(parts) >= 3 {
		if parsed, err := utils.ParseUint(parts[2]); err == nil {
			id = parsed
		}
	}
	return resource, id
}
