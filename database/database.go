package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"lessonsync_go/config"
	"lessonsync_go/models"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB
var RedisClient *redis.Client

// Connect initializes the database and Redis connections.
// Either may be left nil; callers degrade to in-memory stores.
func Connect() {
	if config.AppConfig.SkipDatabase {
		log.Println("SKIP_DATABASE=true - running without MySQL")
	} else {
		connectDatabase()
	}
	connectRedis()
}

// connectDatabase initializes the database connection
func connectDatabase() {
	dsn := config.AppConfig.GetDSN()

	var gormLogger logger.Interface
	if config.AppConfig.AppEnv == "development" {
		gormLogger = logger.Default.LogMode(logger.Info)
	} else {
		gormLogger = logger.Default.LogMode(logger.Silent)
	}

	// Retry logic for transient tunnel issues
	var (
		db      *gorm.DB
		lastErr error
	)
	for attempt := 1; attempt <= 8; attempt++ {
		var err error
		db, err = gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
		if err == nil {
			lastErr = nil
			break
		}
		lastErr = err
		log.Printf("Database connect attempt %d failed: %v", attempt, err)
		time.Sleep(time.Duration(attempt*attempt) * 300 * time.Millisecond)
	}
	if lastErr != nil {
		log.Fatal("Failed to connect to database after retries:", lastErr)
	}
	DB = db

	log.Println("Database connected successfully")

	sqlDB, err := DB.DB()
	if err != nil {
		log.Fatal("Failed to get database instance:", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(55 * time.Minute)

	if config.AppConfig.SkipMigrate {
		log.Println("SKIP_MIGRATE=true - skipping auto migration")
		return
	}
	AutoMigrate()
}

// AutoMigrate performs automatic database migration
func AutoMigrate() {
	err := DB.AutoMigrate(
		&models.ScheduleConfig{},
		&models.ActivityLog{},
	)
	if err != nil {
		log.Fatal("Auto migration failed:", err)
	}
	log.Println("Database migration completed successfully")
}

// connectRedis initializes Redis connection
func connectRedis() {
	RedisClient = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", config.AppConfig.RedisHost, config.AppConfig.RedisPort),
		Password: config.AppConfig.RedisPassword,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		log.Printf("Redis connection failed: %v", err)
		log.Println("Continuing without Redis - rules and audit logs go straight to the database")
		RedisClient = nil
		return
	}

	log.Println("Redis connected successfully")
}

// GetRedisClient returns the Redis client instance
func GetRedisClient() *redis.Client {
	return RedisClient
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}

// Close closes the database and Redis connections
func Close() {
	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			log.Println("Error closing Redis connection:", err)
		}
	}
	if DB == nil {
		return
	}
	sqlDB, err := DB.DB()
	if err != nil {
		log.Println("Error getting database instance:", err)
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Println("Error closing database connection:", err)
		return
	}
	log.Println("Database connection closed")
}
