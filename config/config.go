package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ssm"
	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string

	// JWT
	JWTSecret string

	// AWS S3
	AWSRegion    string
	S3BucketName string

	// Server
	Port   string
	AppEnv string

	// Logging
	LogLevel string
	LogFile  string

	// School backend
	BackendBaseURL string
	BackendTimeout time.Duration

	// Scheduling
	Timezone      string
	OrphanGroupID uint
	RuleStore     string

	// Audit log flush (cron spec)
	AuditFlushSpec string

	// Feature Toggles
	SkipDatabase bool
	SkipMigrate  bool
}

func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?charset=utf8mb4&parseTime=True&loc=Local"
}

// Location resolves Timezone, falling back to UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Printf("Warning: unknown TIMEZONE %q, using UTC", c.Timezone)
		return time.UTC
	}
	return loc
}

// InMemoryBackend reports whether the school backend is simulated in process
func (c *Config) InMemoryBackend() bool {
	return strings.EqualFold(c.BackendBaseURL, "memory")
}

var AppConfig *Config

func LoadConfig() {
	AppConfig = Load()
	validateConfig(AppConfig, getEnv("USE_SSM", "false") == "true")
}

// Load reads configuration from SSM (USE_SSM=true) or .env and the environment
func Load() *Config {
	useSSM := getEnv("USE_SSM", "false") == "true"

	var paramMap map[string]string

	// Stage & base path for SSM (allows multi-env without code changes)
	basePath := getEnv("SSM_BASE_PATH", "/lessonsync")
	stage := getEnv("STAGE", getEnv("APP_ENV", "production"))
	basePath = strings.TrimRight(basePath, "/")
	prefix := basePath + "/" + stage

	if useSSM {
		sess, err := session.NewSession(&aws.Config{Region: aws.String(getEnv("AWS_REGION", "ap-southeast-1"))})
		if err != nil {
			log.Fatal("Failed to create AWS session:", err)
		}
		log.Printf("Using AWS SSM Parameter Store (prefix=%s)", prefix)
		paramMap = fetchSSMParameters(ssm.New(sess), prefix)
	} else {
		if err := godotenv.Load(); err != nil {
			log.Println("Warning: .env file not found, using environment variables")
		}
	}

	getVal := func(key, def string) string {
		if useSSM {
			if v, ok := paramMap[strings.ToUpper(key)]; ok && v != "" {
				return v
			}
		}
		return getEnv(strings.ToUpper(key), def)
	}

	backendTimeout, err := time.ParseDuration(getVal("BACKEND_TIMEOUT", "15s"))
	if err != nil {
		log.Fatal("Invalid BACKEND_TIMEOUT format:", err)
	}

	orphanGroupID, err := strconv.ParseUint(getVal("ORPHAN_GROUP_ID", "999999"), 10, 64)
	if err != nil {
		log.Fatal("Invalid ORPHAN_GROUP_ID format:", err)
	}

	return &Config{
		DBHost:     getVal("DB_HOST", "localhost"),
		DBPort:     getVal("DB_PORT", "3306"),
		DBUser:     getVal("DB_USER", "root"),
		DBPassword: getVal("DB_PASSWORD", ""),
		DBName:     getVal("DB_NAME", "lessonsync"),

		RedisHost:     getVal("REDIS_HOST", "localhost"),
		RedisPort:     getVal("REDIS_PORT", "6379"),
		RedisPassword: getVal("REDIS_PASSWORD", ""),

		JWTSecret: getVal("JWT_SECRET", ""),

		AWSRegion:    getVal("AWS_REGION", "ap-southeast-1"),
		S3BucketName: getVal("S3_BUCKET_NAME", ""),

		Port:   getVal("PORT", "3000"),
		AppEnv: getVal("APP_ENV", "development"),

		LogLevel: getVal("LOG_LEVEL", "info"),
		LogFile:  getVal("LOG_FILE", "logs/app.log"),

		BackendBaseURL: getVal("BACKEND_BASE_URL", "http://localhost:8000/api"),
		BackendTimeout: backendTimeout,

		Timezone:      getVal("TIMEZONE", "Asia/Bangkok"),
		OrphanGroupID: uint(orphanGroupID),
		RuleStore:     strings.ToLower(getVal("RULE_STORE", "layered")),

		AuditFlushSpec: getVal("AUDIT_FLUSH_SPEC", "@every 5m"),

		SkipDatabase: strings.ToLower(getVal("SKIP_DATABASE", "false")) == "true",
		SkipMigrate:  strings.ToLower(getVal("SKIP_MIGRATE", "false")) == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// fetchSSMParameters reads all parameters under prefix and returns map with UPPERCASE keys.
func fetchSSMParameters(client *ssm.SSM, prefix string) map[string]string {
	out := make(map[string]string)
	next := aws.String("")
	for {
		in := &ssm.GetParametersByPathInput{
			Path:           aws.String(prefix),
			WithDecryption: aws.Bool(true),
			Recursive:      aws.Bool(true),
		}
		if *next != "" {
			in.NextToken = next
		}
		resp, err := client.GetParametersByPath(in)
		if err != nil {
			log.Printf("Warning: unable to fetch SSM parameters for prefix %s: %v", prefix, err)
			break
		}
		for _, p := range resp.Parameters {
			if p.Name == nil || p.Value == nil {
				continue
			}
			key := ssmKey(*p.Name)
			if key == "" {
				continue
			}
			out[key] = *p.Value
		}
		if resp.NextToken == nil || *resp.NextToken == "" {
			break
		}
		next = resp.NextToken
	}
	return out
}

// ssmKey maps "/lessonsync/production/backend_base_url" to "BACKEND_BASE_URL"
func ssmKey(name string) string {
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	return strings.ToUpper(name)
}

func validateConfig(c *Config, usedSSM bool) {
	// Only enforce stricter rules in production
	if strings.ToLower(c.AppEnv) != "production" {
		return
	}
	required := map[string]string{
		"BACKEND_BASE_URL": c.BackendBaseURL,
		"JWT_SECRET":       c.JWTSecret,
	}
	if !c.SkipDatabase {
		required["DB_PASSWORD"] = c.DBPassword
	}
	for k, v := range required {
		if strings.TrimSpace(v) == "" {
			log.Fatalf("Missing required setting %s in production (SSM=%v)", k, usedSSM)
		}
	}
	if len(c.JWTSecret) < 16 {
		log.Fatal("JWT_SECRET too short (min 16 chars)")
	}
	if c.InMemoryBackend() {
		log.Fatal("BACKEND_BASE_URL=memory is not allowed in production")
	}
}
