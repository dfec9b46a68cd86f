package infrastructure

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	JWT       JWTConfig
	Telemetry TelemetryConfig
	Redis     RedisConfig
	Docker    DockerConfig
	AI        AIConfig
	Bootstrap BootstrapConfig
	CORS      CORSConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Environment  string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// JWTConfig holds JWT authentication configuration
type JWTConfig struct {
	SecretKey          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	Enabled         bool
	ServiceName     string
	ServiceVersion  string
	Environment     string
	OTLPEndpoint    string
	MetricsEndpoint string
}

// RedisConfig holds the scoreboard cache connection
type RedisConfig struct {
	Enabled       bool
	Addr          string
	Password      string
	DB            int
	PoolSize      int
	ScoreboardTTL time.Duration
}

// DockerConfig holds container backend settings
type DockerConfig struct {
	Enabled          bool
	Host             string // empty uses DOCKER_HOST and friends
	PortRangeStart   int
	PortRangeEnd     int
	PublicHost       string
	ContainerPort    int
	MemoryLimitMB    int64
	CPUQuota         int64
	CPUPeriod        int64
	StartGracePeriod time.Duration
	MaxContainerAge  time.Duration
	ReapInterval     time.Duration
	BuildTimeout     time.Duration
}

// AIConfig holds defaults applied to provider calls
type AIConfig struct {
	RequestTimeout     time.Duration
	DefaultMaxTokens   int
	DefaultTemperature float64
}

// BootstrapConfig holds the first administrator account
type BootstrapConfig struct {
	AdminUsername string
	AdminEmail    string
	AdminPassword string
}

// CORSConfig holds allowed browser origins
type CORSConfig struct {
	AllowOrigins []string
	MaxAge       time.Duration
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT", 10)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT", 300)) * time.Second,
			Environment:  getEnv("ENVIRONMENT", "development"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "ctf_platform"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: time.Duration(getEnvInt("DB_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			SecretKey:          getEnv("JWT_SECRET", "your-super-secret-key-change-in-production"),
			AccessTokenExpiry:  time.Duration(getEnvInt("JWT_ACCESS_EXPIRY_MINUTES", 60)) * time.Minute,
			RefreshTokenExpiry: time.Duration(getEnvInt("JWT_REFRESH_EXPIRY_HOURS", 168)) * time.Hour, // 7 days
			Issuer:             getEnv("JWT_ISSUER", "ctf-platform"),
		},
		Telemetry: TelemetryConfig{
			Enabled:         getEnvBool("TELEMETRY_ENABLED", true),
			ServiceName:     getEnv("SERVICE_NAME", "ctf-platform-api"),
			ServiceVersion:  getEnv("SERVICE_VERSION", "1.0.0"),
			Environment:     getEnv("ENVIRONMENT", "development"),
			OTLPEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4318"),
			MetricsEndpoint: getEnv("METRICS_ENDPOINT", "/metrics"),
		},
		Redis: RedisConfig{
			Enabled:       getEnvBool("REDIS_ENABLED", false),
			Addr:          getEnv("REDIS_ADDR", "localhost:6379"),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			PoolSize:      getEnvInt("REDIS_POOL_SIZE", 20),
			ScoreboardTTL: time.Duration(getEnvInt("SCOREBOARD_CACHE_SECONDS", 60)) * time.Second,
		},
		Docker: DockerConfig{
			Enabled:          getEnvBool("DOCKER_ENABLED", true),
			Host:             getEnv("DOCKER_ENDPOINT", ""),
			PortRangeStart:   getEnvInt("DOCKER_PORT_RANGE_START", 30000),
			PortRangeEnd:     getEnvInt("DOCKER_PORT_RANGE_END", 40000),
			PublicHost:       getEnv("DOCKER_PUBLIC_HOST", "localhost"),
			ContainerPort:    getEnvInt("DOCKER_CONTAINER_PORT", 5000),
			MemoryLimitMB:    int64(getEnvInt("DOCKER_MEMORY_LIMIT_MB", 256)),
			CPUQuota:         int64(getEnvInt("DOCKER_CPU_QUOTA", 50000)),
			CPUPeriod:        int64(getEnvInt("DOCKER_CPU_PERIOD", 100000)),
			StartGracePeriod: time.Duration(getEnvInt("DOCKER_START_GRACE_SECONDS", 2)) * time.Second,
			MaxContainerAge:  time.Duration(getEnvFloat("DOCKER_MAX_CONTAINER_AGE_HOURS", 2) * float64(time.Hour)),
			ReapInterval:     time.Duration(getEnvInt("DOCKER_REAP_INTERVAL_MINUTES", 10)) * time.Minute,
			BuildTimeout:     time.Duration(getEnvInt("DOCKER_BUILD_TIMEOUT_SECONDS", 600)) * time.Second,
		},
		AI: AIConfig{
			RequestTimeout:     time.Duration(getEnvInt("AI_REQUEST_TIMEOUT_SECONDS", 120)) * time.Second,
			DefaultMaxTokens:   getEnvInt("AI_DEFAULT_MAX_TOKENS", 2000),
			DefaultTemperature: getEnvFloat("AI_DEFAULT_TEMPERATURE", 0.7),
		},
		Bootstrap: BootstrapConfig{
			AdminUsername: getEnv("ADMIN_USERNAME", "admin"),
			AdminEmail:    getEnv("ADMIN_EMAIL", "admin@ctf.local"),
			AdminPassword: getEnv("ADMIN_PASSWORD", "Admin12345"),
		},
		CORS: CORSConfig{
			AllowOrigins: getEnvList("CORS_ALLOW_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
			}),
			MaxAge: 24 * time.Hour,
		},
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an environment variable as an integer or returns a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves an environment variable as a float or returns a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves an environment variable as a boolean or returns a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blanks
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}
