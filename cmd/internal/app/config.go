package app

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// envPrefix is the prefix for all runtime environment variables
// (DUPLEX_HTTP_ADDR, DUPLEX_DATABASE_URL, ...).
const envPrefix = "duplex"

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `envconfig:"HTTP_ADDR" default:"0.0.0.0:8080"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	ReadHeaderTimeout time.Duration `envconfig:"HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout       time.Duration `envconfig:"HTTP_IDLE_TIMEOUT" default:"60s"`
	MaxHeaderBytes    int           `envconfig:"HTTP_MAX_HEADER_BYTES" default:"1048576"`
	MaxBodyBytes      int64         `envconfig:"HTTP_MAX_BODY_BYTES" default:"1048576"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	DBMaxConns  int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns  int32  `envconfig:"DB_MIN_CONNS" default:"0"`
	DBSchema    string `envconfig:"DB_SCHEMA" default:"duplex"`

	CORSAllowedOrigins   []string `envconfig:"CORS_ALLOWED_ORIGINS"`
	CORSAllowCredentials bool     `envconfig:"CORS_ALLOW_CREDENTIALS" default:"false"`
	CORSMaxAgeSeconds    int      `envconfig:"CORS_MAX_AGE_SECONDS" default:"600"`

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool `envconfig:"READINESS_REQUIRE_DB" default:"false"`

	// Identity gate. When SessionTokenKey is set (>= 32 bytes) requests are
	// verified as HS256 session tokens; otherwise the dev header gate is
	// used, restricted to DevUsers when that list is non-empty.
	SessionTokenKey string   `envconfig:"SESSION_TOKEN_KEY"`
	SessionIssuer   string   `envconfig:"SESSION_ISSUER" default:"duplex"`
	DevUsers        []string `envconfig:"DEV_USERS"`

	WSOriginRequired    bool          `envconfig:"WS_ORIGIN_REQUIRED" default:"true"`
	WSAllowedOrigins    []string      `envconfig:"WS_ALLOWED_ORIGINS"`
	WSSendQueueSize     int           `envconfig:"WS_SEND_QUEUE_SIZE" default:"256"`
	WSWriteTimeout      time.Duration `envconfig:"WS_WRITE_TIMEOUT" default:"5s"`
	WSReadIdleTimeout   time.Duration `envconfig:"WS_READ_IDLE_TIMEOUT" default:"2m"`
	WSHeartbeatInterval time.Duration `envconfig:"WS_HEARTBEAT_INTERVAL" default:"25s"`
	WSHeartbeatTimeout  time.Duration `envconfig:"WS_HEARTBEAT_TIMEOUT" default:"5s"`
	WSRateEvents        int           `envconfig:"WS_RATE_EVENTS" default:"120"`
	WSRateWindow        time.Duration `envconfig:"WS_RATE_WINDOW" default:"10s"`
}

// LoadConfig loads Config from DUPLEX_* environment variables with defaults.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
