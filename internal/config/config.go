// Package config loads wmai configuration from flags, environment and defaults.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
)

// Environment variables read for the project URL and key, in priority order.
// The first non-empty one wins.
var (
	URLEnvVars = []string{"SUPABASE_URL", "WMAI_SUPABASE_URL", "VITE_SUPABASE_URL"}
	KeyEnvVars = []string{
		"SUPABASE_SERVICE_ROLE_KEY",
		"SERVICE_ROLE_KEY",
		"WMAI_SERVICE_KEY",
		"SUPABASE_ANON_KEY",
		"VITE_SUPABASE_ANON_KEY",
	}
	DatabaseURLEnvVars = []string{"WMAI_DATABASE_URL", "SUPABASE_DB_URL"}
)

// Audit backends.
const (
	AuditREST     = "rest"
	AuditSQLite   = "sqlite"
	AuditPostgres = "postgres"
	AuditS3       = "s3"
	AuditNone     = "none"
)

// Keys used in the viper registry. Flags bind to the same names.
const (
	KeySupabaseURL  = "supabase_url"
	KeyServiceKey   = "service_key"
	KeyDatabaseURL  = "database_url"
	KeyAuditBackend = "audit_backend"
	KeyAuditTable   = "audit_table"
	KeyAuditDB      = "audit_db"
	KeyAutoCreate   = "auto_create"
	KeyTimeout      = "timeout"
	KeyLogLevel     = "log_level"
	KeyLogFormat    = "log_format"
	KeyJWTSecret    = "jwt_secret"
	KeyS3Bucket     = "audit_s3_bucket"
	KeyS3Prefix     = "audit_s3_prefix"
	KeyS3Region     = "audit_s3_region"
	KeyS3Endpoint   = "audit_s3_endpoint"
	KeyS3PathStyle  = "audit_s3_path_style"
	KeyPGPassword   = "pgwire_password"
	KeyOTelExporter = "otel_exporter"
	KeyOTelEndpoint = "otel_endpoint"
	KeyOTelSample   = "otel_sample_rate"
)

// Config is the resolved configuration.
type Config struct {
	SupabaseURL  string        `mapstructure:"supabase_url"`
	ServiceKey   string        `mapstructure:"service_key"`
	DatabaseURL  string        `mapstructure:"database_url"`
	AuditBackend string        `mapstructure:"audit_backend"`
	AuditTable   string        `mapstructure:"audit_table"`
	AuditDB      string        `mapstructure:"audit_db"`
	AutoCreate   bool          `mapstructure:"auto_create"`
	Timeout      time.Duration `mapstructure:"timeout"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFormat    string        `mapstructure:"log_format"`
	JWTSecret    string        `mapstructure:"jwt_secret"`

	S3Bucket    string `mapstructure:"audit_s3_bucket"`
	S3Prefix    string `mapstructure:"audit_s3_prefix"`
	S3Region    string `mapstructure:"audit_s3_region"`
	S3Endpoint  string `mapstructure:"audit_s3_endpoint"`
	S3PathStyle bool   `mapstructure:"audit_s3_path_style"`

	PGPassword string `mapstructure:"pgwire_password"`

	OTelExporter   string  `mapstructure:"otel_exporter"`
	OTelEndpoint   string  `mapstructure:"otel_endpoint"`
	OTelSampleRate float64 `mapstructure:"otel_sample_rate"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyAuditBackend, AuditREST)
	v.SetDefault(KeyAuditTable, "migration_logs")
	v.SetDefault(KeyAuditDB, "wmai.db")
	v.SetDefault(KeyAutoCreate, true)
	v.SetDefault(KeyTimeout, 60*time.Second)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyS3Prefix, "wmai/executions")
	v.SetDefault(KeyOTelExporter, "none")
	v.SetDefault(KeyOTelEndpoint, "localhost:4317")
	v.SetDefault(KeyOTelSample, 1.0)
}

// BindEnv binds every key to its environment variables.
func BindEnv(v *viper.Viper) {
	v.BindEnv(append([]string{KeySupabaseURL}, URLEnvVars...)...)
	v.BindEnv(append([]string{KeyServiceKey}, KeyEnvVars...)...)
	v.BindEnv(append([]string{KeyDatabaseURL}, DatabaseURLEnvVars...)...)
	v.BindEnv(KeyAuditBackend, "WMAI_AUDIT_BACKEND")
	v.BindEnv(KeyAuditTable, "WMAI_AUDIT_TABLE")
	v.BindEnv(KeyAuditDB, "WMAI_AUDIT_DB")
	v.BindEnv(KeyAutoCreate, "WMAI_AUTO_CREATE")
	v.BindEnv(KeyTimeout, "WMAI_TIMEOUT")
	v.BindEnv(KeyLogLevel, "WMAI_LOG_LEVEL")
	v.BindEnv(KeyLogFormat, "WMAI_LOG_FORMAT")
	v.BindEnv(KeyJWTSecret, "WMAI_JWT_SECRET")
	v.BindEnv(KeyS3Bucket, "WMAI_AUDIT_S3_BUCKET")
	v.BindEnv(KeyS3Prefix, "WMAI_AUDIT_S3_PREFIX")
	v.BindEnv(KeyS3Region, "WMAI_AUDIT_S3_REGION", "AWS_REGION")
	v.BindEnv(KeyS3Endpoint, "WMAI_AUDIT_S3_ENDPOINT")
	v.BindEnv(KeyS3PathStyle, "WMAI_AUDIT_S3_PATH_STYLE")
	v.BindEnv(KeyPGPassword, "WMAI_PGWIRE_PASSWORD")
	v.BindEnv(KeyOTelExporter, "WMAI_OTEL_EXPORTER")
	v.BindEnv(KeyOTelEndpoint, "WMAI_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
	v.BindEnv(KeyOTelSample, "WMAI_OTEL_SAMPLE_RATE")
}

// New returns a viper instance with defaults and environment bindings.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	BindEnv(v)
	return v
}

// Load resolves the configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	cfg.ServiceKey = strings.TrimSpace(cfg.ServiceKey)
	cfg.AuditBackend = strings.ToLower(strings.TrimSpace(cfg.AuditBackend))
	cfg.OTelExporter = strings.ToLower(strings.TrimSpace(cfg.OTelExporter))

	switch cfg.AuditBackend {
	case AuditREST, AuditSQLite, AuditPostgres, AuditS3, AuditNone:
	default:
		return nil, fmt.Errorf("unknown audit backend %q (want rest, sqlite, postgres, s3 or none)", cfg.AuditBackend)
	}
	if cfg.AuditBackend == AuditS3 && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("audit backend s3 requires WMAI_AUDIT_S3_BUCKET")
	}
	if cfg.AuditBackend == AuditPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("audit backend postgres requires %s", strings.Join(DatabaseURLEnvVars, " or "))
	}
	return &cfg, nil
}

// Configured reports whether the project URL and key are both set.
func (c *Config) Configured() bool {
	return c.SupabaseURL != "" && c.ServiceKey != ""
}

// Check reports whether the proxy can run, with diagnostics when it cannot.
func (c *Config) Check() (bool, map[string]any) {
	if c.Configured() {
		return true, nil
	}
	return false, Diagnostics(c)
}

// Diagnostics reports which configuration sources are present, never their values.
func Diagnostics(c *Config) map[string]any {
	env := make(map[string]bool)
	for _, name := range append(append([]string{}, URLEnvVars...), KeyEnvVars...) {
		env[name] = os.Getenv(name) != ""
	}
	return map[string]any{
		"hasUrl": c.SupabaseURL != "",
		"hasKey": c.ServiceKey != "",
		"env":    env,
	}
}

// KeyRole returns the role claim of a Supabase JWT key without verifying it.
func KeyRole(key string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(key, claims); err != nil {
		return "", fmt.Errorf("parse key: %w", err)
	}
	role, _ := claims["role"].(string)
	if role == "" {
		return "", fmt.Errorf("key has no role claim")
	}
	return role, nil
}
