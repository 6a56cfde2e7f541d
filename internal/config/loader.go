package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/clinicleads/internal/archive"
	"github.com/rpattn/clinicleads/internal/db"
	"github.com/rpattn/clinicleads/internal/domain"
	"github.com/rpattn/clinicleads/internal/ingestion"
	"github.com/rpattn/clinicleads/internal/logger"
	"github.com/rpattn/clinicleads/internal/submission"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. CLINIC_API_BASE_URL.
const EnvPrefix = "CLINIC"

type ServerConfig struct {
	Addr           string
	AllowedOrigins []string
}

type APIConfig struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// ImportConfig drives the ingestion pipeline.
type ImportConfig struct {
	SubmissionMode        submission.Mode
	MaxUploadBytes        int64
	Location              *time.Location
	AppointmentDatePolicy ingestion.DatePolicy
	InquiryDatePolicy     ingestion.DatePolicy
}

type Config struct {
	Server   ServerConfig
	API      APIConfig
	Import   ImportConfig
	Log      logger.Config
	Database db.Config
	Archive  archive.Config

	// ConfigFile is the file that was read, empty when only defaults and env applied.
	ConfigFile string
}

var boundKeys = []string{
	"server.addr",
	"server.allowed_origins",
	"api.base_url",
	"api.token",
	"api.timeout",
	"api.cache_ttl",
	"import.submission_mode",
	"import.max_upload_bytes",
	"import.timezone",
	"import.appointments.on_invalid_date",
	"import.inquiries.on_invalid_date",
	"log.level",
	"log.format",
	"database.enabled",
	"database.host",
	"database.port",
	"database.user",
	"database.password",
	"database.dbname",
	"database.sslmode",
	"archive.enabled",
	"archive.endpoint",
	"archive.access_key",
	"archive.secret_key",
	"archive.bucket",
	"archive.region",
	"archive.use_ssl",
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		API: APIConfig{
			Timeout:  30 * time.Second,
			CacheTTL: 30 * time.Second,
		},
		Import: ImportConfig{
			SubmissionMode:        submission.ModePerRecord,
			MaxUploadBytes:        5 << 20,
			Location:              time.Local,
			AppointmentDatePolicy: ingestion.DatePolicyReject,
			InquiryDatePolicy:     ingestion.DatePolicyReject,
		},
		Log: logger.Config{
			Level:  "info",
			Format: "text",
		},
		Database: db.DefaultConfig(),
		Archive: archive.Config{
			Bucket: "clinic-imports",
		},
	}
}

// Load reads config.yaml from configPath (when present) and applies
// CLINIC_* environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if strings.TrimSpace(configPath) != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range boundKeys {
		if err := v.BindEnv(key); err != nil {
			return cfg, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		cfg.ConfigFile = v.ConfigFileUsed()
	}

	if v.IsSet("server.addr") {
		cfg.Server.Addr = v.GetString("server.addr")
	}
	if v.IsSet("server.allowed_origins") {
		cfg.Server.AllowedOrigins = splitList(v.GetStringSlice("server.allowed_origins"))
	}

	if v.IsSet("api.base_url") {
		cfg.API.BaseURL = v.GetString("api.base_url")
	}
	if v.IsSet("api.token") {
		cfg.API.Token = v.GetString("api.token")
	}
	if v.IsSet("api.timeout") {
		cfg.API.Timeout = v.GetDuration("api.timeout")
	}
	if v.IsSet("api.cache_ttl") {
		cfg.API.CacheTTL = v.GetDuration("api.cache_ttl")
	}

	if v.IsSet("import.submission_mode") {
		mode, err := submission.ParseMode(v.GetString("import.submission_mode"))
		if err != nil {
			return cfg, err
		}
		cfg.Import.SubmissionMode = mode
	}
	if v.IsSet("import.max_upload_bytes") {
		cfg.Import.MaxUploadBytes = v.GetInt64("import.max_upload_bytes")
	}
	if v.IsSet("import.timezone") {
		loc, err := time.LoadLocation(v.GetString("import.timezone"))
		if err != nil {
			return cfg, fmt.Errorf("invalid import.timezone: %w", err)
		}
		cfg.Import.Location = loc
	}
	if v.IsSet("import.appointments.on_invalid_date") {
		policy, err := ingestion.ParseDatePolicy(v.GetString("import.appointments.on_invalid_date"))
		if err != nil {
			return cfg, err
		}
		cfg.Import.AppointmentDatePolicy = policy
	}
	if v.IsSet("import.inquiries.on_invalid_date") {
		policy, err := ingestion.ParseDatePolicy(v.GetString("import.inquiries.on_invalid_date"))
		if err != nil {
			return cfg, err
		}
		cfg.Import.InquiryDatePolicy = policy
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
		cfg.Database.Enabled = strings.TrimSpace(cfg.Database.Host) != ""
	}
	if v.IsSet("database.enabled") {
		cfg.Database.Enabled = v.GetBool("database.enabled")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}

	if v.IsSet("archive.endpoint") {
		cfg.Archive.Endpoint = v.GetString("archive.endpoint")
	}
	if v.IsSet("archive.enabled") {
		cfg.Archive.Enabled = v.GetBool("archive.enabled")
	}
	if v.IsSet("archive.access_key") {
		cfg.Archive.AccessKey = v.GetString("archive.access_key")
	}
	if v.IsSet("archive.secret_key") {
		cfg.Archive.SecretKey = v.GetString("archive.secret_key")
	}
	if v.IsSet("archive.bucket") {
		cfg.Archive.Bucket = v.GetString("archive.bucket")
	}
	if v.IsSet("archive.region") {
		cfg.Archive.Region = v.GetString("archive.region")
	}
	if v.IsSet("archive.use_ssl") {
		cfg.Archive.UseSSL = v.GetBool("archive.use_ssl")
	}

	if cfg.Import.MaxUploadBytes <= 0 {
		return cfg, fmt.Errorf("import.max_upload_bytes must be positive, got %d", cfg.Import.MaxUploadBytes)
	}
	return cfg, nil
}

// splitList accepts both YAML lists and comma separated env values.
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

// PipelineConfig returns the mapper rules for a pipeline with overrides applied.
func (c ImportConfig) PipelineConfig(pipeline domain.Pipeline) ingestion.PipelineConfig {
	cfg := ingestion.DefaultPipelineConfig(pipeline)
	if c.Location != nil {
		cfg.Location = c.Location
	}
	switch pipeline {
	case domain.PipelineAppointments:
		if c.AppointmentDatePolicy != "" {
			cfg.OnInvalidDate = c.AppointmentDatePolicy
		}
	case domain.PipelineInquiries:
		if c.InquiryDatePolicy != "" {
			cfg.OnInvalidDate = c.InquiryDatePolicy
		}
	}
	return cfg
}
