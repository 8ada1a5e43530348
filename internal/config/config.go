package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds the full agent configuration, loaded from a YAML file
// with environment variable overrides.
type Config struct {
	Env         string `yaml:"env" env:"AGENT_ENV" env-default:"production"`
	StoragePath string `yaml:"storage_path" env:"AGENT_STORAGE_PATH" env-default:"agent.db"`

	Log struct {
		Level  string `yaml:"level" env:"AGENT_LOG_LEVEL" env-default:"info"`
		Format string `yaml:"format" env:"AGENT_LOG_FORMAT" env-default:"json"`
	} `yaml:"log"`

	Backend struct {
		// DefaultBaseURL is used for cloud-mode logins; self-hosted
		// logins carry their own URL.
		DefaultBaseURL string `yaml:"default_base_url" env:"AGENT_BACKEND_URL" env-default:"https://invoicing.co"`
		Timeout        int    `yaml:"timeout" env:"AGENT_BACKEND_TIMEOUT" env-default:"15"`
	} `yaml:"backend"`

	Server struct {
		Enabled bool `yaml:"enabled" env:"AGENT_SERVER_ENABLED" env-default:"true"`
		Port    int  `yaml:"port" env:"AGENT_SERVER_PORT" env-default:"43917"`
	} `yaml:"server"`

	Tasks struct {
		// DefaultClientID and DefaultProjectID scope created tasks when
		// no project filter is selected.
		DefaultClientID  string `yaml:"default_client_id" env:"AGENT_DEFAULT_CLIENT_ID" env-default:""`
		DefaultProjectID string `yaml:"default_project_id" env:"AGENT_DEFAULT_PROJECT_ID" env-default:""`
	} `yaml:"tasks"`

	Timer struct {
		// AutoResume keeps a persisted timer running across restarts.
		// When disabled, the local record is cleared on startup; the
		// remote time log keeps its open segment.
		AutoResume bool `yaml:"auto_resume" env:"AGENT_TIMER_AUTO_RESUME" env-default:"true"`
	} `yaml:"timer"`

	Worklog struct {
		// AutoAppend enables per-workspace worklog tracking while a
		// timer runs; the merged section is written into the task
		// description on stop.
		AutoAppend    bool `yaml:"auto_append" env:"AGENT_WORKLOG_AUTO_APPEND" env-default:"false"`
		RetentionDays int  `yaml:"retention_days" env:"AGENT_WORKLOG_RETENTION_DAYS" env-default:"14"`
	} `yaml:"worklog"`

	Tray struct {
		Enabled bool `yaml:"enabled" env:"AGENT_TRAY_ENABLED" env-default:"false"`
	} `yaml:"tray"`

	Notifications struct {
		// ResponseTimeout is how long a fired reminder waits for the
		// editor to answer before it is treated as dismissed, seconds.
		ResponseTimeout int `yaml:"response_timeout" env:"AGENT_NOTIFY_TIMEOUT" env-default:"300"`
	} `yaml:"notifications"`
}

// LoadConfig reads configuration from the given path, falling back to
// environment variables for any missing values.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		// Missing file is fine as long as the environment covers it.
		if envErr := cleanenv.ReadEnv(&cfg); envErr != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if cfg.Backend.Timeout <= 0 {
		return nil, fmt.Errorf("backend timeout must be positive, got %d", cfg.Backend.Timeout)
	}
	if cfg.Worklog.RetentionDays <= 0 {
		return nil, fmt.Errorf("worklog retention days must be positive, got %d", cfg.Worklog.RetentionDays)
	}

	return &cfg, nil
}
