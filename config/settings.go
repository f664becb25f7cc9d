package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Settings holds the process configuration. Values come from the
// environment, optionally pre-populated from a .env file by godotenv.
type Settings struct {
	ServerPort  string `env:"SERVER_PORT" envDefault:"8080"`
	GinMode     string `env:"GIN_MODE"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	DebugSQL    bool   `env:"DEBUG_SQL"`
	LogDir      string `env:"LOG_DIR" envDefault:"logs"`

	DBHost     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort     string `env:"DB_PORT" envDefault:"3306"`
	DBDatabase string `env:"DB_DATABASE" envDefault:"reev"`
	DBUsername string `env:"DB_USERNAME"`
	DBPassword string `env:"DB_PASSWORD"`
	DBMigrate  bool   `env:"DB_MIGRATE"`

	JWTSecret string `env:"JWT_SECRET"`

	ClinVarAPIURL     string        `env:"CLINVAR_API_URL" envDefault:"https://submit.ncbi.nlm.nih.gov/apitest/v1"`
	ClinVarAPITimeout time.Duration `env:"CLINVAR_API_TIMEOUT" envDefault:"30s"`

	// TokenEncryptionKey seals stored ClinVar API tokens when set.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	RetryInterval     time.Duration `env:"SUBMISSION_RETRY_INTERVAL" envDefault:"60s"`
	WorkerConcurrency int           `env:"SUBMISSION_WORKERS" envDefault:"4"`
	PollInterval      time.Duration `env:"SUBMISSION_POLL_INTERVAL" envDefault:"2s"`
	TaskLease         time.Duration `env:"SUBMISSION_TASK_LEASE" envDefault:"10m"`
	EmbeddedWorker    bool          `env:"SUBMISSION_EMBEDDED_WORKER" envDefault:"true"`

	// SubmissionTimeout moves waiting threads to timeout; 0 disables the sweep.
	SubmissionTimeout time.Duration `env:"SUBMISSION_TIMEOUT" envDefault:"0s"`
	SweepInterval     time.Duration `env:"SUBMISSION_SWEEP_INTERVAL" envDefault:"5m"`
}

// LoadSettings parses Settings from the environment and validates it.
func LoadSettings() (*Settings, error) {
	settings, err := env.ParseAs[Settings]()
	if err != nil {
		return nil, fmt.Errorf("parse settings: %w", err)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *Settings) Validate() error {
	if s.WorkerConcurrency < 1 {
		return fmt.Errorf("SUBMISSION_WORKERS must be at least 1, got %d", s.WorkerConcurrency)
	}
	if s.RetryInterval <= 0 {
		return fmt.Errorf("SUBMISSION_RETRY_INTERVAL must be positive, got %s", s.RetryInterval)
	}
	if s.PollInterval <= 0 {
		return fmt.Errorf("SUBMISSION_POLL_INTERVAL must be positive, got %s", s.PollInterval)
	}
	if s.SubmissionTimeout < 0 {
		return fmt.Errorf("SUBMISSION_TIMEOUT must not be negative, got %s", s.SubmissionTimeout)
	}
	return nil
}

// IsProduction reports whether ENVIRONMENT=production.
func (s *Settings) IsProduction() bool {
	return s.Environment == "production"
}
