package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"hostelpay/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Paystack   PaystackConfig   `yaml:"paystack"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Email      EmailConfig      `yaml:"email"`
	Checkout   CheckoutConfig   `yaml:"checkout"`
	Rooms      []models.Room    `yaml:"rooms"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type PaystackConfig struct {
	SecretKey   string `yaml:"secret_key"`
	BaseURL     string `yaml:"base_url"`
	Currency    string `yaml:"currency"`
	CallbackURL string `yaml:"callback_url"`
	// Timeout in seconds for a single gateway call.
	Timeout int `yaml:"timeout"`
}

type PaymentsConfig struct {
	// AttemptTTL bounds how long a booking stays locked by one active attempt.
	AttemptTTL      time.Duration   `yaml:"attempt_ttl"`
	VerifyDelay     time.Duration   `yaml:"verify_delay"`
	RateLimit       int             `yaml:"rate_limit"`
	RateLimitWindow time.Duration   `yaml:"rate_limit_window"`
	Reconcile       ReconcileConfig `yaml:"reconcile"`
}

type ReconcileConfig struct {
	Enabled       bool          `yaml:"enabled"`
	MaxRetries    int           `yaml:"max_retries"`
	InitialDelay  time.Duration `yaml:"initial_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	PollInterval  time.Duration `yaml:"poll_interval"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type APIGRPCConfig struct {
	Enabled    bool         `yaml:"enabled"`
	Port       int          `yaml:"port"`
	Reflection bool         `yaml:"reflection"`
	TLS        APITLSConfig `yaml:"tls"`
}

type APITLSConfig struct {
	Enabled           bool   `yaml:"enabled"`
	CertFile          string `yaml:"cert_file"`
	KeyFile           string `yaml:"key_file"`
	ClientCAFile      string `yaml:"client_ca_file"`
	RequireClientCert bool   `yaml:"require_client_cert"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type GoogleConfig struct {
	CredentialsFile     string `yaml:"credentials_file"`
	LedgerSpreadsheetID string `yaml:"ledger_spreadsheet_id"`
}

type TelegramConfig struct {
	BotToken     string  `yaml:"bot_token"`
	AdminChatIDs []int64 `yaml:"admin_chat_ids"`
	Debug        bool    `yaml:"debug"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// CheckoutConfig is read by the checkout CLI, never by the API server.
type CheckoutConfig struct {
	BackendURL  string        `yaml:"backend_url"`
	VerifyDelay time.Duration `yaml:"verify_delay"`
	Timeout     time.Duration `yaml:"timeout"`
}

func Load(configPath string) (*Config, error) {
	config, err := parse(configPath)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// LoadCheckout reads only the checkout section. The server secrets are not
// required, and a missing file yields the defaults.
func LoadCheckout(configPath string) (CheckoutConfig, error) {
	config, err := parse(configPath)
	if errors.Is(err, os.ErrNotExist) {
		config = &Config{}
		config.applyDefaults()
		err = nil
	}
	if err != nil {
		return CheckoutConfig{}, err
	}
	return config.Checkout, nil
}

func parse(configPath string) (*Config, error) {
	// .env is optional; real deployments inject the environment directly.
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Paystack.SecretKey == "" || c.Paystack.SecretKey == "YOUR_PAYSTACK_SECRET" {
		return errors.New("paystack secret key is required")
	}

	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	if c.Email.Enabled && (c.Email.Host == "" || c.Email.From == "") {
		return errors.New("email.host and email.from are required when email is enabled")
	}

	return ValidateRooms(c.Rooms)
}

func ValidateRooms(rooms []models.Room) error {
	seen := make(map[string]bool)
	for _, room := range rooms {
		if strings.TrimSpace(room.HostelID) == "" || strings.TrimSpace(room.RoomID) == "" {
			return fmt.Errorf("room '%s' has empty hostel_id or room_id", room.Name)
		}
		if room.Capacity < 0 {
			return fmt.Errorf("room %s has negative capacity", room.Key())
		}
		if seen[room.Key()] {
			return fmt.Errorf("duplicate room found: %s", room.Key())
		}
		seen[room.Key()] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "hostelpay"
	}
	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 5001
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 5000
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Paystack.BaseURL == "" {
		c.Paystack.BaseURL = "https://api.paystack.co"
	}
	if c.Paystack.Currency == "" {
		c.Paystack.Currency = models.DefaultCurrency
	}
	if c.Paystack.Timeout == 0 {
		c.Paystack.Timeout = 15
	}

	if c.Payments.AttemptTTL == 0 {
		c.Payments.AttemptTTL = models.DefaultAttemptTTL
	}
	if c.Payments.VerifyDelay == 0 {
		c.Payments.VerifyDelay = models.MobileVerifyDelay
	}
	if c.Payments.RateLimit == 0 {
		c.Payments.RateLimit = models.PaymentRateLimit
	}
	if c.Payments.RateLimitWindow == 0 {
		c.Payments.RateLimitWindow = models.PaymentRateLimitWindow
	}
	rc := &c.Payments.Reconcile
	if rc.MaxRetries == 0 {
		rc.MaxRetries = 8
	}
	if rc.InitialDelay == 0 {
		rc.InitialDelay = 15 * time.Second
	}
	if rc.MaxDelay == 0 {
		rc.MaxDelay = 10 * time.Minute
	}
	if rc.BackoffFactor == 0 {
		rc.BackoffFactor = 2
	}
	if rc.PollInterval == 0 {
		rc.PollInterval = 2 * time.Second
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "booking-payments"
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}

	if c.Checkout.BackendURL == "" {
		c.Checkout.BackendURL = fmt.Sprintf("http://localhost:%d", c.API.HTTP.Port)
	}
	if c.Checkout.VerifyDelay == 0 {
		c.Checkout.VerifyDelay = models.MobileVerifyDelay
	}
	if c.Checkout.Timeout == 0 {
		c.Checkout.Timeout = 10 * time.Second
	}
}
