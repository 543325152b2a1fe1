package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the api and dispatcher processes.
// Values come from env; a local .env file is loaded first when present.
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Voice   VoiceConfig
	LLM     LLMConfig
	Email   EmailConfig
	Invite  InviteConfig
	Cron    CronConfig
	Archive ArchiveConfig
	Phone   PhoneConfig
}

type AppConfig struct {
	Env  string
	Port int

	// BaseURL is the public origin used to build candidate/reference links and the webhook URL.
	BaseURL string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type VoiceConfig struct {
	APIKey        string
	BaseURL       string
	PhoneNumberID string
	WebhookSecret string

	// WebhookURL overrides the derived <BaseURL>/webhooks/voice.
	WebhookURL string

	Model   string
	VoiceID string
	Timeout time.Duration
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

type EmailConfig struct {
	APIKey  string
	BaseURL string
	From    string

	// NotifyTo receives call completion notifications.
	NotifyTo string
	Timeout  time.Duration
}

type InviteConfig struct {
	Secret  string
	LinkTTL time.Duration
}

type CronConfig struct {
	Secret      string
	Interval    time.Duration
	Lookahead   time.Duration
	BatchSize   int
	Concurrency int
	LockTTL     time.Duration
}

type ArchiveConfig struct {
	Bucket string
	Region string
	Prefix string
	// Endpoint points at an S3-compatible store; empty uses AWS.
	Endpoint string
}

type PhoneConfig struct {
	DefaultRegion string
}

func Load() (Config, error) {
	// Missing .env is the normal case outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("APP_BASE_URL")), "/")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port = optionalInt("REDIS_PORT", &parseErrs)

	c.Voice.APIKey = os.Getenv("VAPI_API_KEY")
	c.Voice.BaseURL = strings.TrimSpace(os.Getenv("VAPI_BASE_URL"))
	c.Voice.PhoneNumberID = strings.TrimSpace(os.Getenv("VAPI_PHONE_NUMBER_ID"))
	c.Voice.WebhookSecret = os.Getenv("VAPI_WEBHOOK_SECRET")
	c.Voice.WebhookURL = strings.TrimSpace(os.Getenv("VAPI_WEBHOOK_URL"))
	c.Voice.Model = strings.TrimSpace(os.Getenv("VAPI_MODEL"))
	c.Voice.VoiceID = strings.TrimSpace(os.Getenv("VAPI_VOICE_ID"))
	c.Voice.Timeout = mustDuration("VAPI_TIMEOUT")

	c.LLM.APIKey = os.Getenv("LLM_API_KEY")
	c.LLM.BaseURL = strings.TrimSpace(os.Getenv("LLM_BASE_URL"))
	c.LLM.Model = strings.TrimSpace(os.Getenv("LLM_MODEL"))
	c.LLM.Timeout = mustDuration("LLM_TIMEOUT")

	c.Email.APIKey = os.Getenv("RESEND_API_KEY")
	c.Email.BaseURL = strings.TrimSpace(os.Getenv("RESEND_BASE_URL"))
	c.Email.From = strings.TrimSpace(os.Getenv("EMAIL_FROM"))
	c.Email.NotifyTo = strings.TrimSpace(os.Getenv("EMAIL_NOTIFY_TO"))
	c.Email.Timeout = mustDuration("EMAIL_TIMEOUT")

	c.Invite.Secret = os.Getenv("INVITE_SECRET")
	c.Invite.LinkTTL = mustDuration("INVITE_LINK_TTL")

	c.Cron.Secret = os.Getenv("CRON_SECRET")
	c.Cron.Interval = mustDuration("CRON_INTERVAL")
	c.Cron.Lookahead = mustDuration("CRON_LOOKAHEAD")
	c.Cron.BatchSize = optionalInt("CRON_BATCH_SIZE", &parseErrs)
	c.Cron.Concurrency = optionalInt("CRON_CONCURRENCY", &parseErrs)
	c.Cron.LockTTL = mustDuration("CRON_LOCK_TTL")

	c.Archive.Bucket = strings.TrimSpace(os.Getenv("ARCHIVE_BUCKET"))
	c.Archive.Region = strings.TrimSpace(os.Getenv("ARCHIVE_REGION"))
	c.Archive.Prefix = strings.TrimSpace(os.Getenv("ARCHIVE_PREFIX"))
	c.Archive.Endpoint = strings.TrimSpace(os.Getenv("ARCHIVE_ENDPOINT"))

	c.Phone.DefaultRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_DEFAULT_REGION")))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every configuration problem at once and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.BaseURL == "" {
		errs = append(errs, errors.New("APP_BASE_URL is required"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	// Redis is optional; without it the dispatcher relies on row-level claims only.
	if c.Redis.Host != "" && c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}
	if c.Redis.Port < 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Voice.APIKey == "" {
		errs = append(errs, errors.New("VAPI_API_KEY is required"))
	}
	if c.Voice.PhoneNumberID == "" {
		errs = append(errs, errors.New("VAPI_PHONE_NUMBER_ID is required"))
	}
	if c.Voice.WebhookSecret == "" {
		errs = append(errs, errors.New("VAPI_WEBHOOK_SECRET is required"))
	}
	if c.Voice.BaseURL == "" {
		c.Voice.BaseURL = "https://api.vapi.ai"
	}
	if c.Voice.WebhookURL == "" && c.App.BaseURL != "" {
		c.Voice.WebhookURL = c.App.BaseURL + "/webhooks/voice"
	}
	if c.Voice.Model == "" {
		c.Voice.Model = "gpt-4"
	}
	if c.Voice.VoiceID == "" {
		c.Voice.VoiceID = "IKne3meq5aSn9XLyUdCD"
	}
	if c.Voice.Timeout <= 0 {
		c.Voice.Timeout = 15 * time.Second
	}

	// LLM is optional: without a key the question builder and transcript formatter degrade.
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "https://api.openai.com/v1"
	}
	if c.LLM.Model == "" {
		c.LLM.Model = "gpt-4o-mini"
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 30 * time.Second
	}

	if c.Email.APIKey == "" {
		errs = append(errs, errors.New("RESEND_API_KEY is required"))
	}
	if c.Email.NotifyTo == "" {
		errs = append(errs, errors.New("EMAIL_NOTIFY_TO is required"))
	}
	if c.Email.BaseURL == "" {
		c.Email.BaseURL = "https://api.resend.com"
	}
	if c.Email.From == "" {
		c.Email.From = "VoiceRef <noreply@voiceref.com>"
	}
	if c.Email.Timeout <= 0 {
		c.Email.Timeout = 10 * time.Second
	}

	if c.Invite.Secret == "" {
		errs = append(errs, errors.New("INVITE_SECRET is required"))
	}
	if c.Invite.LinkTTL <= 0 {
		c.Invite.LinkTTL = 14 * 24 * time.Hour
	}

	if c.Cron.Secret == "" && c.IsProduction() {
		errs = append(errs, errors.New("CRON_SECRET is required in production"))
	}
	if c.Cron.Interval <= 0 {
		c.Cron.Interval = time.Minute
	}
	if c.Cron.Lookahead < 0 {
		errs = append(errs, errors.New("CRON_LOOKAHEAD must not be negative"))
	}
	if c.Cron.BatchSize <= 0 {
		c.Cron.BatchSize = 100
	}
	if c.Cron.Concurrency <= 0 {
		c.Cron.Concurrency = 8
	}
	if c.Cron.LockTTL <= 0 {
		c.Cron.LockTTL = 2 * time.Minute
	}

	if c.Archive.Bucket != "" && c.Archive.Region == "" {
		errs = append(errs, errors.New("ARCHIVE_REGION is required when ARCHIVE_BUCKET is set"))
	}
	if c.Archive.Prefix == "" {
		c.Archive.Prefix = "transcripts/"
	}

	if c.Phone.DefaultRegion == "" {
		c.Phone.DefaultRegion = "US"
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

// RedisAddr returns "" when redis is not configured.
func (c Config) RedisAddr() string {
	if c.Redis.Host == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string, errs *[]error) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s must be an integer, got %q", key, v))
		return 0
	}
	return n
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
