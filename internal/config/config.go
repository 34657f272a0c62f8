package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CIVICAUTH_CONFIG is not set.
const DefaultPath = "config/config.yml"

type AppConfig struct {
	Port     int    `yaml:"port"`
	GinMode  string `yaml:"gin_mode"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`
}

type DatabaseConfig struct {
	DSN         string `yaml:"dsn"`
	TablePrefix string `yaml:"table_prefix"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	Issuer     string `yaml:"issuer"`
	AccessTTL  string `yaml:"access_ttl"`
	RefreshTTL string `yaml:"refresh_ttl"`
}

type OTPConfig struct {
	TTL           string `yaml:"ttl"`
	Length        int    `yaml:"length"`
	MaxAttempts   int    `yaml:"max_attempts"`
	Cooldown      string `yaml:"cooldown"`
	Retention     string `yaml:"retention"`
	SweepInterval string `yaml:"sweep_interval"`
	Store         string `yaml:"store"`
	HashCost      int    `yaml:"hash_cost"`
}

type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	FromNumber string `yaml:"from_number"`
	Channel    string `yaml:"channel"`
}

type MagicLinkConfig struct {
	BaseURL string `yaml:"base_url"`
}

type CasbinConfig struct {
	ModelPath string `yaml:"model_path"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	Requests int    `yaml:"requests"`
	Window   string `yaml:"window"`
}

type ConfigFile struct {
	App       AppConfig       `yaml:"app"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	JWT       JWTConfig       `yaml:"jwt"`
	OTP       OTPConfig       `yaml:"otp"`
	Twilio    TwilioConfig    `yaml:"twilio"`
	MagicLink MagicLinkConfig `yaml:"magic_link"`
	Casbin    CasbinConfig    `yaml:"casbin"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// OTP store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Delivery channels.
const (
	ChannelWhatsApp = "whatsapp"
	ChannelSMS      = "sms"
	ChannelLog      = "log"
)

type Config struct {
	Port     string
	GinMode  string
	Env      string
	LogLevel string

	DSN         string
	TablePrefix string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret  string
	JWTIssuer  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	OTPTTL         time.Duration
	OTPLength      int
	OTPMaxAttempts int
	OTPCooldown    time.Duration
	OTPRetention   time.Duration
	SweepInterval  time.Duration
	OTPStore       string
	OTPHashCost    int

	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	TwilioChannel string

	MagicLinkBaseURL string
	CasbinModelPath  string

	KafkaBrokers []string
	KafkaTopic   string

	RateLimitRequests int
	RateLimitWindow   time.Duration
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// Load reads .env (if present), then the YAML file named by CIVICAUTH_CONFIG
// or DefaultPath, then applies environment overrides.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(env("CIVICAUTH_CONFIG", DefaultPath))
}

// LoadFrom builds a Config from the YAML file at path plus environment
// overrides. It does not read .env.
func LoadFrom(path string) (*Config, error) {
	configFile, err := loadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	cfg, err := fromFile(configFile)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(f *ConfigFile) (*Config, error) {
	var err error
	cfg := &Config{
		Port:     strconv.Itoa(orInt(f.App.Port, 8080)),
		GinMode:  orString(f.App.GinMode, "release"),
		Env:      orString(f.App.Env, "production"),
		LogLevel: orString(f.App.LogLevel, "info"),

		DSN:         f.Database.DSN,
		TablePrefix: f.Database.TablePrefix,

		RedisAddr:     orString(f.Redis.Addr, "localhost:6379"),
		RedisPassword: f.Redis.Password,
		RedisDB:       f.Redis.DB,

		JWTSecret: f.JWT.Secret,
		JWTIssuer: orString(f.JWT.Issuer, "civicauth"),

		OTPLength:      orInt(f.OTP.Length, 6),
		OTPMaxAttempts: orInt(f.OTP.MaxAttempts, 5),
		OTPStore:       orString(f.OTP.Store, StoreRedis),
		OTPHashCost:    orInt(f.OTP.HashCost, 10),

		TwilioSID:     f.Twilio.AccountSID,
		TwilioToken:   f.Twilio.AuthToken,
		TwilioFrom:    f.Twilio.FromNumber,
		TwilioChannel: orString(f.Twilio.Channel, ChannelWhatsApp),

		MagicLinkBaseURL: f.MagicLink.BaseURL,
		CasbinModelPath:  f.Casbin.ModelPath,

		KafkaBrokers: f.Kafka.Brokers,
		KafkaTopic:   orString(f.Kafka.Topic, "civicauth.audit"),

		RateLimitRequests: orInt(f.RateLimit.Requests, 20),
	}

	durations := []struct {
		name  string
		value string
		def   time.Duration
		dst   *time.Duration
	}{
		{"jwt.access_ttl", f.JWT.AccessTTL, 15 * time.Minute, &cfg.AccessTTL},
		{"jwt.refresh_ttl", f.JWT.RefreshTTL, 30 * 24 * time.Hour, &cfg.RefreshTTL},
		{"otp.ttl", f.OTP.TTL, 300 * time.Second, &cfg.OTPTTL},
		{"otp.cooldown", f.OTP.Cooldown, 60 * time.Second, &cfg.OTPCooldown},
		{"otp.retention", f.OTP.Retention, 10 * time.Minute, &cfg.OTPRetention},
		{"otp.sweep_interval", f.OTP.SweepInterval, time.Minute, &cfg.SweepInterval},
		{"rate_limit.window", f.RateLimit.Window, time.Minute, &cfg.RateLimitWindow},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(d.value, d.def); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
	}
	return cfg, nil
}

// applyEnv lets deployments inject secrets without touching the YAML file.
func applyEnv(cfg *Config) {
	cfg.Port = env("PORT", cfg.Port)
	cfg.GinMode = env("GIN_MODE", cfg.GinMode)
	cfg.Env = env("APP_ENV", cfg.Env)
	cfg.LogLevel = env("LOG_LEVEL", cfg.LogLevel)
	cfg.DSN = env("DATABASE_DSN", cfg.DSN)
	cfg.RedisAddr = env("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = env("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.JWTSecret = env("JWT_SECRET", cfg.JWTSecret)
	cfg.OTPStore = env("OTP_STORE", cfg.OTPStore)
	cfg.TwilioSID = env("TWILIO_ACCOUNT_SID", cfg.TwilioSID)
	cfg.TwilioToken = env("TWILIO_AUTH_TOKEN", cfg.TwilioToken)
	cfg.TwilioFrom = env("TWILIO_FROM_NUMBER", cfg.TwilioFrom)
	cfg.TwilioChannel = env("TWILIO_CHANNEL", cfg.TwilioChannel)
	cfg.MagicLinkBaseURL = env("MAGIC_LINK_BASE_URL", cfg.MagicLinkBaseURL)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitList(brokers)
	}
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	} else if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("jwt secret must be at least 32 bytes"))
	}
	if c.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	if c.OTPLength < 4 || c.OTPLength > 10 {
		errs = append(errs, fmt.Errorf("otp length %d out of range [4,10]", c.OTPLength))
	}
	if c.OTPMaxAttempts < 1 {
		errs = append(errs, errors.New("otp max_attempts must be positive"))
	}
	if c.OTPCooldown >= c.OTPTTL {
		errs = append(errs, errors.New("otp cooldown must be shorter than otp ttl"))
	}
	if c.OTPHashCost < 4 || c.OTPHashCost > 31 {
		errs = append(errs, fmt.Errorf("otp hash_cost %d out of bcrypt range", c.OTPHashCost))
	}
	switch c.OTPStore {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown otp store %q", c.OTPStore))
	}
	switch c.TwilioChannel {
	case ChannelWhatsApp, ChannelSMS:
		if c.TwilioSID == "" || c.TwilioToken == "" || c.TwilioFrom == "" {
			errs = append(errs, fmt.Errorf("twilio credentials are required for channel %q", c.TwilioChannel))
		}
	case ChannelLog:
	default:
		errs = append(errs, fmt.Errorf("unknown delivery channel %q", c.TwilioChannel))
	}
	if c.AccessTTL <= 0 || c.RefreshTTL <= c.AccessTTL {
		errs = append(errs, errors.New("refresh ttl must be longer than access ttl"))
	}
	return errors.Join(errs...)
}

// IsDevelopment reports whether the service runs in a development environment.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development" || c.Env == "dev" || c.Env == "local"
}

func loadConfigFile(path string) (*ConfigFile, error) {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read config file at %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(bytes, &config); err != nil {
		return nil, fmt.Errorf("could not parse config yaml: %w", err)
	}

	return &config, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}
