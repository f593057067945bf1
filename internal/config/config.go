package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Bot       BotConfig
	API       APIConfig
	Panel     PanelConfig
	Tetra98   Tetra98Config
	Payment   PaymentConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port int    `validate:"required,min=1,max=65535"`
	Env  string `validate:"oneof=development production test"`
	// AppURL is the public base URL used to build gateway callback URLs.
	AppURL string `validate:"required,url"`
}

type DatabaseConfig struct {
	Driver  string `validate:"oneof=mysql postgres"`
	Host    string `validate:"required"`
	Port    string `validate:"required"`
	Name    string `validate:"required"`
	User    string
	Pass    string
	Charset string
	SSLMode string
}

type RedisConfig struct {
	Addr string
	Pass string
	DB   int
}

type BotConfig struct {
	Token       string `validate:"required"`
	WebhookURL  string
	Username    string
	AdminIDs    []int64 `validate:"min=1"`
	AdminHandle string
}

type APIConfig struct {
	Key string `validate:"required"`
}

type PanelConfig struct {
	Type     string `validate:"oneof=remnawave marzban"`
	URL      string `validate:"required,url"`
	Token    string
	Username string
	Password string
	Timeout  time.Duration
}

type Tetra98Config struct {
	APIKey  string `validate:"required"`
	BaseURL string `validate:"required,url"`
	Timeout time.Duration
}

type PaymentConfig struct {
	MinWalletChargeTomans int64 `validate:"gt=0"`
	MaxWalletChargeTomans int64 `validate:"gtfield=MinWalletChargeTomans"`
	ManualCardNumber      string
	PendingTTL            time.Duration
}

type RateLimitConfig struct {
	Window time.Duration
	Limit  int
}

// Load reads configuration from .env file and environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("APP_PORT", 8080)
	viper.SetDefault("APP_ENV", "production")
	viper.SetDefault("APP_URL", "http://localhost:8080")
	viper.SetDefault("DB_DRIVER", "mysql")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "3306")
	viper.SetDefault("DB_CHARSET", "utf8mb4")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("REDIS_ADDR", "localhost:6379")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("PANEL_TYPE", "remnawave")
	viper.SetDefault("PANEL_TIMEOUT", "20s")
	viper.SetDefault("TETRA98_BASE_URL", "https://tetra98.ir")
	viper.SetDefault("TETRA98_TIMEOUT", "20s")
	viper.SetDefault("MIN_WALLET_CHARGE_TOMANS", 10000)
	viper.SetDefault("MAX_WALLET_CHARGE_TOMANS", 10000000)
	viper.SetDefault("PAYMENT_PENDING_TTL", "24h")
	viper.SetDefault("RATE_LIMIT_WINDOW", "1s")
	viper.SetDefault("RATE_LIMIT_COUNT", 4)

	adminIDs, err := ParseAdminIDs(viper.GetString("ADMIN_TG_IDS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:   viper.GetInt("APP_PORT"),
			Env:    viper.GetString("APP_ENV"),
			AppURL: strings.TrimRight(viper.GetString("APP_URL"), "/"),
		},
		Database: DatabaseConfig{
			Driver:  viper.GetString("DB_DRIVER"),
			Host:    viper.GetString("DB_HOST"),
			Port:    viper.GetString("DB_PORT"),
			Name:    viper.GetString("DB_NAME"),
			User:    viper.GetString("DB_USER"),
			Pass:    viper.GetString("DB_PASS"),
			Charset: viper.GetString("DB_CHARSET"),
			SSLMode: viper.GetString("DB_SSLMODE"),
		},
		Redis: RedisConfig{
			Addr: viper.GetString("REDIS_ADDR"),
			Pass: viper.GetString("REDIS_PASS"),
			DB:   viper.GetInt("REDIS_DB"),
		},
		Bot: BotConfig{
			Token:       viper.GetString("BOT_TOKEN"),
			WebhookURL:  viper.GetString("BOT_WEBHOOK_URL"),
			Username:    viper.GetString("BOT_USERNAME"),
			AdminIDs:    adminIDs,
			AdminHandle: viper.GetString("ADMIN_TG_HANDLE"),
		},
		API: APIConfig{
			Key: viper.GetString("API_KEY"),
		},
		Panel: PanelConfig{
			Type:     viper.GetString("PANEL_TYPE"),
			URL:      strings.TrimRight(viper.GetString("PANEL_URL"), "/"),
			Token:    viper.GetString("PANEL_TOKEN"),
			Username: viper.GetString("PANEL_USERNAME"),
			Password: viper.GetString("PANEL_PASSWORD"),
			Timeout:  viper.GetDuration("PANEL_TIMEOUT"),
		},
		Tetra98: Tetra98Config{
			APIKey:  viper.GetString("TETRA98_API_KEY"),
			BaseURL: strings.TrimRight(viper.GetString("TETRA98_BASE_URL"), "/"),
			Timeout: viper.GetDuration("TETRA98_TIMEOUT"),
		},
		Payment: PaymentConfig{
			MinWalletChargeTomans: viper.GetInt64("MIN_WALLET_CHARGE_TOMANS"),
			MaxWalletChargeTomans: viper.GetInt64("MAX_WALLET_CHARGE_TOMANS"),
			ManualCardNumber:      viper.GetString("MANUAL_CARD_NUMBER"),
			PendingTTL:            viper.GetDuration("PAYMENT_PENDING_TTL"),
		},
		RateLimit: RateLimitConfig{
			Window: viper.GetDuration("RATE_LIMIT_WINDOW"),
			Limit:  viper.GetInt("RATE_LIMIT_COUNT"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags on the whole configuration tree.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// IsAdmin reports whether the telegram id belongs to a configured admin.
func (b *BotConfig) IsAdmin(telegramID int64) bool {
	for _, id := range b.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

// ParseAdminIDs parses a comma separated list of telegram ids.
func ParseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// DSN returns the driver specific DSN string for GORM.
func (d *DatabaseConfig) DSN() string {
	if d.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			d.Host, d.Port, d.User, d.Pass, d.Name, d.SSLMode)
	}
	return d.User + ":" + d.Pass + "@tcp(" + d.Host + ":" + d.Port + ")/" + d.Name + "?charset=" + d.Charset + "&parseTime=True&loc=Local&clientFoundRows=true"
}
