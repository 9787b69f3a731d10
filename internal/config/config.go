package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port               string
	AllowedOrigin      string
	DatabaseURL        string
	DatabaseMigrate    bool
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	SnapshotTTLSeconds int
	AuthSecret         string
	AccessTokenTTL     time.Duration
	LogLevel           string
	AllowBelowCost     bool
	PhoneRegion        string
	Timezone           string
	LowStockThreshold  int
	DueSweepCron       string
	SMTP               SMTPConfig
	DueReminderTo      []string
}

// SMTPConfig is only used when Host is set; otherwise overdue reminders
// go to the log.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Load reads the process environment, after merging an optional .env file
// from the working directory. Variables already set win over the file.
func Load() Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := Config{
		Port:               getEnv("PORT", "8080"),
		AllowedOrigin:      getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DatabaseMigrate:    getBool("DATABASE_MIGRATE", true),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		RedisDB:            redisDB,
		SnapshotTTLSeconds: getPositiveInt("SNAPSHOT_TTL_SECONDS", 30),
		AuthSecret:         strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTL:     time.Duration(getPositiveInt("ACCESS_TOKEN_TTL_MINUTES", 480)) * time.Minute,
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		AllowBelowCost:     getBool("ALLOW_BELOW_COST", false),
		PhoneRegion:        strings.ToUpper(getEnv("PHONE_REGION", "BD")),
		Timezone:           getEnv("TIMEZONE", "Asia/Dhaka"),
		LowStockThreshold:  getPositiveInt("LOW_STOCK_THRESHOLD", 20),
		DueSweepCron:       getEnv("DUE_SWEEP_CRON", "0 9 * * *"),
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
			Port:     getPositiveInt("SMTP_PORT", 587),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		},
		DueReminderTo: splitList(os.Getenv("DUE_REMINDER_TO")),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) SnapshotTTL() time.Duration {
	return time.Duration(c.SnapshotTTLSeconds) * time.Second
}

// Location resolves Timezone, falling back to UTC when the zone database
// does not know it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key string, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getPositiveInt(key string, fallback int) int {
	val, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || val < 1 {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	val, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return val
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
