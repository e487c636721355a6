package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/spf13/viper"
)

var once sync.Once

// Config carries all startup settings. It is built once from the
// environment and handed to each component's constructor.
type Config struct {
	APIHost     string
	MetricsPort int

	DBURL    string
	RedisURL string

	TelegramBotToken string
	DisclosureAPIKey string

	DisclosurePoll time.Duration
	AlertEval      time.Duration
	BusTTL         time.Duration

	Timezone    string
	AdminChatID int64
	Debug       bool
}

func initViper() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("api_host", "API_HOST")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("db_url", "DB_URL")
		viper.BindEnv("redis_url", "REDIS_URL")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("disclosure_api_key", "DISCLOSURE_API_KEY")
		viper.BindEnv("disclosure_poll_minutes", "DISCLOSURE_POLL_MINUTES")
		viper.BindEnv("alert_eval_minutes", "ALERT_EVAL_MINUTES")
		viper.BindEnv("bus_ttl_minutes", "BUS_TTL_MINUTES")
		viper.BindEnv("timezone", "TIMEZONE")
		viper.BindEnv("admin_chat_id", "ADMIN_CHAT_ID")
		viper.BindEnv("debug", "DEBUG")

		viper.SetDefault("api_host", "")
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("db_url", "data/stockeye.db")
		viper.SetDefault("disclosure_poll_minutes", 15)
		viper.SetDefault("alert_eval_minutes", 5)
		viper.SetDefault("bus_ttl_minutes", 60)
		viper.SetDefault("timezone", "Asia/Seoul")
		viper.SetDefault("debug", false)
	})
}

// Load reads the process environment into a Config.
func Load() (Config, error) {
	initViper()

	c := Config{
		APIHost:          viper.GetString("api_host"),
		MetricsPort:      viper.GetInt("metrics_port"),
		DBURL:            viper.GetString("db_url"),
		RedisURL:         viper.GetString("redis_url"),
		TelegramBotToken: viper.GetString("telegram_bot_token"),
		DisclosureAPIKey: viper.GetString("disclosure_api_key"),
		DisclosurePoll:   time.Duration(viper.GetInt("disclosure_poll_minutes")) * time.Minute,
		AlertEval:        time.Duration(viper.GetInt("alert_eval_minutes")) * time.Minute,
		BusTTL:           time.Duration(viper.GetInt("bus_ttl_minutes")) * time.Minute,
		Timezone:         viper.GetString("timezone"),
		AdminChatID:      viper.GetInt64("admin_chat_id"),
		Debug:            viper.GetBool("debug"),
	}

	if c.TelegramBotToken == "" {
		return c, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.DisclosurePoll < time.Minute {
		return c, fmt.Errorf("DISCLOSURE_POLL_MINUTES must be at least 1")
	}
	if c.AlertEval < time.Minute {
		return c, fmt.Errorf("ALERT_EVAL_MINUTES must be at least 1")
	}

	return c, nil
}
