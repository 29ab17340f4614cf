package config

import "github.com/caarlos0/env/v6"

type Config struct {
	// HTTP port for the API adapter
	HTTPPort string `env:"HTTP_PORT" envDefault:"8080"`

	// Path to the sqlite database file
	DatabasePath string `env:"DATABASE_PATH" envDefault:"database/autosniper.db"`

	Scheduler struct {
		// Seconds between scheduler ticks
		TickSeconds int `env:"SCHEDULER_TICK_SECONDS" envDefault:"60"`

		// Number of concurrent scan workers
		WorkerCount int `env:"SCHEDULER_WORKER_COUNT" envDefault:"4"`

		// Buffered capacity of the scan job queue
		QueueSize int `env:"SCHEDULER_QUEUE_SIZE" envDefault:"64"`

		// Maximum attempts per scan before the job is marked failed
		MaxAttempts int `env:"SCAN_MAX_ATTEMPTS" envDefault:"3"`

		// Retry backoff: base doubles per attempt, capped at max
		BackoffBaseSeconds int `env:"SCAN_BACKOFF_BASE_SECONDS" envDefault:"30"`
		BackoffMaxSeconds  int `env:"SCAN_BACKOFF_MAX_SECONDS" envDefault:"480"`

		// Consecutive scans a listing may miss before it is marked
		// stale for that filter
		StaleScanThreshold int `env:"STALE_SCAN_THRESHOLD" envDefault:"3"`

		// Timeout for a single source connector call (seconds)
		SourceTimeoutSeconds int `env:"SOURCE_TIMEOUT_SECONDS" envDefault:"30"`

		// Global outbound request budget shared by all workers
		RateLimitPerSecond float64 `env:"SOURCE_RATE_LIMIT" envDefault:"2"`
		RateLimitBurst     int     `env:"SOURCE_RATE_BURST" envDefault:"4"`

		// Listings not seen for this many days are removed by the
		// daily cleanup job
		ListingTTLDays int `env:"LISTING_TTL_DAYS" envDefault:"30"`

		// Hours between favorite price re-checks
		FavoriteCheckHours int `env:"FAVORITE_CHECK_HOURS" envDefault:"6"`
	}

	Notify struct {
		// Per-channel delivery timeout (seconds) and retry count
		ChannelTimeoutSeconds int `env:"NOTIFY_CHANNEL_TIMEOUT_SECONDS" envDefault:"10"`
		ChannelRetries        int `env:"NOTIFY_CHANNEL_RETRIES" envDefault:"1"`

		// Minimum price drop (percent) that triggers a per-listing
		// notification; 0 means any decrease qualifies
		PriceDropMinPercent float64 `env:"PRICE_DROP_MIN_PERCENT" envDefault:"0"`

		TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
		PushWebhookURL   string `env:"PUSH_WEBHOOK_URL"`
	}

	Arabam struct {
		BaseURL  string `env:"ARABAM_BASE_URL" envDefault:"http://sandbox.arabamd.com/api/v1"`
		PageSize int    `env:"ARABAM_PAGE_SIZE" envDefault:"50"`
	}
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
