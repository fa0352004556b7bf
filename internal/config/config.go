package config

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
)

type (
	Config struct {
		TelegramAPIToken string   `env:"TOKEN,required"`
		WebhookURL       string   `env:"WEBHOOK_URL"`
		ListenAddr       string   `env:"LISTEN_ADDR,default=:8080"`
		MetricsAddr      string   `env:"METRICS_ADDR,default=:2112"`
		Timezone         string   `env:"TZ,default=UTC"`
		DotPath          string   `env:"DOT_PATH,default=~/.gab"`
		DBPath           string   `env:"DB_PATH,default=bot.db"`
		LogLevel         int      `env:"LOG_LEVEL,default=4"`
		EnabledHandlers  []string `env:"HANDLERS,default=spam,gatekeeper,archive"`

		HTTP         HTTP
		Send         Send
		Verification Verification
		SpamControl  SpamControl
	}

	HTTP struct {
		PoolSize       int           `env:"HTTP_POOL_SIZE,default=8"`
		ConnectTimeout time.Duration `env:"HTTP_CONNECT_TIMEOUT,default=30s"`
		RequestTimeout time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=30s"`
		PoolTimeout    time.Duration `env:"HTTP_POOL_TIMEOUT,default=3s"`
	}

	Send struct {
		RetryAttempts int             `env:"SEND_RETRY_ATTEMPTS,default=3"`
		RetryBackoffs []time.Duration `env:"SEND_RETRY_BACKOFFS,default=100ms,500ms,1s"`
	}

	Verification struct {
		DefaultTimeout  time.Duration `env:"VERIFY_DEFAULT_TIMEOUT,default=5m"`
		NoticeTTL       time.Duration `env:"VERIFY_NOTICE_TTL,default=15s"`
		JanitorInterval time.Duration `env:"VERIFY_JANITOR_INTERVAL,default=1h"`
	}

	SpamControl struct {
		MuteDuration time.Duration `env:"SPAM_MUTE_DURATION,default=10m"`
	}
)

var (
	once         sync.Once
	globalConfig = &Config{}
	globalErr    error
)

func Load() (Config, error) {
	once.Do(func() {
		cfg := &Config{}
		envcfg := envconfig.Config{
			Lookuper: envconfig.PrefixLookuper("GAB_", envconfig.OsLookuper()),
			Target:   cfg,
		}
		if err := envconfig.ProcessWith(context.Background(), &envcfg); err != nil {
			globalErr = fmt.Errorf("process env config: %w", err)
			return
		}
		cfg.DotPath = strings.TrimRight(cfg.DotPath, "/")
		log.Traceln("loaded config")
		globalConfig = cfg
	})
	return *globalConfig, globalErr
}

func Get() Config {
	cfg, err := Load()
	if err != nil {
		log.WithField("error", err.Error()).Error("cant load config")
	}
	return cfg
}

// Location resolves the configured timezone, falling back to UTC on a bad name.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.WithField("tz", c.Timezone).Warn("unknown timezone, using UTC")
		return time.UTC
	}
	return loc
}
