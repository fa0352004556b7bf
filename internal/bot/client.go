package bot

import (
	"net"
	"net/http"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/Jasonzhang2023/group-assist-bot/internal/config"
)

// NewHTTPClient builds the pooled client used for the foreground update path.
func NewHTTPClient(cfg config.HTTP) *http.Client {
	return &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.ConnectTimeout,
			}).DialContext,
			MaxIdleConns:        cfg.PoolSize,
			MaxIdleConnsPerHost: cfg.PoolSize,
			MaxConnsPerHost:     cfg.PoolSize,
			IdleConnTimeout:     cfg.PoolTimeout,
		},
	}
}

// NewBackgroundHTTPClient builds a single connection client. Scheduled tasks
// go through it so a burst of background work cannot starve the update path.
func NewBackgroundHTTPClient(cfg config.HTTP) *http.Client {
	return &http.Client{
		Timeout: cfg.RequestTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: cfg.ConnectTimeout,
			}).DialContext,
			MaxIdleConns:        1,
			MaxIdleConnsPerHost: 1,
			MaxConnsPerHost:     1,
			IdleConnTimeout:     cfg.PoolTimeout,
		},
	}
}

func NewBot(token string, httpClient *http.Client) (*api.BotAPI, error) {
	botAPI, err := api.NewBotAPIWithClient(token, api.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "cant initialize bot api")
	}
	return botAPI, nil
}
