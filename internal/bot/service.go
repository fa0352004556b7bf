package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	"github.com/Jasonzhang2023/group-assist-bot/internal/tasks"
)

type ServiceBot interface {
	GetBot() *api.BotAPI
	GetOps() *Operations
	// GetBackgroundOps returns operations bound to a dedicated single
	// connection client, for work that fires from scheduled tasks.
	GetBackgroundOps() *Operations
}

type ServiceDB interface {
	GetDB() db.Client
}

type ServiceTasks interface {
	GetRegistry() *tasks.Registry
}

type Service interface {
	ServiceBot
	ServiceDB
	ServiceTasks
}

// Handler is one stage of the update pipeline. Returning proceed=false stops
// the remaining stages for this update.
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}

type service struct {
	bot      *api.BotAPI
	ops      *Operations
	bgOps    *Operations
	db       db.Client
	registry *tasks.Registry
}

func NewService(ops, bgOps *Operations, dbClient db.Client, registry *tasks.Registry) *service {
	return &service{
		bot:      ops.Bot(),
		ops:      ops,
		bgOps:    bgOps,
		db:       dbClient,
		registry: registry,
	}
}

func (s *service) GetBot() *api.BotAPI {
	return s.bot
}

func (s *service) GetOps() *Operations {
	return s.ops
}

func (s *service) GetBackgroundOps() *Operations {
	return s.bgOps
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetRegistry() *tasks.Registry {
	return s.registry
}
