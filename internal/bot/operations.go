package bot

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/config"
	apperrors "github.com/Jasonzhang2023/group-assist-bot/internal/errors"
	"github.com/Jasonzhang2023/group-assist-bot/internal/observability"
	"github.com/Jasonzhang2023/group-assist-bot/internal/tasks"
)

// Operations wraps the raw bot API with the outbound policies every caller
// needs: retry on transient network failures, context guards, and permission
// idempotence on chat-wide changes.
type Operations struct {
	bot      *api.BotAPI
	cfg      config.Config
	registry *tasks.Registry
}

func NewOperations(botAPI *api.BotAPI, cfg config.Config, registry *tasks.Registry) *Operations {
	return &Operations{
		bot:      botAPI,
		cfg:      cfg,
		registry: registry,
	}
}

func (o *Operations) Bot() *api.BotAPI {
	return o.bot
}

// Send delivers a message, re-attempting on transient network failures only.
// Permission and malformed-request failures surface immediately.
func (o *Operations) Send(ctx context.Context, c api.Chattable) (api.Message, error) {
	attempts := o.cfg.Send.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var msg api.Message
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		select {
		case <-ctx.Done():
			return api.Message{}, ctx.Err()
		default:
		}

		msg, err = o.bot.Send(c)
		if err == nil {
			return msg, nil
		}
		if !apperrors.IsRetryable(err) {
			return api.Message{}, err
		}
		if attempt == attempts-1 {
			break
		}

		backoff := o.backoff(attempt)
		log.WithError(err).WithField("attempt", attempt+1).WithField("backoff", backoff.String()).
			Warn("send failed, retrying")
		observability.RecordSendRetry()
		select {
		case <-ctx.Done():
			return api.Message{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return api.Message{}, errors.Wrap(err, "send exhausted retries")
}

func (o *Operations) backoff(attempt int) time.Duration {
	backoffs := o.cfg.Send.RetryBackoffs
	if len(backoffs) == 0 {
		return 100 * time.Millisecond
	}
	if attempt >= len(backoffs) {
		attempt = len(backoffs) - 1
	}
	return backoffs[attempt]
}

func (o *Operations) SendText(ctx context.Context, chatID int64, text string) (api.Message, error) {
	return o.Send(ctx, api.NewMessage(chatID, text))
}

func (o *Operations) SendHTML(ctx context.Context, chatID int64, text string) (api.Message, error) {
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	return o.Send(ctx, msg)
}

// SendNotice posts a transient service message and schedules its deletion
// after ttl. A zero ttl keeps the message forever.
func (o *Operations) SendNotice(ctx context.Context, chatID int64, text string, ttl time.Duration) (api.Message, error) {
	msg, err := o.SendHTML(ctx, chatID, text)
	if err != nil {
		return api.Message{}, err
	}
	if ttl <= 0 || o.registry == nil {
		return msg, nil
	}
	taskID := fmt.Sprintf("delete_msg_%d_%d", chatID, msg.MessageID)
	o.registry.Schedule(context.WithoutCancel(ctx), taskID, ttl, func(taskCtx context.Context) error {
		return o.DeleteMessage(taskCtx, chatID, msg.MessageID)
	})
	return msg, nil
}

func (o *Operations) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := o.bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
			return errors.WithMessage(err, "cant delete message")
		}
		return nil
	}
}

// RestrictMember applies a permission set to one member until the given time.
// A zero until restricts forever.
func (o *Operations) RestrictMember(ctx context.Context, chatID, userID int64, perms *api.ChatPermissions, until time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		var untilUnix int64
		if !until.IsZero() {
			untilUnix = until.Unix()
		}
		if _, err := o.bot.Request(api.RestrictChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			UntilDate:   untilUnix,
			Permissions: perms,
		}); err != nil {
			return errors.WithMessage(err, "cant restrict")
		}
		return nil
	}
}

// SetChatPermissions sets the default member permission set. A "not modified"
// response counts as success.
func (o *Operations) SetChatPermissions(ctx context.Context, chatID int64, perms *api.ChatPermissions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := o.bot.Request(api.SetChatPermissionsConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			Permissions: perms,
		}); err != nil {
			if apperrors.IsNotModified(err) {
				return nil
			}
			return errors.WithMessage(err, "cant set chat permissions")
		}
		return nil
	}
}

func (o *Operations) BanMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		var untilUnix int64
		if !until.IsZero() {
			untilUnix = until.Unix()
		}
		if _, err := o.bot.Request(api.BanChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			UntilDate: untilUnix,
		}); err != nil {
			return errors.WithMessage(err, "cant ban")
		}
		return nil
	}
}

func (o *Operations) UnbanMember(ctx context.Context, chatID, userID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := o.bot.Request(api.UnbanChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			OnlyIfBanned: true,
		}); err != nil {
			return errors.WithMessage(err, "cant unban")
		}
		return nil
	}
}

// KickMember removes a member without a lasting ban: ban then unban, so the
// user may rejoin later.
func (o *Operations) KickMember(ctx context.Context, chatID, userID int64) error {
	if err := o.BanMember(ctx, chatID, userID, time.Time{}); err != nil {
		return err
	}
	return o.UnbanMember(ctx, chatID, userID)
}

func (o *Operations) GetChat(ctx context.Context, chatID int64) (api.ChatFullInfo, error) {
	select {
	case <-ctx.Done():
		return api.ChatFullInfo{}, ctx.Err()
	default:
		chat, err := o.bot.GetChat(api.ChatInfoConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
		})
		return chat, errors.WithMessage(err, "cant get chat")
	}
}

func (o *Operations) GetChatMember(ctx context.Context, chatID, userID int64) (api.ChatMember, error) {
	select {
	case <-ctx.Done():
		return api.ChatMember{}, ctx.Err()
	default:
		member, err := o.bot.GetChatMember(api.GetChatMemberConfig{
			ChatConfigWithUser: api.ChatConfigWithUser{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
		})
		return member, errors.WithMessage(err, "cant get chat member")
	}
}

// MentionHTML builds a user mention for HTML parse mode.
func MentionHTML(userID int64, name string) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, userID, name)
}
