package moderation

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/bot"
	"github.com/Jasonzhang2023/group-assist-bot/internal/config"
	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	"github.com/Jasonzhang2023/group-assist-bot/internal/i18n"
	"github.com/Jasonzhang2023/group-assist-bot/internal/observability"
	"github.com/Jasonzhang2023/group-assist-bot/internal/policy/permissions"
)

type spamStore interface {
	GetSpamFilterSettings(ctx context.Context, chatID int64) (*db.SpamFilterSettings, error)
	IsWhitelisted(ctx context.Context, chatID, userID int64) (bool, error)
}

type spamOps interface {
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
	SendNotice(ctx context.Context, chatID int64, text string, ttl time.Duration) (api.Message, error)
}

// SpamControl evaluates group messages against the chat's spam rules and
// applies the matched rule's action. Storage or API trouble never blocks a
// message: evaluation fails open.
type SpamControl struct {
	store spamStore
	ops   spamOps
	mutes *MuteService
	cfg   config.Config
}

func NewSpamControl(store spamStore, ops spamOps, mutes *MuteService) *SpamControl {
	return &SpamControl{
		store: store,
		ops:   ops,
		mutes: mutes,
		cfg:   config.Get(),
	}
}

func (s *SpamControl) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil || u.Message == nil || chat == nil || user == nil {
		return true, nil
	}
	if chat.IsPrivate() || user.IsBot {
		return true, nil
	}

	entry := log.WithField("context", "spam_control").WithField("chat", chat.ID).WithField("user", user.ID)

	// Whitelist short-circuits everything, including rule loading.
	whitelisted, err := s.store.IsWhitelisted(ctx, chat.ID, user.ID)
	if err != nil {
		entry.WithError(err).Error("cant check whitelist, letting message through")
		return true, nil
	}
	if whitelisted {
		return true, nil
	}

	settings, err := s.store.GetSpamFilterSettings(ctx, chat.ID)
	if err != nil {
		entry.WithError(err).Error("cant load spam settings, letting message through")
		return true, nil
	}
	if settings == nil || !settings.Enabled || len(settings.Rules) == 0 {
		return true, nil
	}

	content := bot.ExtractContentFromMessage(u.Message)
	match := EvaluateRules(content, settings.Rules)
	if match == nil {
		return true, nil
	}
	entry.WithField("reason", match.Reason).WithField("action", match.Rule.Action).Info("spam rule matched")

	mention := bot.MentionHTML(user.ID, bot.GetFullName(user))
	switch match.Rule.Action {
	case db.ActionDelete:
		if err := s.ops.DeleteMessage(ctx, chat.ID, u.Message.MessageID); err != nil {
			entry.WithError(err).Error("cant delete flagged message")
		}
	case db.ActionWarn:
		// The message stays, the sender gets a visible nudge.
		if _, err := s.ops.SendNotice(ctx, chat.ID, i18n.F("spam.warn", mention), s.cfg.Verification.NoticeTTL); err != nil {
			entry.WithError(err).Error("cant send warn notice")
		}
	case db.ActionMute:
		if err := s.ops.DeleteMessage(ctx, chat.ID, u.Message.MessageID); err != nil {
			entry.WithError(err).Error("cant delete flagged message")
		}
		if err := s.mutes.MuteUser(ctx, chat.ID, user.ID, permissions.LevelStrict, s.cfg.SpamControl.MuteDuration); err != nil {
			entry.WithError(err).Error("cant mute spammer")
		} else if _, err := s.ops.SendNotice(ctx, chat.ID, i18n.F("spam.muted", mention), s.cfg.Verification.NoticeTTL); err != nil {
			entry.WithError(err).Error("cant send mute notice")
		}
	}

	observability.RecordSpamAction(string(match.Rule.Action))
	return false, nil
}
