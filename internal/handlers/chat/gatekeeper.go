package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/bot"
	"github.com/Jasonzhang2023/group-assist-bot/internal/config"
	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	apperrors "github.com/Jasonzhang2023/group-assist-bot/internal/errors"
	"github.com/Jasonzhang2023/group-assist-bot/internal/i18n"
	"github.com/Jasonzhang2023/group-assist-bot/internal/observability"
	"github.com/Jasonzhang2023/group-assist-bot/internal/policy/permissions"
	"github.com/Jasonzhang2023/group-assist-bot/internal/tasks"
)

type gatekeeperStore interface {
	GetJoinSettings(ctx context.Context, chatID int64) (*db.JoinSettings, error)
	GetPendingMember(ctx context.Context, chatID, userID int64) (*db.PendingMember, error)
	GetPendingByUser(ctx context.Context, userID int64) ([]*db.PendingMember, error)
	UpsertPendingMember(ctx context.Context, member *db.PendingMember) error
	SetPendingStatus(ctx context.Context, chatID, userID int64, status db.VerificationStatus) error
}

type gatekeeperOps interface {
	RestrictMember(ctx context.Context, chatID, userID int64, perms *api.ChatPermissions, until time.Time) error
	KickMember(ctx context.Context, chatID, userID int64) error
	SendNotice(ctx context.Context, chatID int64, text string, ttl time.Duration) (api.Message, error)
	DeleteMessage(ctx context.Context, chatID int64, messageID int) error
}

// Gatekeeper holds new members muted until they pass verification: either by
// answering the chat's question or by an admin approving them. Unanswered
// verifications time out and the member is removed.
type Gatekeeper struct {
	store    gatekeeperStore
	ops      gatekeeperOps
	bgOps    gatekeeperOps
	registry *tasks.Registry
	cfg      config.Config
	clock    func() time.Time
}

func NewGatekeeper(store gatekeeperStore, ops, bgOps gatekeeperOps, registry *tasks.Registry) *Gatekeeper {
	return &Gatekeeper{
		store:    store,
		ops:      ops,
		bgOps:    bgOps,
		registry: registry,
		cfg:      config.Get(),
		clock:    time.Now,
	}
}

func VerifyTaskID(chatID, userID int64) string {
	return fmt.Sprintf("verify_%d_%d", chatID, userID)
}

func (g *Gatekeeper) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil || u.Message == nil || chat == nil {
		return true, nil
	}

	if len(u.Message.NewChatMembers) > 0 {
		for i := range u.Message.NewChatMembers {
			member := &u.Message.NewChatMembers[i]
			if member.IsBot {
				continue
			}
			if err := g.handleJoin(ctx, chat.ID, member); err != nil {
				log.WithError(err).WithField("chat", chat.ID).WithField("user", member.ID).
					Error("cant process join")
			}
		}
		return true, nil
	}

	if user == nil || user.IsBot {
		return true, nil
	}
	if chat.IsPrivate() {
		return g.handlePrivateAnswer(ctx, u.Message, user)
	}
	return g.handleGroupAnswer(ctx, u.Message, chat.ID, user)
}

func (g *Gatekeeper) handleJoin(ctx context.Context, chatID int64, user *api.User) error {
	settings, err := g.store.GetJoinSettings(ctx, chatID)
	if err != nil {
		return errors.WithMessage(err, "cant load join settings")
	}
	if settings == nil || !settings.Enabled {
		return nil
	}

	timeout := time.Duration(settings.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = g.cfg.Verification.DefaultTimeout
	}
	now := g.clock()

	if err := g.ops.RestrictMember(ctx, chatID, user.ID, permissions.ForLevel(permissions.LevelStrict), time.Time{}); err != nil {
		log.WithError(err).WithField("chat", chatID).WithField("user", user.ID).
			Error("cant restrict joining member")
	}

	member := &db.PendingMember{
		ChatID:   chatID,
		UserID:   user.ID,
		Username: bot.GetUN(user),
		FullName: bot.GetFullName(user),
		JoinedAt: now,
		Deadline: now.Add(timeout),
		Status:   db.StatusPending,
	}
	if err := g.store.UpsertPendingMember(ctx, member); err != nil {
		return errors.WithMessage(err, "cant record pending member")
	}

	mention := bot.MentionHTML(user.ID, member.FullName)
	switch settings.Mode {
	case db.VerifyModeAdmin:
		if _, err := g.ops.SendNotice(ctx, chatID, i18n.F("join.admin_prompt", mention), timeout); err != nil {
			log.WithError(err).Error("cant send admin prompt")
		}
	default:
		// The question goes to the member's private chat so the answer never
		// leaks into the group. A member the bot cannot message has no way to
		// pass, so they are evicted right away with a hint to open a PM first.
		prompt := i18n.F("join.prompt", mention, int(timeout.Seconds()), settings.Question)
		if _, err := g.ops.SendNotice(ctx, user.ID, prompt, 0); err != nil {
			if apperrors.IsForbidden(err) {
				return g.evictUnreachable(ctx, chatID, user.ID, mention)
			}
			log.WithError(err).Error("cant send verification prompt")
		}
	}

	g.registry.Schedule(context.WithoutCancel(ctx), VerifyTaskID(chatID, user.ID), timeout, g.timeoutWork(chatID, user.ID, mention))
	log.WithField("chat", chatID).WithField("user", user.ID).WithField("mode", settings.Mode).
		Info("verification started")
	return nil
}

func (g *Gatekeeper) evictUnreachable(ctx context.Context, chatID, userID int64, mention string) error {
	if err := g.store.SetPendingStatus(ctx, chatID, userID, db.StatusRejected); err != nil {
		return errors.WithMessage(err, "cant mark unreachable member rejected")
	}
	if err := g.ops.KickMember(ctx, chatID, userID); err != nil {
		log.WithError(err).WithField("chat", chatID).WithField("user", userID).
			Error("cant evict unreachable member")
	}
	if _, err := g.ops.SendNotice(ctx, chatID, i18n.F("join.cant_pm", mention), g.cfg.Verification.NoticeTTL); err != nil {
		log.WithError(err).Error("cant send unreachable notice")
	}
	observability.RecordVerification("rejected")
	return nil
}

// timeoutWork re-reads the record when it fires: a member approved or
// rejected meanwhile must not be evicted again.
func (g *Gatekeeper) timeoutWork(chatID, userID int64, mention string) tasks.Work {
	return func(ctx context.Context) error {
		member, err := g.store.GetPendingMember(ctx, chatID, userID)
		if err != nil {
			return errors.WithMessage(err, "cant re-read pending member")
		}
		if member == nil || member.Status != db.StatusPending {
			return nil
		}
		if err := g.store.SetPendingStatus(ctx, chatID, userID, db.StatusTimeout); err != nil {
			return errors.WithMessage(err, "cant mark timeout")
		}
		if err := g.bgOps.KickMember(ctx, chatID, userID); err != nil {
			log.WithError(err).WithField("chat", chatID).WithField("user", userID).
				Error("cant evict timed out member")
		}
		if _, err := g.bgOps.SendNotice(ctx, chatID, i18n.F("join.timeout", mention), g.cfg.Verification.NoticeTTL); err != nil {
			log.WithError(err).Error("cant send timeout notice")
		}
		observability.RecordVerification("timeout")
		return nil
	}
}

func (g *Gatekeeper) handleGroupAnswer(ctx context.Context, msg *api.Message, chatID int64, user *api.User) (bool, error) {
	member, err := g.store.GetPendingMember(ctx, chatID, user.ID)
	if err != nil {
		log.WithError(err).Error("cant look up pending member")
		return true, nil
	}
	if member == nil || member.Status != db.StatusPending {
		return true, nil
	}

	settings, err := g.store.GetJoinSettings(ctx, chatID)
	if err != nil || settings == nil || settings.Mode != db.VerifyModeQuestion {
		// Admin mode members cannot talk anyway, swallow the stray message.
		if err := g.ops.DeleteMessage(ctx, chatID, msg.MessageID); err != nil {
			log.WithError(err).Debug("cant delete pending member message")
		}
		return false, nil
	}

	if err := g.ops.DeleteMessage(ctx, chatID, msg.MessageID); err != nil {
		log.WithError(err).Debug("cant delete answer message")
	}
	if answersMatch(msg.Text, settings.Answer) {
		return false, g.Approve(ctx, chatID, user.ID, settings)
	}
	return false, g.Reject(ctx, chatID, user.ID)
}

// handlePrivateAnswer resolves every open verification of the sender. A wrong
// answer counts as a failed verification, same as in the group.
func (g *Gatekeeper) handlePrivateAnswer(ctx context.Context, msg *api.Message, user *api.User) (bool, error) {
	pending, err := g.store.GetPendingByUser(ctx, user.ID)
	if err != nil {
		log.WithError(err).Error("cant look up pending verifications")
		return true, nil
	}
	if len(pending) == 0 {
		return true, nil
	}

	for _, member := range pending {
		settings, err := g.store.GetJoinSettings(ctx, member.ChatID)
		if err != nil || settings == nil || settings.Mode != db.VerifyModeQuestion {
			continue
		}
		if answersMatch(msg.Text, settings.Answer) {
			if err := g.Approve(ctx, member.ChatID, user.ID, settings); err != nil {
				log.WithError(err).WithField("chat", member.ChatID).Error("cant approve member")
			}
		} else {
			if err := g.Reject(ctx, member.ChatID, user.ID); err != nil {
				log.WithError(err).WithField("chat", member.ChatID).Error("cant reject member")
			}
		}
	}
	return false, nil
}

// Approve lifts the join restriction and closes the verification.
func (g *Gatekeeper) Approve(ctx context.Context, chatID, userID int64, settings *db.JoinSettings) error {
	member, err := g.store.GetPendingMember(ctx, chatID, userID)
	if err != nil {
		return errors.WithMessage(err, "cant read pending member")
	}
	if member == nil || member.Status != db.StatusPending {
		return errors.Errorf("no open verification for user %d in chat %d", userID, chatID)
	}
	if err := g.store.SetPendingStatus(ctx, chatID, userID, db.StatusApproved); err != nil {
		return errors.WithMessage(err, "cant mark approved")
	}
	g.registry.Cancel(VerifyTaskID(chatID, userID))

	if err := g.ops.RestrictMember(ctx, chatID, userID, permissions.ForLevel(permissions.LevelOpen), time.Time{}); err != nil {
		log.WithError(err).WithField("chat", chatID).WithField("user", userID).
			Error("cant lift join restriction")
	}

	mention := bot.MentionHTML(userID, member.FullName)
	welcome := i18n.F("join.approved", mention)
	if settings != nil && settings.WelcomeMessage != "" {
		welcome = fmt.Sprintf(settings.WelcomeMessage, mention)
	}
	if _, err := g.ops.SendNotice(ctx, chatID, welcome, g.cfg.Verification.NoticeTTL); err != nil {
		log.WithError(err).Error("cant send welcome notice")
	}
	observability.RecordVerification("approved")
	log.WithField("chat", chatID).WithField("user", userID).Info("member approved")
	return nil
}

// Reject closes the verification and evicts the member without a lasting ban.
func (g *Gatekeeper) Reject(ctx context.Context, chatID, userID int64) error {
	member, err := g.store.GetPendingMember(ctx, chatID, userID)
	if err != nil {
		return errors.WithMessage(err, "cant read pending member")
	}
	if member == nil || member.Status != db.StatusPending {
		return errors.Errorf("no open verification for user %d in chat %d", userID, chatID)
	}
	if err := g.store.SetPendingStatus(ctx, chatID, userID, db.StatusRejected); err != nil {
		return errors.WithMessage(err, "cant mark rejected")
	}
	g.registry.Cancel(VerifyTaskID(chatID, userID))

	if err := g.ops.KickMember(ctx, chatID, userID); err != nil {
		log.WithError(err).WithField("chat", chatID).WithField("user", userID).
			Error("cant evict rejected member")
	}
	mention := bot.MentionHTML(userID, member.FullName)
	if _, err := g.ops.SendNotice(ctx, chatID, i18n.F("join.rejected", mention), g.cfg.Verification.NoticeTTL); err != nil {
		log.WithError(err).Error("cant send rejection notice")
	}
	observability.RecordVerification("rejected")
	log.WithField("chat", chatID).WithField("user", userID).Info("member rejected")
	return nil
}

func answersMatch(given, expected string) bool {
	return strings.EqualFold(strings.TrimSpace(given), strings.TrimSpace(expected)) && strings.TrimSpace(expected) != ""
}
