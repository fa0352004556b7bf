package moderation

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/policy/permissions"
	"github.com/Jasonzhang2023/group-assist-bot/internal/tasks"
)

// muteOps is the slice of bot operations the mute service needs.
type muteOps interface {
	GetChat(ctx context.Context, chatID int64) (api.ChatFullInfo, error)
	SetChatPermissions(ctx context.Context, chatID int64, perms *api.ChatPermissions) error
	RestrictMember(ctx context.Context, chatID, userID int64, perms *api.ChatPermissions, until time.Time) error
}

// MuteService applies permission transitions on chats and members. Chat-wide
// transitions compare against the current permission set first, so repeating
// a transition is a no-op.
type MuteService struct {
	ops      muteOps
	registry *tasks.Registry
}

func NewMuteService(ops muteOps, registry *tasks.Registry) *MuteService {
	return &MuteService{ops: ops, registry: registry}
}

// MuteChat moves the whole chat to the given restriction level. Returns
// whether the permission set actually changed. A positive duration schedules
// the reverse transition; scheduling again for the same chat replaces the
// pending reversal instead of stacking one.
func (m *MuteService) MuteChat(ctx context.Context, chatID int64, level permissions.Level, duration time.Duration) (bool, error) {
	changed, err := m.transitionChat(ctx, chatID, permissions.ForLevel(level))
	if err != nil {
		return changed, err
	}
	if duration > 0 && m.registry != nil {
		// The work must not cancel its own registration, so it skips the
		// UnmuteChat wrapper and applies the transition directly.
		m.registry.Schedule(context.WithoutCancel(ctx), GroupMuteTaskID(chatID), duration, func(taskCtx context.Context) error {
			_, err := m.transitionChat(taskCtx, chatID, permissions.ForLevel(permissions.LevelOpen))
			return err
		})
	}
	return changed, nil
}

// UnmuteChat restores the open member permission set and drops any pending
// scheduled reversal.
func (m *MuteService) UnmuteChat(ctx context.Context, chatID int64) (bool, error) {
	if m.registry != nil {
		m.registry.Cancel(GroupMuteTaskID(chatID))
	}
	return m.transitionChat(ctx, chatID, permissions.ForLevel(permissions.LevelOpen))
}

func (m *MuteService) transitionChat(ctx context.Context, chatID int64, target *api.ChatPermissions) (bool, error) {
	chat, err := m.ops.GetChat(ctx, chatID)
	if err == nil && permissions.Equal(chat.Permissions, target) {
		log.WithField("chat", chatID).Debug("chat permissions already match, skipping")
		return false, nil
	}
	if err != nil {
		log.WithError(err).WithField("chat", chatID).Warn("cant read chat permissions, setting anyway")
	}
	if err := m.ops.SetChatPermissions(ctx, chatID, target); err != nil {
		return false, errors.WithMessage(err, "cant transition chat")
	}
	return true, nil
}

// MuteUser restricts a single member. A positive duration schedules the
// reverse transition, replacing any earlier pending unmute for the same
// member.
func (m *MuteService) MuteUser(ctx context.Context, chatID, userID int64, level permissions.Level, duration time.Duration) error {
	var until time.Time
	if duration > 0 {
		until = time.Now().Add(duration)
	}
	if err := m.ops.RestrictMember(ctx, chatID, userID, permissions.ForLevel(level), until); err != nil {
		return err
	}
	if duration > 0 && m.registry != nil {
		taskID := UserMuteTaskID(chatID, userID)
		m.registry.Schedule(context.WithoutCancel(ctx), taskID, duration, func(taskCtx context.Context) error {
			return m.ops.RestrictMember(taskCtx, chatID, userID, permissions.ForLevel(permissions.LevelOpen), time.Time{})
		})
	}
	return nil
}

// UnmuteUser lifts a member restriction and drops any pending scheduled
// unmute.
func (m *MuteService) UnmuteUser(ctx context.Context, chatID, userID int64) error {
	if m.registry != nil {
		m.registry.Cancel(UserMuteTaskID(chatID, userID))
	}
	return m.ops.RestrictMember(ctx, chatID, userID, permissions.ForLevel(permissions.LevelOpen), time.Time{})
}

func UserMuteTaskID(chatID, userID int64) string {
	return fmt.Sprintf("user_mute_%d_%d", chatID, userID)
}

func GroupMuteTaskID(chatID int64) string {
	return fmt.Sprintf("group_mute_%d", chatID)
}
