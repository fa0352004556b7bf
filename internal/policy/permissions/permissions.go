package permissions

import (
	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
)

// Level names a preset restriction profile for a chat or a member.
type Level string

const (
	// LevelStrict revokes every permission, nobody talks.
	LevelStrict Level = "strict"
	// LevelLenient allows plain text only, no media or embeds.
	LevelLenient Level = "lenient"
	// LevelOpen grants the full member permission set.
	LevelOpen Level = "open"
)

func ParseLevel(s string) (Level, error) {
	switch Level(s) {
	case LevelStrict, LevelLenient, LevelOpen:
		return Level(s), nil
	case "":
		return LevelStrict, nil
	}
	return "", errors.Errorf("unknown mute level %q", s)
}

// ForLevel materializes the permission set a level stands for.
func ForLevel(level Level) *api.ChatPermissions {
	switch level {
	case LevelOpen:
		return &api.ChatPermissions{
			CanSendMessages:       true,
			CanSendAudios:         true,
			CanSendDocuments:      true,
			CanSendPhotos:         true,
			CanSendVideos:         true,
			CanSendVideoNotes:     true,
			CanSendVoiceNotes:     true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
			CanChangeInfo:         false,
			CanInviteUsers:        true,
			CanPinMessages:        false,
			CanManageTopics:       false,
		}
	case LevelLenient:
		return &api.ChatPermissions{
			CanSendMessages: true,
		}
	default:
		return &api.ChatPermissions{}
	}
}

// Equal compares two permission sets field by field. A nil set counts as
// all-false.
func Equal(a, b *api.ChatPermissions) bool {
	if a == nil {
		a = &api.ChatPermissions{}
	}
	if b == nil {
		b = &api.ChatPermissions{}
	}
	return a.CanSendMessages == b.CanSendMessages &&
		a.CanSendAudios == b.CanSendAudios &&
		a.CanSendDocuments == b.CanSendDocuments &&
		a.CanSendPhotos == b.CanSendPhotos &&
		a.CanSendVideos == b.CanSendVideos &&
		a.CanSendVideoNotes == b.CanSendVideoNotes &&
		a.CanSendVoiceNotes == b.CanSendVoiceNotes &&
		a.CanSendPolls == b.CanSendPolls &&
		a.CanSendOtherMessages == b.CanSendOtherMessages &&
		a.CanAddWebPagePreviews == b.CanAddWebPagePreviews &&
		a.CanChangeInfo == b.CanChangeInfo &&
		a.CanInviteUsers == b.CanInviteUsers &&
		a.CanPinMessages == b.CanPinMessages &&
		a.CanManageTopics == b.CanManageTopics
}

// IsManager reports whether a chat member may run moderation commands.
func IsManager(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

// CanRestrict reports whether a manager may change member permissions.
func CanRestrict(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	return member.IsCreator() || (member.IsAdministrator() && member.CanRestrictMembers)
}
