package db

import (
	"context"
	"time"
)

// MessageQuery filters the archive listing. Zero values mean "no filter".
type MessageQuery struct {
	ChatID int64
	UserID int64
	Since  time.Time
	Until  time.Time
	Search string
	Limit  int
	Offset int
}

// ChatRef identifies a chat seen in the message archive.
type ChatRef struct {
	ChatID    int64  `db:"chat_id" json:"chat_id"`
	ChatTitle string `db:"chat_title" json:"chat_title"`
}

type Client interface {
	Close() error

	// Pending member lifecycle.
	GetPendingMember(ctx context.Context, chatID, userID int64) (*PendingMember, error)
	GetPendingByUser(ctx context.Context, userID int64) ([]*PendingMember, error)
	ListPendingMembers(ctx context.Context, chatID int64) ([]*PendingMember, error)
	UpsertPendingMember(ctx context.Context, member *PendingMember) error
	SetPendingStatus(ctx context.Context, chatID, userID int64, status VerificationStatus) error
	DeletePendingMember(ctx context.Context, chatID, userID int64) error
	PurgeResolvedPending(ctx context.Context, before time.Time) (int64, error)

	// Join verification settings.
	GetJoinSettings(ctx context.Context, chatID int64) (*JoinSettings, error)
	SetJoinSettings(ctx context.Context, settings *JoinSettings) error

	// Auto-mute schedules.
	GetAutoMuteSettings(ctx context.Context, chatID int64) (*AutoMuteSettings, error)
	ListEnabledAutoMute(ctx context.Context) ([]*AutoMuteSettings, error)
	SetAutoMuteSettings(ctx context.Context, settings *AutoMuteSettings) error
	DeleteAutoMuteSettings(ctx context.Context, chatID int64) error

	// Spam filter configuration and whitelist.
	GetSpamFilterSettings(ctx context.Context, chatID int64) (*SpamFilterSettings, error)
	SetSpamFilterSettings(ctx context.Context, settings *SpamFilterSettings) error
	IsWhitelisted(ctx context.Context, chatID, userID int64) (bool, error)
	ListWhitelist(ctx context.Context, chatID int64) ([]*WhitelistEntry, error)
	AddWhitelistEntry(ctx context.Context, entry *WhitelistEntry) error
	RemoveWhitelistEntry(ctx context.Context, chatID, userID int64) error

	// Message archive.
	SaveMessage(ctx context.Context, message *ArchivedMessage) error
	ListMessages(ctx context.Context, query MessageQuery) ([]*ArchivedMessage, error)
	CountMessages(ctx context.Context, query MessageQuery) (int64, error)
	ListArchivedChats(ctx context.Context) ([]ChatRef, error)
}
