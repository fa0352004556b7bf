package moderation

import (
	"context"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

type fakeSpamStore struct {
	settings    *db.SpamFilterSettings
	whitelisted map[int64]bool
}

func (f *fakeSpamStore) GetSpamFilterSettings(ctx context.Context, chatID int64) (*db.SpamFilterSettings, error) {
	return f.settings, nil
}

func (f *fakeSpamStore) IsWhitelisted(ctx context.Context, chatID, userID int64) (bool, error) {
	return f.whitelisted[userID], nil
}

type fakeSpamOps struct {
	deleted []int
	notices []string
}

func (f *fakeSpamOps) DeleteMessage(ctx context.Context, chatID int64, messageID int) error {
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeSpamOps) SendNotice(ctx context.Context, chatID int64, text string, ttl time.Duration) (api.Message, error) {
	f.notices = append(f.notices, text)
	return api.Message{MessageID: 99}, nil
}

func groupMessageUpdate(chatID, userID int64, text string) (*api.Update, *api.Chat, *api.User) {
	chat := &api.Chat{ID: chatID, Type: "supergroup"}
	user := &api.User{ID: userID, FirstName: "John"}
	u := &api.Update{
		Message: &api.Message{
			MessageID: 7,
			Chat:      *chat,
			From:      user,
			Text:      text,
			Date:      int(time.Now().Unix()),
		},
	}
	return u, chat, user
}

func TestSpamControlDeletesMatchedMessage(t *testing.T) {
	store := &fakeSpamStore{
		settings: &db.SpamFilterSettings{
			ChatID:  1,
			Enabled: true,
			Rules:   db.SpamRules{{Type: db.RuleTypeKeyword, Content: "spam", Action: db.ActionDelete}},
		},
	}
	ops := &fakeSpamOps{}
	control := NewSpamControl(store, ops, NewMuteService(&fakeOps{}, nil))

	u, chat, user := groupMessageUpdate(1, 2, "this is SPAM content")
	proceed, err := control.Handle(context.Background(), u, chat, user)
	assert.NoError(t, err)
	assert.False(t, proceed)
	assert.Equal(t, []int{7}, ops.deleted)
	assert.Empty(t, ops.notices)
}

func TestSpamControlLetsCleanMessagesThrough(t *testing.T) {
	store := &fakeSpamStore{
		settings: &db.SpamFilterSettings{
			ChatID:  1,
			Enabled: true,
			Rules:   db.SpamRules{{Type: db.RuleTypeKeyword, Content: "spam", Action: db.ActionDelete}},
		},
	}
	ops := &fakeSpamOps{}
	control := NewSpamControl(store, ops, NewMuteService(&fakeOps{}, nil))

	u, chat, user := groupMessageUpdate(1, 2, "hello there")
	proceed, err := control.Handle(context.Background(), u, chat, user)
	assert.NoError(t, err)
	assert.True(t, proceed)
	assert.Empty(t, ops.deleted)
}

func TestSpamControlSkipsWhitelistedUsers(t *testing.T) {
	store := &fakeSpamStore{
		settings: &db.SpamFilterSettings{
			ChatID:  1,
			Enabled: true,
			Rules:   db.SpamRules{{Type: db.RuleTypeKeyword, Content: "spam", Action: db.ActionDelete}},
		},
		whitelisted: map[int64]bool{2: true},
	}
	ops := &fakeSpamOps{}
	control := NewSpamControl(store, ops, NewMuteService(&fakeOps{}, nil))

	u, chat, user := groupMessageUpdate(1, 2, "spam spam spam")
	proceed, err := control.Handle(context.Background(), u, chat, user)
	assert.NoError(t, err)
	assert.True(t, proceed)
	assert.Empty(t, ops.deleted)
}

func TestSpamControlDisabledFilterIsInert(t *testing.T) {
	store := &fakeSpamStore{
		settings: &db.SpamFilterSettings{ChatID: 1, Enabled: false},
	}
	ops := &fakeSpamOps{}
	control := NewSpamControl(store, ops, NewMuteService(&fakeOps{}, nil))

	u, chat, user := groupMessageUpdate(1, 2, "spam")
	proceed, err := control.Handle(context.Background(), u, chat, user)
	assert.NoError(t, err)
	assert.True(t, proceed)
}

func TestSpamControlMuteActionRestrictsSender(t *testing.T) {
	store := &fakeSpamStore{
		settings: &db.SpamFilterSettings{
			ChatID:  1,
			Enabled: true,
			Rules:   db.SpamRules{{Type: db.RuleTypeURL, Content: "*", Action: db.ActionMute}},
		},
	}
	ops := &fakeSpamOps{}
	muteTarget := &fakeOps{}
	control := NewSpamControl(store, ops, NewMuteService(muteTarget, nil))

	u, chat, user := groupMessageUpdate(1, 2, "buy at https://evil.tld")
	proceed, err := control.Handle(context.Background(), u, chat, user)
	assert.NoError(t, err)
	assert.False(t, proceed)
	assert.Equal(t, []int{7}, ops.deleted)
	assert.Len(t, muteTarget.restricts(), 1)
	assert.Len(t, ops.notices, 1)
}

func TestSpamControlIgnoresPrivateChats(t *testing.T) {
	store := &fakeSpamStore{
		settings: &db.SpamFilterSettings{
			ChatID:  1,
			Enabled: true,
			Rules:   db.SpamRules{{Type: db.RuleTypeKeyword, Content: "spam", Action: db.ActionDelete}},
		},
	}
	ops := &fakeSpamOps{}
	control := NewSpamControl(store, ops, NewMuteService(&fakeOps{}, nil))

	chat := &api.Chat{ID: 1, Type: "private"}
	user := &api.User{ID: 2}
	u := &api.Update{Message: &api.Message{MessageID: 7, Chat: *chat, From: user, Text: "spam"}}
	proceed, err := control.Handle(context.Background(), u, chat, user)
	assert.NoError(t, err)
	assert.True(t, proceed)
	assert.Empty(t, ops.deleted)
}
