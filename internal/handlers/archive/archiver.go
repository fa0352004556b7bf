package archive

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/bot"
	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
)

type archiveStore interface {
	SaveMessage(ctx context.Context, message *db.ArchivedMessage) error
}

// Archiver records a normalized copy of every group message it sees. It never
// blocks the pipeline: storage failures are logged and the update proceeds.
type Archiver struct {
	store archiveStore
}

func NewArchiver(store archiveStore) *Archiver {
	return &Archiver{store: store}
}

func (a *Archiver) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u == nil || chat == nil || chat.IsPrivate() {
		return true, nil
	}
	msg := u.Message
	if msg == nil {
		msg = u.ChannelPost
	}
	if msg == nil {
		return true, nil
	}

	// Channel posts carry no sender, only an optional author signature.
	userName := bot.GetUN(user)
	if userName == "" {
		userName = msg.AuthorSignature
	}

	record := &db.ArchivedMessage{
		Timestamp:   time.Unix(int64(msg.Date), 0),
		ChatID:      chat.ID,
		ChatTitle:   chat.Title,
		ChatType:    chat.Type,
		UserName:    userName,
		ContentType: string(bot.GetMessageType(msg)),
		Content:     bot.ExtractContentFromMessage(msg),
		IsTopic:     msg.IsTopicMessage,
		TopicID:     int64(msg.MessageThreadID),
		ForwardFrom: forwardOriginName(msg),
	}
	if user != nil {
		record.FromUserID = user.ID
	}

	if err := a.store.SaveMessage(ctx, record); err != nil {
		log.WithError(err).WithField("chat", chat.ID).Error("cant archive message")
	}
	return true, nil
}

func forwardOriginName(msg *api.Message) string {
	origin := msg.ForwardOrigin
	if origin == nil {
		return ""
	}
	switch {
	case origin.SenderUser != nil:
		return bot.GetUN(origin.SenderUser)
	case origin.SenderUserName != "":
		return origin.SenderUserName
	case origin.SenderChat != nil:
		return origin.SenderChat.Title
	case origin.Chat != nil:
		return origin.Chat.Title
	}
	return ""
}
