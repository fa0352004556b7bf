package bot

import (
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
)

func TestGetUN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", GetUN(nil))
	assert.Equal(t, "wavecut", GetUN(&api.User{UserName: "wavecut"}))
	assert.Equal(t, "John Doe", GetUN(&api.User{FirstName: "John", LastName: "Doe"}))
	assert.Equal(t, "John", GetUN(&api.User{FirstName: "John"}))
}

func TestGetFullName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", GetFullName(nil))
	assert.Equal(t, "John Doe", GetFullName(&api.User{FirstName: "John", LastName: "Doe", UserName: "jd"}))
	assert.Equal(t, "jd", GetFullName(&api.User{UserName: "jd"}))
}

func TestGetMessageType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, MessageTypeText, GetMessageType(&api.Message{Text: "hi"}))
	assert.Equal(t, MessageTypePhoto, GetMessageType(&api.Message{Photo: []api.PhotoSize{{}}}))
	assert.Equal(t, MessageTypeSticker, GetMessageType(&api.Message{Sticker: &api.Sticker{}}))
}

func TestExtractContentFromMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "hello world", ExtractContentFromMessage(&api.Message{Text: "hello", Caption: "world"}))

	withButtons := &api.Message{
		Text: "click",
		ReplyMarkup: &api.InlineKeyboardMarkup{
			InlineKeyboard: [][]api.InlineKeyboardButton{{{Text: "Join now"}}},
		},
	}
	assert.Equal(t, "click Join now", ExtractContentFromMessage(withButtons))
}

func TestMentionHTML(t *testing.T) {
	t.Parallel()

	assert.Equal(t, `<a href="tg://user?id=42">John</a>`, MentionHTML(42, "John"))
}
