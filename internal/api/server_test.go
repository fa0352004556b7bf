package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tg "github.com/OvyFlash/telegram-bot-api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jasonzhang2023/group-assist-bot/internal/bot"
	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/chat"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/moderation"
	"github.com/Jasonzhang2023/group-assist-bot/internal/tasks"
)

// memStore is an in-memory db.Client for route tests.
type memStore struct {
	joinSettings map[int64]*db.JoinSettings
	autoMute     map[int64]*db.AutoMuteSettings
	spam         map[int64]*db.SpamFilterSettings
	pending      map[string]*db.PendingMember
	whitelist    map[string]*db.WhitelistEntry
	messages     []*db.ArchivedMessage
}

func newMemStore() *memStore {
	return &memStore{
		joinSettings: make(map[int64]*db.JoinSettings),
		autoMute:     make(map[int64]*db.AutoMuteSettings),
		spam:         make(map[int64]*db.SpamFilterSettings),
		pending:      make(map[string]*db.PendingMember),
		whitelist:    make(map[string]*db.WhitelistEntry),
	}
}

func pairKey(chatID, userID int64) string { return fmt.Sprintf("%d:%d", chatID, userID) }

func (m *memStore) Close() error { return nil }

func (m *memStore) GetPendingMember(ctx context.Context, chatID, userID int64) (*db.PendingMember, error) {
	return m.pending[pairKey(chatID, userID)], nil
}

func (m *memStore) GetPendingByUser(ctx context.Context, userID int64) ([]*db.PendingMember, error) {
	var out []*db.PendingMember
	for _, p := range m.pending {
		if p.UserID == userID && p.Status == db.StatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) ListPendingMembers(ctx context.Context, chatID int64) ([]*db.PendingMember, error) {
	var out []*db.PendingMember
	for _, p := range m.pending {
		if p.ChatID == chatID && p.Status == db.StatusPending {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpsertPendingMember(ctx context.Context, member *db.PendingMember) error {
	m.pending[pairKey(member.ChatID, member.UserID)] = member
	return nil
}

func (m *memStore) SetPendingStatus(ctx context.Context, chatID, userID int64, status db.VerificationStatus) error {
	if p, ok := m.pending[pairKey(chatID, userID)]; ok {
		p.Status = status
	}
	return nil
}

func (m *memStore) DeletePendingMember(ctx context.Context, chatID, userID int64) error {
	delete(m.pending, pairKey(chatID, userID))
	return nil
}

func (m *memStore) PurgeResolvedPending(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *memStore) GetJoinSettings(ctx context.Context, chatID int64) (*db.JoinSettings, error) {
	if s, ok := m.joinSettings[chatID]; ok {
		return s, nil
	}
	return db.DefaultJoinSettings(chatID), nil
}

func (m *memStore) SetJoinSettings(ctx context.Context, settings *db.JoinSettings) error {
	m.joinSettings[settings.ChatID] = settings
	return nil
}

func (m *memStore) GetAutoMuteSettings(ctx context.Context, chatID int64) (*db.AutoMuteSettings, error) {
	return m.autoMute[chatID], nil
}

func (m *memStore) ListEnabledAutoMute(ctx context.Context) ([]*db.AutoMuteSettings, error) {
	var out []*db.AutoMuteSettings
	for _, s := range m.autoMute {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) SetAutoMuteSettings(ctx context.Context, settings *db.AutoMuteSettings) error {
	m.autoMute[settings.ChatID] = settings
	return nil
}

func (m *memStore) DeleteAutoMuteSettings(ctx context.Context, chatID int64) error {
	delete(m.autoMute, chatID)
	return nil
}

func (m *memStore) GetSpamFilterSettings(ctx context.Context, chatID int64) (*db.SpamFilterSettings, error) {
	if s, ok := m.spam[chatID]; ok {
		return s, nil
	}
	return &db.SpamFilterSettings{ChatID: chatID}, nil
}

func (m *memStore) SetSpamFilterSettings(ctx context.Context, settings *db.SpamFilterSettings) error {
	m.spam[settings.ChatID] = settings
	return nil
}

func (m *memStore) IsWhitelisted(ctx context.Context, chatID, userID int64) (bool, error) {
	_, ok := m.whitelist[pairKey(chatID, userID)]
	return ok, nil
}

func (m *memStore) ListWhitelist(ctx context.Context, chatID int64) ([]*db.WhitelistEntry, error) {
	var out []*db.WhitelistEntry
	for _, e := range m.whitelist {
		if e.ChatID == chatID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) AddWhitelistEntry(ctx context.Context, entry *db.WhitelistEntry) error {
	m.whitelist[pairKey(entry.ChatID, entry.UserID)] = entry
	return nil
}

func (m *memStore) RemoveWhitelistEntry(ctx context.Context, chatID, userID int64) error {
	delete(m.whitelist, pairKey(chatID, userID))
	return nil
}

func (m *memStore) SaveMessage(ctx context.Context, message *db.ArchivedMessage) error {
	m.messages = append(m.messages, message)
	return nil
}

func (m *memStore) ListMessages(ctx context.Context, query db.MessageQuery) ([]*db.ArchivedMessage, error) {
	return m.messages, nil
}

func (m *memStore) CountMessages(ctx context.Context, query db.MessageQuery) (int64, error) {
	return int64(len(m.messages)), nil
}

func (m *memStore) ListArchivedChats(ctx context.Context) ([]db.ChatRef, error) {
	return nil, nil
}

type nopOps struct {
	sent []string
}

func (o *nopOps) GetChat(ctx context.Context, chatID int64) (tg.ChatFullInfo, error) {
	return tg.ChatFullInfo{}, nil
}

func (o *nopOps) SetChatPermissions(ctx context.Context, chatID int64, perms *tg.ChatPermissions) error {
	return nil
}

func (o *nopOps) RestrictMember(ctx context.Context, chatID, userID int64, perms *tg.ChatPermissions, until time.Time) error {
	return nil
}

func (o *nopOps) KickMember(ctx context.Context, chatID, userID int64) error { return nil }

func (o *nopOps) SendNotice(ctx context.Context, chatID int64, text string, ttl time.Duration) (tg.Message, error) {
	return tg.Message{}, nil
}

func (o *nopOps) DeleteMessage(ctx context.Context, chatID int64, messageID int) error { return nil }

func (o *nopOps) SendText(ctx context.Context, chatID int64, text string) (tg.Message, error) {
	o.sent = append(o.sent, text)
	return tg.Message{MessageID: len(o.sent)}, nil
}

func (o *nopOps) SendHTML(ctx context.Context, chatID int64, text string) (tg.Message, error) {
	return o.SendText(ctx, chatID, text)
}

func (o *nopOps) BanMember(ctx context.Context, chatID, userID int64, until time.Time) error {
	return nil
}

func (o *nopOps) UnbanMember(ctx context.Context, chatID, userID int64) error { return nil }

type nopService struct {
	store db.Client
}

func (s *nopService) GetBot() *tg.BotAPI                { return nil }
func (s *nopService) GetOps() *bot.Operations           { return nil }
func (s *nopService) GetBackgroundOps() *bot.Operations { return nil }
func (s *nopService) GetDB() db.Client                  { return s.store }
func (s *nopService) GetRegistry() *tasks.Registry      { return nil }

func newTestServer(t *testing.T) (*Server, *memStore) {
	s, store, _ := newTestServerWithOps(t)
	return s, store
}

func newTestServerWithOps(t *testing.T) (*Server, *memStore, *nopOps) {
	t.Helper()
	store := newMemStore()
	registry := tasks.NewRegistry()
	t.Cleanup(registry.Cleanup)

	ops := &nopOps{}
	mutes := moderation.NewMuteService(ops, registry)
	gatekeeper := chat.NewGatekeeper(store, ops, ops, registry)
	processor := bot.NewUpdateProcessor(&nopService{store: store})
	return NewServer(processor, store, ops, mutes, gatekeeper), store, ops
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/webhook", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookAcceptsUpdate(t *testing.T) {
	s, _ := newTestServer(t)
	update := tg.Update{UpdateID: 1}
	payload, err := json.Marshal(update)
	require.NoError(t, err)
	rec := doRequest(t, s, http.MethodPost, "/webhook", string(payload))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJoinSettingsRoundTrip(t *testing.T) {
	s, store := newTestServer(t)

	body := `{"enabled":true,"mode":"question","question":"2+2?","answer":"4"}`
	rec := doRequest(t, s, http.MethodPut, "/api/chats/-100123/join_settings", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, store.joinSettings[-100123])
	assert.Equal(t, "4", store.joinSettings[-100123].Answer)

	rec = doRequest(t, s, http.MethodGet, "/api/chats/-100123/join_settings", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2+2?")
}

func TestJoinSettingsValidation(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/chats/1/join_settings", `{"enabled":true,"mode":"question"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/chats/1/join_settings", `{"enabled":true,"mode":"quiz"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAutoMuteValidation(t *testing.T) {
	s, store := newTestServer(t)

	rec := doRequest(t, s, http.MethodPut, "/api/chats/1/auto_mute",
		`{"enabled":true,"start_time":"25:99","end_time":"06:00"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPut, "/api/chats/1/auto_mute",
		`{"enabled":true,"start_time":"22:00","end_time":"06:00","mute_level":"strict","days_of_week":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, store.autoMute[1])

	rec = doRequest(t, s, http.MethodDelete, "/api/chats/1/auto_mute", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, store.autoMute[1])
}

func TestVerifyMemberApprove(t *testing.T) {
	s, store := newTestServer(t)
	store.joinSettings[7] = &db.JoinSettings{
		ChatID: 7, Enabled: true, Mode: db.VerifyModeAdmin, TimeoutSeconds: 60,
	}
	store.pending[pairKey(7, 2)] = &db.PendingMember{
		ChatID: 7, UserID: 2, FullName: "New Member", Status: db.StatusPending,
	}

	rec := doRequest(t, s, http.MethodPost, "/api/chats/7/verify_member", `{"user_id":2,"approve":true}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, db.StatusApproved, store.pending[pairKey(7, 2)].Status)

	// Re-approving a closed verification conflicts.
	rec = doRequest(t, s, http.MethodPost, "/api/chats/7/verify_member", `{"user_id":2,"approve":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestSendMessageRoute(t *testing.T) {
	s, _, ops := newTestServerWithOps(t)

	rec := doRequest(t, s, http.MethodPost, "/api/chats/4/send", `{"text":"hello"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"hello"}, ops.sent)
	assert.Contains(t, rec.Body.String(), `"message_id":1`)

	rec = doRequest(t, s, http.MethodPost, "/api/chats/4/send", `{"text":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/chats/4/send", `{"text":"<b>hi</b>","html":true}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ops.sent, 2)
}

func TestWhitelistRoutes(t *testing.T) {
	s, store := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/chats/3/whitelist", `{"user_id":42,"note":"trusted"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, store.whitelist[pairKey(3, 42)])

	rec = doRequest(t, s, http.MethodPost, "/api/chats/3/whitelist", `{"user_id":42}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/chats/3/whitelist", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "trusted"))

	rec = doRequest(t, s, http.MethodDelete, "/api/chats/3/whitelist/42", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, store.whitelist[pairKey(3, 42)])
}
