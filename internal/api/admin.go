package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/Jasonzhang2023/group-assist-bot/internal/db"
	"github.com/Jasonzhang2023/group-assist-bot/internal/handlers/chat"
	"github.com/Jasonzhang2023/group-assist-bot/internal/policy/permissions"
)

func chatIDFrom(r *http.Request) (int64, bool) {
	raw, ok := mux.Vars(r)["chat_id"]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

type userActionRequest struct {
	UserID          int64  `json:"user_id"`
	Level           string `json:"level,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
	Approve         *bool  `json:"approve,omitempty"`
}

func decodeUserAction(w http.ResponseWriter, r *http.Request) (*userActionRequest, bool) {
	var req userActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return nil, false
	}
	if req.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) handleMuteUser(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	req, ok := decodeUserAction(w, r)
	if !ok {
		return
	}
	level, err := permissions.ParseLevel(req.Level)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	duration := time.Duration(req.DurationSeconds) * time.Second
	if err := s.mutes.MuteUser(r.Context(), chatID, req.UserID, level, duration); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(w, nil)
}

func (s *Server) handleUnmuteUser(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	req, ok := decodeUserAction(w, r)
	if !ok {
		return
	}
	if err := s.mutes.UnmuteUser(r.Context(), chatID, req.UserID); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(w, nil)
}

func (s *Server) handleMuteAll(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	var req struct {
		Level           string `json:"level"`
		DurationSeconds int    `json:"duration_seconds"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	level, err := permissions.ParseLevel(req.Level)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	duration := time.Duration(req.DurationSeconds) * time.Second
	changed, err := s.mutes.MuteChat(r.Context(), chatID, level, duration)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(w, map[string]bool{"changed": changed})
}

func (s *Server) handleUnmuteAll(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	changed, err := s.mutes.UnmuteChat(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(w, map[string]bool{"changed": changed})
}

// handleSendMessage posts a message into the chat on the bot's behalf. The
// retry policy of the operations layer applies.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	var req struct {
		Text string `json:"text"`
		HTML bool   `json:"html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "text is required")
		return
	}
	send := s.ops.SendText
	if req.HTML {
		send = s.ops.SendHTML
	}
	msg, err := send(r.Context(), chatID, req.Text)
	if err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(w, map[string]int{"message_id": msg.MessageID})
}

func (s *Server) handleBanUser(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	req, ok := decodeUserAction(w, r)
	if !ok {
		return
	}
	var until time.Time
	if req.DurationSeconds > 0 {
		until = time.Now().Add(time.Duration(req.DurationSeconds) * time.Second)
	}
	if err := s.ops.BanMember(r.Context(), chatID, req.UserID, until); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(w, nil)
}

func (s *Server) handleUnbanUser(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	req, ok := decodeUserAction(w, r)
	if !ok {
		return
	}
	if err := s.ops.UnbanMember(r.Context(), chatID, req.UserID); err != nil {
		respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	respondOK(w, nil)
}

func (s *Server) handleVerifyMember(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	req, ok := decodeUserAction(w, r)
	if !ok {
		return
	}
	if req.Approve == nil {
		respondError(w, http.StatusBadRequest, "approve is required")
		return
	}

	if *req.Approve {
		settings, err := s.store.GetJoinSettings(r.Context(), chatID)
		if err != nil {
			log.WithError(err).Warn("cant load join settings for approval")
		}
		if err := s.gatekeeper.Approve(r.Context(), chatID, req.UserID, settings); err != nil {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
	} else {
		if err := s.gatekeeper.Reject(r.Context(), chatID, req.UserID); err != nil {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
	}
	respondOK(w, nil)
}

func (s *Server) handlePendingMembers(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	members, err := s.store.ListPendingMembers(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, members)
}

func (s *Server) handleGetJoinSettings(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	settings, err := s.store.GetJoinSettings(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, settings)
}

func (s *Server) handlePutJoinSettings(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	var settings db.JoinSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	settings.ChatID = chatID
	if settings.Mode == "" {
		settings.Mode = db.VerifyModeQuestion
	}
	if settings.Mode != db.VerifyModeQuestion && settings.Mode != db.VerifyModeAdmin {
		respondError(w, http.StatusBadRequest, "mode must be question or admin")
		return
	}
	if settings.Enabled && settings.Mode == db.VerifyModeQuestion && (settings.Question == "" || settings.Answer == "") {
		respondError(w, http.StatusBadRequest, "question mode needs a question and an answer")
		return
	}
	if err := s.store.SetJoinSettings(r.Context(), &settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, settings)
}

func (s *Server) handleGetAutoMute(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	settings, err := s.store.GetAutoMuteSettings(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if settings == nil {
		respondError(w, http.StatusNotFound, "no auto mute schedule for chat")
		return
	}
	respondOK(w, settings)
}

func (s *Server) handlePutAutoMute(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	var settings db.AutoMuteSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	settings.ChatID = chatID
	if _, err := time.Parse("15:04", settings.StartTime); err != nil {
		respondError(w, http.StatusBadRequest, "start_time must be HH:MM")
		return
	}
	if _, err := time.Parse("15:04", settings.EndTime); err != nil {
		respondError(w, http.StatusBadRequest, "end_time must be HH:MM")
		return
	}
	if _, err := permissions.ParseLevel(settings.MuteLevel); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, day := range settings.Days {
		if day < time.Sunday || day > time.Saturday {
			respondError(w, http.StatusBadRequest, "days_of_week entries must be 0..6")
			return
		}
	}
	if err := s.store.SetAutoMuteSettings(r.Context(), &settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A schedule saved mid-window takes effect now, not at the next start edge.
	if settings.Enabled && chat.InWindow(&settings, time.Now().In(s.cfg.Location())) {
		level, _ := permissions.ParseLevel(settings.MuteLevel)
		if _, err := s.mutes.MuteChat(r.Context(), chatID, level, 0); err != nil {
			log.WithError(err).WithField("chat", chatID).Error("cant apply schedule mid-window")
		}
	}
	respondOK(w, settings)
}

func (s *Server) handleDeleteAutoMute(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	if err := s.store.DeleteAutoMuteSettings(r.Context(), chatID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, nil)
}

func (s *Server) handleGetSpamFilter(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	settings, err := s.store.GetSpamFilterSettings(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, settings)
}

func (s *Server) handlePutSpamFilter(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	var settings db.SpamFilterSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	settings.ChatID = chatID
	for _, rule := range settings.Rules {
		switch rule.Type {
		case db.RuleTypeKeyword, db.RuleTypeURL, db.RuleTypeRegex:
		default:
			respondError(w, http.StatusBadRequest, "rule type must be keyword, url or regex")
			return
		}
		switch rule.Action {
		case db.ActionDelete, db.ActionWarn, db.ActionMute:
		default:
			respondError(w, http.StatusBadRequest, "rule action must be delete, warn or mute")
			return
		}
	}
	if err := s.store.SetSpamFilterSettings(r.Context(), &settings); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, settings)
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	entries, err := s.store.ListWhitelist(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, entries)
}

func (s *Server) handleAddWhitelist(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	var entry db.WhitelistEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if entry.UserID == 0 {
		respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	entry.ChatID = chatID
	if listed, err := s.store.IsWhitelisted(r.Context(), chatID, entry.UserID); err == nil && listed {
		respondError(w, http.StatusConflict, "user is already whitelisted")
		return
	}
	if entry.AddedAt.IsZero() {
		entry.AddedAt = time.Now()
	}
	if err := s.store.AddWhitelistEntry(r.Context(), &entry); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, entry)
}

func (s *Server) handleRemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	chatID, ok := chatIDFrom(r)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad chat_id")
		return
	}
	userID, err := strconv.ParseInt(mux.Vars(r)["user_id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "bad user_id")
		return
	}
	if err := s.store.RemoveWhitelistEntry(r.Context(), chatID, userID); err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, nil)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.store.ListArchivedChats(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, chats)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	query := db.MessageQuery{Search: r.URL.Query().Get("search")}
	query.ChatID, _ = strconv.ParseInt(r.URL.Query().Get("chat_id"), 10, 64)
	query.UserID, _ = strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	query.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	query.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		query.Since = t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			respondError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		query.Until = t
	}

	messages, err := s.store.ListMessages(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.store.CountMessages(r.Context(), query)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondOK(w, map[string]interface{}{
		"messages": messages,
		"total":    total,
	})
}
